// Package metrics derives longitudinal statistics from the listening history
// and the annual rankings: how many artists a year holds, how long artists
// persist, when each artist peaked, and whether listening to an artist looks
// identity-driven or mood-driven.
//
// Every function here is a pure computation over a Dataset. Live events and
// ranking records are joined only here, by reconciled artist name.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ademuri/listening-identity/internal/reconcile"
	"github.com/ademuri/listening-identity/internal/store"
)

// ErrInsufficientData is returned when a metric is requested for an artist
// that has too little history to compute it.
var ErrInsufficientData = errors.New("insufficient data")

// Reader is the part of the store the metrics read from.
type Reader interface {
	QueryEventsInRange(ctx context.Context, start, end time.Time) ([]store.Event, error)
	RankingRecords(ctx context.Context) ([]store.RankingRecord, error)
}

type Dataset struct {
	From, To time.Time
	Events   []store.Event
	Rankings []store.RankingRecord
}

// Load reads the events in [start, end) and the rankings of every year that
// range touches.
func Load(ctx context.Context, r Reader, start, end time.Time) (Dataset, error) {
	ds := Dataset{From: start, To: end}

	events, err := r.QueryEventsInRange(ctx, start, end)
	if err != nil {
		return ds, fmt.Errorf("loading events: %w", err)
	}
	ds.Events = events

	rankings, err := r.RankingRecords(ctx)
	if err != nil {
		return ds, fmt.Errorf("loading rankings: %w", err)
	}
	if !end.After(start) {
		return ds, nil
	}
	first, last := start.UTC().Year(), end.Add(-time.Nanosecond).UTC().Year()
	for _, rec := range rankings {
		if rec.Year >= first && rec.Year <= last {
			ds.Rankings = append(ds.Rankings, rec)
		}
	}
	return ds, nil
}

// YearActivity is everything known about one artist in one year. Ranks holds
// the mean rank of each ranking record; Songs counts the ranked songs behind
// them.
type YearActivity struct {
	Artist    string
	Year      int
	Plays     int
	Songs     int
	Ranks     []float64
	Magnitude float64
}

// index is the joined view of a Dataset.
type index struct {
	names    map[string]string // key -> display name
	activity map[string]map[int]*YearActivity
	aliases  map[string]string
}

func buildIndex(ds Dataset, threshold float64) *index {
	var live []string
	for _, e := range ds.Events {
		live = append(live, e.Artist)
	}
	resolver := reconcile.NewResolver(threshold, live...)

	idx := &index{
		names:    make(map[string]string),
		activity: make(map[string]map[int]*YearActivity),
	}
	at := func(name string, year int) *YearActivity {
		key := resolver.Key(name)
		if key == "" {
			return nil
		}
		if _, ok := idx.names[key]; !ok {
			idx.names[key] = name
		}
		years, ok := idx.activity[key]
		if !ok {
			years = make(map[int]*YearActivity)
			idx.activity[key] = years
		}
		a, ok := years[year]
		if !ok {
			a = &YearActivity{Artist: idx.names[key], Year: year}
			years[year] = a
		}
		return a
	}

	for _, e := range ds.Events {
		if a := at(e.Artist, e.PlayedAt.UTC().Year()); a != nil {
			a.Plays++
		}
	}
	for _, r := range ds.Rankings {
		if a := at(r.Artist, r.Year); a != nil {
			a.Ranks = append(a.Ranks, r.AverageRank())
			a.Songs += r.SongCount()
			a.Magnitude += r.Magnitude
		}
	}

	idx.aliases = resolver.Aliases()
	return idx
}

func (idx *index) keys() []string {
	keys := make([]string, 0, len(idx.activity))
	for k := range idx.activity {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (idx *index) years(key string) []int {
	years := make([]int, 0, len(idx.activity[key]))
	for y := range idx.activity[key] {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
