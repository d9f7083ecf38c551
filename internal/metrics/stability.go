package metrics

import (
	"sort"
	"time"

	"github.com/ademuri/listening-identity/internal/reconcile"
	"github.com/ademuri/listening-identity/internal/store"
)

type StabilityOptions struct {
	// MinTracks is the number of distinct tracks with audio features an
	// artist needs before its variances mean anything.
	MinTracks int `mapstructure:"min_tracks"`
	// SessionGap splits an artist's plays into listening sessions.
	SessionGap time.Duration `mapstructure:"session_gap"`
}

func DefaultStabilityOptions() StabilityOptions {
	return StabilityOptions{MinTracks: 3, SessionGap: 30 * time.Minute}
}

type ArtistStability struct {
	Artist           string  `json:"artist" yaml:"artist"`
	Key              string  `json:"-" yaml:"-"`
	Tracks           int     `json:"tracks" yaml:"tracks"`
	Sessions         int     `json:"sessions" yaml:"sessions"`
	FeatureVariance  float64 `json:"feature_variance" yaml:"feature_variance"`
	TemporalVariance float64 `json:"temporal_variance" yaml:"temporal_variance"`
	Index            float64 `json:"index" yaml:"index"`
}

type InsufficientArtist struct {
	Artist string `json:"artist" yaml:"artist"`
	Key    string `json:"-" yaml:"-"`
	Tracks int    `json:"tracks" yaml:"tracks"`
}

type GlobalStability struct {
	Artists          int     `json:"artists" yaml:"artists"`
	FeatureVariance  float64 `json:"feature_variance" yaml:"feature_variance"`
	TemporalVariance float64 `json:"temporal_variance" yaml:"temporal_variance"`
	Index            float64 `json:"index" yaml:"index"`
	Insufficient     bool    `json:"insufficient" yaml:"insufficient"`
}

type StabilityReport struct {
	Artists      []ArtistStability    `json:"artists" yaml:"artists"`
	Insufficient []InsufficientArtist `json:"insufficient" yaml:"insufficient"`
	Global       GlobalStability      `json:"global" yaml:"global"`
}

// Stability contrasts how much an artist's tracks vary in sound against how
// scattered its listening is in time. Low feature variance with widely spread
// sessions gives an index near 1 (identity); tightly clustered sessions over
// varied tracks give an index near 0 (mood).
//
// Only live events carry audio features, so ranking-only artists do not
// appear in the report.
func Stability(ds Dataset, opts StabilityOptions) StabilityReport {
	return stability(ds, reconcile.NewResolver(reconcile.DefaultThreshold, liveArtists(ds)...), opts)
}

func liveArtists(ds Dataset) []string {
	names := make([]string, 0, len(ds.Events))
	for _, e := range ds.Events {
		names = append(names, e.Artist)
	}
	return names
}

type artistPlays struct {
	name   string
	tracks map[int64]store.Features
	times  []time.Time
}

func stability(ds Dataset, resolver *reconcile.Resolver, opts StabilityOptions) StabilityReport {
	defaults := DefaultStabilityOptions()
	if opts.MinTracks <= 0 {
		opts.MinTracks = defaults.MinTracks
	}
	if opts.SessionGap <= 0 {
		opts.SessionGap = defaults.SessionGap
	}

	report := StabilityReport{Global: GlobalStability{Insufficient: true}}
	if len(ds.Events) == 0 {
		return report
	}

	byArtist := make(map[string]*artistPlays)
	first, last := ds.Events[0].PlayedAt, ds.Events[0].PlayedAt
	for _, e := range ds.Events {
		key := resolver.Key(e.Artist)
		if key == "" {
			continue
		}
		p, ok := byArtist[key]
		if !ok {
			p = &artistPlays{name: e.Artist, tracks: make(map[int64]store.Features)}
			byArtist[key] = p
		}
		if e.Features != nil {
			p.tracks[e.TrackID] = *e.Features
		}
		p.times = append(p.times, e.PlayedAt)
		if e.PlayedAt.Before(first) {
			first = e.PlayedAt
		}
		if e.PlayedAt.After(last) {
			last = e.PlayedAt
		}
	}
	window := last.Sub(first)

	keys := make([]string, 0, len(byArtist))
	for k := range byArtist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sumFV, sumTV float64
	for _, key := range keys {
		p := byArtist[key]
		if len(p.tracks) < opts.MinTracks {
			report.Insufficient = append(report.Insufficient, InsufficientArtist{Artist: p.name, Key: key, Tracks: len(p.tracks)})
			continue
		}

		sort.Slice(p.times, func(i, j int) bool { return p.times[i].Before(p.times[j]) })
		starts := sessionStarts(p.times, opts.SessionGap)
		s := ArtistStability{
			Artist:           p.name,
			Key:              key,
			Tracks:           len(p.tracks),
			Sessions:         len(starts),
			FeatureVariance:  featureVariance(p.tracks),
			TemporalVariance: temporalVariance(starts, first, window),
		}
		s.Index = stabilityIndex(s.FeatureVariance, s.TemporalVariance)
		report.Artists = append(report.Artists, s)
		sumFV += s.FeatureVariance
		sumTV += s.TemporalVariance
	}

	if n := len(report.Artists); n > 0 {
		g := &report.Global
		g.Artists = n
		g.FeatureVariance = sumFV / float64(n)
		g.TemporalVariance = sumTV / float64(n)
		g.Index = stabilityIndex(g.FeatureVariance, g.TemporalVariance)
		g.Insufficient = false
	}
	return report
}

// stabilityIndex is 1 - fv/(fv+tv), clamped to [0,1]. With no variance on
// either side there is nothing to contrast and the index is 0.5.
func stabilityIndex(fv, tv float64) float64 {
	if fv+tv <= 0 {
		return 0.5
	}
	return clamp(1-fv/(fv+tv), 0, 1)
}

// featureVariance is the mean, over feature dimensions, of the population
// variance of the range-normalized values.
func featureVariance(tracks map[int64]store.Features) float64 {
	ids := make([]int64, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dims := len(store.FeatureRanges)
	columns := make([][]float64, dims)
	for _, id := range ids {
		for d, v := range tracks[id].Normalized() {
			columns[d] = append(columns[d], v)
		}
	}

	var total float64
	for _, c := range columns {
		total += variance(c)
	}
	return total / float64(dims)
}

// sessionStarts returns the first play of each session. times must be in
// ascending order.
func sessionStarts(times []time.Time, gap time.Duration) []time.Time {
	var starts []time.Time
	for i, t := range times {
		if i == 0 || t.Sub(times[i-1]) > gap {
			starts = append(starts, t)
		}
	}
	return starts
}

// temporalVariance is the population variance of session start times mapped
// onto [0,1] over the dataset's live window.
func temporalVariance(starts []time.Time, origin time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	values := make([]float64, len(starts))
	for i, s := range starts {
		values[i] = float64(s.Sub(origin)) / float64(window)
	}
	return variance(values)
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return ss / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
