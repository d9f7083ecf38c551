package metrics

import (
	"github.com/ademuri/listening-identity/internal/reconcile"
)

type YearCount struct {
	Year          int `json:"year" yaml:"year"`
	Artists       int `json:"artists" yaml:"artists"`
	LiveArtists   int `json:"live_artists" yaml:"live_artists"`
	RankedArtists int `json:"ranked_artists" yaml:"ranked_artists"`
}

// DiversityTable has one row per year from the first to the last year with
// data. Years without data inside that span are present with zero counts.
type DiversityTable struct {
	Rows []YearCount `json:"rows" yaml:"rows"`
}

// Count returns the number of distinct artists in year, or 0 when the year
// has no data.
func (t DiversityTable) Count(year int) int {
	for _, r := range t.Rows {
		if r.Year == year {
			return r.Artists
		}
	}
	return 0
}

// Diversity counts distinct artists per year across both sources.
func Diversity(ds Dataset) DiversityTable {
	return diversity(buildIndex(ds, reconcile.DefaultThreshold))
}

func diversity(idx *index) DiversityTable {
	counts := make(map[int]*YearCount)
	lo, hi := 0, 0
	for _, key := range idx.keys() {
		for year, a := range idx.activity[key] {
			c, ok := counts[year]
			if !ok {
				c = &YearCount{Year: year}
				counts[year] = c
			}
			c.Artists++
			if a.Plays > 0 {
				c.LiveArtists++
			}
			if len(a.Ranks) > 0 {
				c.RankedArtists++
			}
			if lo == 0 || year < lo {
				lo = year
			}
			if year > hi {
				hi = year
			}
		}
	}

	var table DiversityTable
	if len(counts) == 0 {
		return table
	}
	for year := lo; year <= hi; year++ {
		if c, ok := counts[year]; ok {
			table.Rows = append(table.Rows, *c)
		} else {
			table.Rows = append(table.Rows, YearCount{Year: year})
		}
	}
	return table
}
