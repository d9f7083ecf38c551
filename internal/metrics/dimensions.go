package metrics

import "sort"

// DimensionShare is how much of one year's ranking falls in one dimension.
type DimensionShare struct {
	Year      int     `json:"year" yaml:"year"`
	Dimension string  `json:"dimension" yaml:"dimension"`
	Songs     int     `json:"songs" yaml:"songs"`
	Share     float64 `json:"share" yaml:"share"`
}

// DimensionBreakdown counts ranked songs per dimension and year. Share is the
// fraction of that year's ranked songs. Rows are ordered by year, then by
// songs descending, then by dimension.
func DimensionBreakdown(ds Dataset) []DimensionShare {
	type key struct {
		year      int
		dimension string
	}
	songs := make(map[key]int)
	totals := make(map[int]int)
	for _, r := range ds.Rankings {
		n := r.SongCount()
		songs[key{r.Year, r.Dimension}] += n
		totals[r.Year] += n
	}

	out := make([]DimensionShare, 0, len(songs))
	for k, n := range songs {
		out = append(out, DimensionShare{
			Year:      k.year,
			Dimension: k.dimension,
			Songs:     n,
			Share:     float64(n) / float64(totals[k.year]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Songs != b.Songs {
			return a.Songs > b.Songs
		}
		return a.Dimension < b.Dimension
	})
	return out
}
