package metrics

import (
	"sort"

	"github.com/ademuri/listening-identity/internal/reconcile"
)

type ArtistPersistence struct {
	Artist string `json:"artist" yaml:"artist"`
	Key    string `json:"-" yaml:"-"`
	Count  int    `json:"count" yaml:"count"`
	Years  []int  `json:"years" yaml:"years"`
}

// Persistence reports, per artist, the distinct years in which the artist
// appears in either source. Artists are ordered by count, most persistent
// first, then by name.
func Persistence(ds Dataset) []ArtistPersistence {
	return persistence(buildIndex(ds, reconcile.DefaultThreshold))
}

func persistence(idx *index) []ArtistPersistence {
	var out []ArtistPersistence
	for _, key := range idx.keys() {
		years := idx.years(key)
		out = append(out, ArtistPersistence{
			Artist: idx.names[key],
			Key:    key,
			Count:  len(years),
			Years:  years,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
