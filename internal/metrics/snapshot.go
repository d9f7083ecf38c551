package metrics

import (
	"fmt"
	"time"

	"github.com/ademuri/listening-identity/internal/reconcile"
)

type Options struct {
	// AliasThreshold is the Jaro-Winkler similarity at which a ranking name
	// is joined to a live artist. Zero or less disables fuzzy joining.
	AliasThreshold float64
	Score          ScoreFunc
	Stability      StabilityOptions
}

func DefaultOptions() Options {
	return Options{
		AliasThreshold: reconcile.DefaultThreshold,
		Score:          WeightedScore(DefaultWeights()),
		Stability:      DefaultStabilityOptions(),
	}
}

// Snapshot is every metric computed over one Dataset. It is never stored;
// computing it again over the same data gives the same result.
type Snapshot struct {
	From        time.Time           `json:"from" yaml:"from"`
	To          time.Time           `json:"to" yaml:"to"`
	Events      int                 `json:"events" yaml:"events"`
	Rankings    int                 `json:"rankings" yaml:"rankings"`
	Diversity   DiversityTable      `json:"diversity" yaml:"diversity"`
	Dimensions  []DimensionShare    `json:"dimensions" yaml:"dimensions"`
	Persistence []ArtistPersistence `json:"persistence" yaml:"persistence"`
	Peaks       []PeakYear          `json:"peaks" yaml:"peaks"`
	Stability   StabilityReport     `json:"stability" yaml:"stability"`
	// Aliases maps ranking names onto the live artist they were joined to.
	Aliases map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

func Compute(ds Dataset, opts Options) Snapshot {
	idx := buildIndex(ds, opts.AliasThreshold)
	resolver := reconcile.NewResolver(opts.AliasThreshold, liveArtists(ds)...)

	return Snapshot{
		From:        ds.From,
		To:          ds.To,
		Events:      len(ds.Events),
		Rankings:    len(ds.Rankings),
		Diversity:   diversity(idx),
		Dimensions:  DimensionBreakdown(ds),
		Persistence: persistence(idx),
		Peaks:       peakYears(idx, opts.Score),
		Stability:   stability(ds, resolver, opts.Stability),
		Aliases:     idx.aliases,
	}
}

func (s Snapshot) key(artist string) string {
	key := reconcile.Normalize(artist)
	if alias, ok := s.Aliases[key]; ok {
		return alias
	}
	return key
}

// StabilityFor returns the stability of one artist, or ErrInsufficientData
// when the artist has too few tracks or no live plays.
func (s Snapshot) StabilityFor(artist string) (ArtistStability, error) {
	key := s.key(artist)
	for _, a := range s.Stability.Artists {
		if a.Key == key {
			return a, nil
		}
	}
	return ArtistStability{}, fmt.Errorf("stability of %q: %w", artist, ErrInsufficientData)
}

// PeakFor returns the peak year of one artist, or ErrInsufficientData when
// the artist does not appear in the data.
func (s Snapshot) PeakFor(artist string) (PeakYear, error) {
	key := s.key(artist)
	for _, p := range s.Peaks {
		if p.Key == key {
			return p, nil
		}
	}
	return PeakYear{}, fmt.Errorf("peak year of %q: %w", artist, ErrInsufficientData)
}
