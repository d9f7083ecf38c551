package reconcile

import (
	"sort"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// DefaultThreshold is the Jaro-Winkler similarity above which two normalized
// names are treated as the same artist. It is high enough that
// "morgan wade" and "morgan wallen" stay apart.
const DefaultThreshold = 0.97

// Resolver maps artist names onto a shared key. Canonical names (normally the
// live feed's artists) win; other names are folded onto the most similar
// canonical key when the similarity reaches the threshold.
type Resolver struct {
	threshold float64
	canonical map[string]bool
	sorted    []string
	aliases   map[string]string
}

// NewResolver returns a Resolver. A threshold <= 0 disables fuzzy matching.
func NewResolver(threshold float64, canonical ...string) *Resolver {
	r := &Resolver{
		threshold: threshold,
		canonical: make(map[string]bool),
		aliases:   make(map[string]string),
	}
	for _, name := range canonical {
		key := Normalize(name)
		if key == "" || r.canonical[key] {
			continue
		}
		r.canonical[key] = true
		r.sorted = append(r.sorted, key)
	}
	sort.Strings(r.sorted)
	return r
}

// Key returns the join key for name.
func (r *Resolver) Key(name string) string {
	key := Normalize(name)
	if key == "" || r.canonical[key] || r.threshold <= 0 {
		return key
	}
	if alias, ok := r.aliases[key]; ok {
		return alias
	}

	metric := metrics.NewJaroWinkler()
	best, bestScore := key, 0.0
	for _, candidate := range r.sorted {
		score := strutil.Similarity(key, candidate, metric)
		if score >= r.threshold && score > bestScore {
			best, bestScore = candidate, score
		}
	}
	r.aliases[key] = best
	return best
}

// Aliases returns the non-identity mappings found so far, for reporting.
func (r *Resolver) Aliases() map[string]string {
	out := make(map[string]string)
	for from, to := range r.aliases {
		if from != to {
			out[from] = to
		}
	}
	return out
}
