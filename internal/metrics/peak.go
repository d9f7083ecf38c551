package metrics

import (
	"math"

	"github.com/ademuri/listening-identity/internal/reconcile"
)

// ScoreFunc turns an artist's activity in one year into a single score.
type ScoreFunc func(YearActivity) float64

// Weights parameterise WeightedScore. Each ranked song adds SongWeight, and a
// ranking record with mean rank r contributes max(0, RankCeiling+1-r)/10, so
// one song at rank 1 of a top-50 list is worth 6 plays.
type Weights struct {
	PlayWeight      float64 `mapstructure:"play_weight"`
	SongWeight      float64 `mapstructure:"song_weight"`
	RankWeight      float64 `mapstructure:"rank_weight"`
	RankCeiling     int     `mapstructure:"rank_ceiling"`
	MagnitudeWeight float64 `mapstructure:"magnitude_weight"`
}

func DefaultWeights() Weights {
	return Weights{PlayWeight: 1, SongWeight: 1, RankWeight: 1, RankCeiling: 50, MagnitudeWeight: 0}
}

func WeightedScore(w Weights) ScoreFunc {
	return func(a YearActivity) float64 {
		var bonus float64
		for _, r := range a.Ranks {
			bonus += math.Max(0, float64(w.RankCeiling+1)-r) / 10
		}
		return w.PlayWeight*float64(a.Plays) + w.SongWeight*float64(a.Songs) +
			w.RankWeight*bonus + w.MagnitudeWeight*a.Magnitude
	}
}

type PeakYear struct {
	Artist string  `json:"artist" yaml:"artist"`
	Key    string  `json:"-" yaml:"-"`
	Year   int     `json:"year" yaml:"year"`
	Score  float64 `json:"score" yaml:"score"`
}

// PeakYears returns each artist's highest-scoring year, ordered by artist.
// Equal scores resolve to the earliest year. A nil score uses the default
// weights.
func PeakYears(ds Dataset, score ScoreFunc) []PeakYear {
	return peakYears(buildIndex(ds, reconcile.DefaultThreshold), score)
}

func peakYears(idx *index, score ScoreFunc) []PeakYear {
	if score == nil {
		score = WeightedScore(DefaultWeights())
	}
	var out []PeakYear
	for _, key := range idx.keys() {
		peak := PeakYear{Artist: idx.names[key], Key: key}
		found := false
		for _, year := range idx.years(key) {
			s := score(*idx.activity[key][year])
			if !found || s > peak.Score {
				peak.Year, peak.Score, found = year, s, true
			}
		}
		out = append(out, peak)
	}
	return out
}
