package store

import "math"

// Features is a track's audio-feature vector.
type Features struct {
	Danceability     float64 `json:"danceability" yaml:"danceability"`
	Energy           float64 `json:"energy" yaml:"energy"`
	Valence          float64 `json:"valence" yaml:"valence"`
	Acousticness     float64 `json:"acousticness" yaml:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness" yaml:"instrumentalness"`
	Liveness         float64 `json:"liveness" yaml:"liveness"`
	Speechiness      float64 `json:"speechiness" yaml:"speechiness"`
	Tempo            float64 `json:"tempo" yaml:"tempo"` // BPM
}

type FeatureRange struct {
	Name     string
	Min, Max float64
}

// FeatureRanges declares the bounds of each feature, in the order returned by
// Features.Values.
var FeatureRanges = []FeatureRange{
	{"danceability", 0, 1},
	{"energy", 0, 1},
	{"valence", 0, 1},
	{"acousticness", 0, 1},
	{"instrumentalness", 0, 1},
	{"liveness", 0, 1},
	{"speechiness", 0, 1},
	{"tempo", 0, 300},
}

func (f Features) Values() []float64 {
	return []float64{
		f.Danceability,
		f.Energy,
		f.Valence,
		f.Acousticness,
		f.Instrumentalness,
		f.Liveness,
		f.Speechiness,
		f.Tempo,
	}
}

// Validate returns a *ValidationError for the first value outside its range.
func (f Features) Validate() error {
	for i, v := range f.Values() {
		r := FeatureRanges[i]
		if math.IsNaN(v) || v < r.Min || v > r.Max {
			return &ValidationError{
				Field:  r.Name,
				Value:  v,
				Reason: "outside declared range",
			}
		}
	}
	return nil
}

// Normalized maps every value onto [0,1] using its declared range.
func (f Features) Normalized() []float64 {
	values := f.Values()
	for i, v := range values {
		r := FeatureRanges[i]
		values[i] = (v - r.Min) / (r.Max - r.Min)
	}
	return values
}

func featureArgs(f *Features) []any {
	args := make([]any, len(FeatureRanges))
	if f == nil {
		return args
	}
	for i, v := range f.Values() {
		args[i] = v
	}
	return args
}
