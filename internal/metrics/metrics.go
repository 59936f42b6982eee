package metrics

import "math"

// Sample is what a metric sees of one generation. Truth is only meaningful
// when HasTruth is set.
type Sample struct {
	Generation int
	Particles  int
	ESS        float64
	Resampled  bool
	Estimate   float64
	Spread     float64
	Truth      float64
	HasTruth   bool
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Evaluate resets every metric, feeds it the samples and collects the values
// by name. Metrics that saw nothing to measure (NaN) are left out.
func Evaluate(ms []Metric, samples []Sample) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, s := range samples {
			m.Observe(s)
		}
		if v := m.Value(); !math.IsNaN(v) {
			out[m.Name()] = v
		}
	}
	return out
}
