package metrics

import "math"

// RMSE is the root mean squared error of the estimate against the truth.
type RMSE struct {
	name    string
	sumSq   float64
	samples int
}

func NewRMSE() *RMSE {
	return &RMSE{name: "rmse"}
}

func (r *RMSE) Name() string { return r.name }

func (r *RMSE) Observe(s Sample) {
	if !s.HasTruth {
		return
	}
	d := s.Estimate - s.Truth
	r.sumSq += d * d
	r.samples++
}

func (r *RMSE) Value() float64 {
	if r.samples == 0 {
		return math.NaN()
	}
	return math.Sqrt(r.sumSq / float64(r.samples))
}

func (r *RMSE) Reset() {
	r.sumSq = 0
	r.samples = 0
}

// Coverage is the fraction of generations whose truth lies within k posterior
// standard deviations of the estimate.
type Coverage struct {
	name    string
	k       float64
	hits    int
	samples int
}

func NewCoverage(k float64) *Coverage {
	return &Coverage{name: "coverage", k: k}
}

func (c *Coverage) Name() string { return c.name }

func (c *Coverage) Observe(s Sample) {
	if !s.HasTruth {
		return
	}
	c.samples++
	if math.Abs(s.Estimate-s.Truth) <= c.k*s.Spread {
		c.hits++
	}
}

func (c *Coverage) Value() float64 {
	if c.samples == 0 {
		return math.NaN()
	}
	return float64(c.hits) / float64(c.samples)
}

func (c *Coverage) Reset() {
	c.hits = 0
	c.samples = 0
}
