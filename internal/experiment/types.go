package experiment

import (
	"time"

	"github.com/san-kum/smcfilter/internal/diag"
	"github.com/san-kum/smcfilter/internal/metrics"
)

// GenerationStat summarises the population after one generation.
type GenerationStat struct {
	Generation  int     `json:"generation"`
	ESS         float64 `json:"ess"`
	Resampled   bool    `json:"resampled"`
	Accepted    int     `json:"accepted"`
	Estimate    float64 `json:"estimate"`
	Spread      float64 `json:"spread"`
	LogEvidence float64 `json:"log_evidence"`
	CapHit      bool    `json:"cap_hit,omitempty"`
}

type Result struct {
	RunID        string           `json:"run_id"`
	Model        string           `json:"model"`
	Generations  []GenerationStat `json:"generations"`
	Truth        []float64        `json:"truth,omitempty"`
	Observations []float64        `json:"observations,omitempty"`
	LogEvidence  float64          `json:"log_evidence"`
	// PathSampling and ExactLogEvidence are only set by models that
	// provide them.
	PathSampling     *float64           `json:"path_sampling,omitempty"`
	ExactLogEvidence *float64           `json:"exact_log_evidence,omitempty"`
	Rounds           []diag.Record      `json:"rounds,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	Elapsed          time.Duration      `json:"elapsed"`
}

// Series extracts one column of the per-generation trace.
func (r *Result) Series(field string) []float64 {
	out := make([]float64, len(r.Generations))
	for i, g := range r.Generations {
		switch field {
		case "ess":
			out[i] = g.ESS
		case "accepted":
			out[i] = float64(g.Accepted)
		case "spread":
			out[i] = g.Spread
		case "evidence":
			out[i] = g.LogEvidence
		default:
			out[i] = g.Estimate
		}
	}
	return out
}

// Observer is notified after every completed generation.
type Observer interface {
	OnGeneration(stat GenerationStat)
}

type ObserverFunc func(stat GenerationStat)

func (f ObserverFunc) OnGeneration(stat GenerationStat) { f(stat) }

// Samples converts the trace for metric evaluation. Generation g is paired
// with Truth[g-1] when the model has a truth.
func (r *Result) Samples(particles int) []metrics.Sample {
	out := make([]metrics.Sample, len(r.Generations))
	for i, g := range r.Generations {
		out[i] = metrics.Sample{
			Generation: g.Generation,
			Particles:  particles,
			ESS:        g.ESS,
			Resampled:  g.Resampled,
			Estimate:   g.Estimate,
			Spread:     g.Spread,
		}
		if g.Generation >= 1 && g.Generation <= len(r.Truth) {
			out[i].Truth = r.Truth[g.Generation-1]
			out[i].HasTruth = true
		}
	}
	return out
}
