package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/smcfilter/internal/moves"
	"github.com/san-kum/smcfilter/internal/rng"
	"github.com/san-kum/smcfilter/internal/smc"
)

// Tempered anneals from a Gaussian prior to prior x likelihood, where the
// likelihood is an equal-weight Gaussian mixture. Generation t targets
// prior(x) L(x)^beta(t) with beta(t) = t/Generations.
type Tempered struct {
	Generations int
	PriorSigma  float64
	Modes       []float64
	ModeSigma   float64
	StepSize    float64
	MCMCSteps   int
}

func NewTempered() *Tempered {
	return &Tempered{
		Generations: DefaultGenerations,
		PriorSigma:  DefaultPriorSigma,
		Modes:       []float64{-DefaultModeOffset, DefaultModeOffset},
		ModeSigma:   DefaultModeSigma,
		StepSize:    1.0,
		MCMCSteps:   2,
	}
}

// Beta is the inverse temperature at generation t, clamped to [0, 1].
func (m *Tempered) Beta(t int) float64 {
	b := float64(t) / float64(m.Generations)
	return math.Max(0, math.Min(1, b))
}

// LogLikelihood is log((1/K) sum_k N(x; mode_k, ModeSigma)).
func (m *Tempered) LogLikelihood(x float64) float64 {
	terms := make([]float64, len(m.Modes))
	for k, mu := range m.Modes {
		terms[k] = distuv.Normal{Mu: mu, Sigma: m.ModeSigma}.LogProb(x)
	}
	return floats.LogSumExp(terms) - math.Log(float64(len(m.Modes)))
}

func (m *Tempered) prior() distuv.Normal {
	return distuv.Normal{Mu: 0, Sigma: m.PriorSigma}
}

func (m *Tempered) Init(r rng.Source) (float64, float64, error) {
	return r.Normal(0, m.PriorSigma), 0, nil
}

// Reweight raises the likelihood exponent from beta(t-1) to beta(t). The
// value is left alone; MCMC does the moving.
func (m *Tempered) Reweight(t int, p *smc.Particle[float64], r rng.Source) error {
	p.AddToLogWeight((m.Beta(t) - m.Beta(t-1)) * m.LogLikelihood(p.Value()))
	return nil
}

func (m *Tempered) Refine(t int, p *smc.Particle[float64], r rng.Source) (bool, error) {
	beta := m.Beta(t)
	pr := m.prior()
	target := func(x float64) float64 {
		return pr.LogProb(x) + beta*m.LogLikelihood(x)
	}

	x := p.Value()
	y := x + r.Normal(0, m.StepSize)
	if math.Log(r.Uniform(0, 1)) < target(y)-target(x) {
		p.SetValue(y)
		return true, nil
	}
	return false, nil
}

// Integrand and Width give the thermodynamic integral
// log Z = int_0^1 E_beta[log L] d beta over the sampler history.
func (m *Tempered) Integrand(t int, p smc.Particle[float64]) float64 {
	return m.LogLikelihood(p.Value())
}

func (m *Tempered) Width(t int) float64 {
	return m.Beta(t) - m.Beta(t-1)
}

// LogEvidence is the exact log normalising constant of prior x likelihood.
func (m *Tempered) LogEvidence() float64 {
	s := math.Sqrt(m.PriorSigma*m.PriorSigma + m.ModeSigma*m.ModeSigma)
	terms := make([]float64, len(m.Modes))
	for k, mu := range m.Modes {
		terms[k] = distuv.Normal{Mu: 0, Sigma: s}.LogProb(mu)
	}
	return floats.LogSumExp(terms) - math.Log(float64(len(m.Modes)))
}

func (m *Tempered) MoveSet() (*moves.Set[float64], error) {
	if m.Generations < 1 {
		return nil, fmt.Errorf("models: tempered needs at least one generation, got %d", m.Generations)
	}
	if len(m.Modes) == 0 || m.ModeSigma <= 0 || m.PriorSigma <= 0 {
		return nil, fmt.Errorf("models: tempered needs modes and positive scales")
	}
	var kernel moves.MCMCFunc[float64]
	if m.MCMCSteps > 0 {
		kernel = moves.Repeat(m.MCMCSteps, m.Refine)
	}
	return moves.New(m.Init, m.Reweight, kernel)
}

func Identity(x float64) float64 { return x }

func (m *Tempered) Params() map[string]float64 {
	return map[string]float64{
		"generations": float64(m.Generations),
		"prior_sigma": m.PriorSigma,
		"mode_sigma":  m.ModeSigma,
		"step_size":   m.StepSize,
		"mcmc_steps":  float64(m.MCMCSteps),
	}
}
