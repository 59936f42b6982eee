package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/smcfilter/internal/moves"
	"github.com/san-kum/smcfilter/internal/rng"
	"github.com/san-kum/smcfilter/internal/smc"
)

var ErrNoObservation = errors.New("models: no observation for generation")

// Track is the state of a near-constant-velocity target. Prev holds the
// state it was propagated from, which the MCMC kernel conditions on.
type Track struct {
	X, V  float64
	PrevX float64
	PrevV float64
}

func (tr Track) String() string {
	return fmt.Sprintf("%.6f %.6f", tr.X, tr.V)
}

// RandomWalk tracks a 1-D target observed in Gaussian noise. Generation t
// assimilates Observations[t-1].
type RandomWalk struct {
	ProcessNoise float64
	ObsNoise     float64
	InitSpread   float64
	// GuidedProb is the chance a particle uses the observation-guided
	// proposal instead of the prior.
	GuidedProb   float64
	MCMCSteps    int
	Observations []float64
}

func NewRandomWalk() *RandomWalk {
	return &RandomWalk{
		ProcessNoise: DefaultProcessNoise,
		ObsNoise:     DefaultObsNoise,
		InitSpread:   DefaultInitSpread,
		GuidedProb:   0.2,
		MCMCSteps:    1,
	}
}

// Simulate draws a true trajectory of n steps and stores noisy observations
// of it. It returns the true positions.
func (m *RandomWalk) Simulate(r rng.Source, n int) []float64 {
	truth := make([]float64, n)
	m.Observations = make([]float64, n)
	x := r.Normal(0, m.InitSpread)
	v := r.Normal(0, m.InitSpread)
	for i := 0; i < n; i++ {
		x += v + r.Normal(0, m.ProcessNoise)
		v += r.Normal(0, m.ProcessNoise)
		truth[i] = x
		m.Observations[i] = x + r.Normal(0, m.ObsNoise)
	}
	return truth
}

func (m *RandomWalk) Init(r rng.Source) (Track, float64, error) {
	x := r.Normal(0, m.InitSpread)
	v := r.Normal(0, m.InitSpread)
	return Track{X: x, V: v, PrevX: x, PrevV: v}, 0, nil
}

func (m *RandomWalk) observation(t int) (float64, error) {
	if t < 1 || t > len(m.Observations) {
		return 0, fmt.Errorf("%w: %d (have %d)", ErrNoObservation, t, len(m.Observations))
	}
	return m.Observations[t-1], nil
}

// prior is the transition density of position given the previous state.
func (m *RandomWalk) prior(prevX, prevV float64) distuv.Normal {
	return distuv.Normal{Mu: prevX + prevV, Sigma: m.ProcessNoise}
}

func (m *RandomWalk) likelihood(x float64) distuv.Normal {
	return distuv.Normal{Mu: x, Sigma: m.ObsNoise}
}

// Propagate is the bootstrap move: draw from the transition, weight by the
// observation likelihood.
func (m *RandomWalk) Propagate(t int, p *smc.Particle[Track], r rng.Source) error {
	y, err := m.observation(t)
	if err != nil {
		return err
	}
	tr := p.ValuePtr()
	tr.PrevX, tr.PrevV = tr.X, tr.V
	tr.X = m.prior(tr.PrevX, tr.PrevV).Mu + r.Normal(0, m.ProcessNoise)
	tr.V = tr.PrevV + r.Normal(0, m.ProcessNoise)
	p.AddToLogWeight(m.likelihood(tr.X).LogProb(y))
	return nil
}

// Guided proposes the position from the product of transition and
// likelihood and corrects the weight for the proposal.
func (m *RandomWalk) Guided(t int, p *smc.Particle[Track], r rng.Source) error {
	y, err := m.observation(t)
	if err != nil {
		return err
	}
	tr := p.ValuePtr()
	tr.PrevX, tr.PrevV = tr.X, tr.V

	pr := m.prior(tr.PrevX, tr.PrevV)
	vp, vo := pr.Sigma*pr.Sigma, m.ObsNoise*m.ObsNoise
	q := distuv.Normal{
		Mu:    (pr.Mu*vo + y*vp) / (vp + vo),
		Sigma: math.Sqrt(vp * vo / (vp + vo)),
	}

	tr.X = r.Normal(q.Mu, q.Sigma)
	tr.V = tr.PrevV + r.Normal(0, m.ProcessNoise)
	p.AddToLogWeight(pr.LogProb(tr.X) + m.likelihood(tr.X).LogProb(y) - q.LogProb(tr.X))
	return nil
}

// Refine is a random-walk Metropolis step on the position, targeting the
// transition from the stored previous state times the likelihood.
func (m *RandomWalk) Refine(t int, p *smc.Particle[Track], r rng.Source) (bool, error) {
	y, err := m.observation(t)
	if err != nil {
		return false, err
	}
	tr := p.ValuePtr()
	pr := m.prior(tr.PrevX, tr.PrevV)

	target := func(x float64) float64 {
		return pr.LogProb(x) + m.likelihood(x).LogProb(y)
	}
	prop := tr.X + r.Normal(0, 0.5*m.ObsNoise)
	if math.Log(r.Uniform(0, 1)) < target(prop)-target(tr.X) {
		tr.X = prop
		return true, nil
	}
	return false, nil
}

// MoveSet mixes the bootstrap and guided moves and repeats Refine
// MCMCSteps times.
func (m *RandomWalk) MoveSet() (*moves.Set[Track], error) {
	if m.ProcessNoise <= 0 || m.ObsNoise <= 0 || m.InitSpread <= 0 {
		return nil, fmt.Errorf("models: random walk noise parameters must be positive")
	}
	if len(m.Observations) == 0 {
		return nil, fmt.Errorf("%w: observation sequence is empty", ErrNoObservation)
	}

	sel, err := moves.WeightedSelect[Track]([]float64{1 - m.GuidedProb, m.GuidedProb})
	if err != nil {
		return nil, err
	}
	var kernel moves.MCMCFunc[Track]
	if m.MCMCSteps > 0 {
		kernel = moves.Repeat(m.MCMCSteps, m.Refine)
	}
	return moves.NewMixture(m.Init, []moves.MoveFunc[Track]{m.Propagate, m.Guided}, sel, kernel)
}

func Position(tr Track) float64 { return tr.X }

func Velocity(tr Track) float64 { return tr.V }

func (m *RandomWalk) Params() map[string]float64 {
	return map[string]float64{
		"process_noise": m.ProcessNoise,
		"obs_noise":     m.ObsNoise,
		"init_spread":   m.InitSpread,
		"guided_prob":   m.GuidedProb,
		"mcmc_steps":    float64(m.MCMCSteps),
	}
}
