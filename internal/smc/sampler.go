package smc

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/smcfilter/internal/history"
	"github.com/san-kum/smcfilter/internal/parallel"
	"github.com/san-kum/smcfilter/internal/rng"
)

// Phase is the step of a generation the sampler is currently executing.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePropagate
	PhaseNormalize
	PhaseESSCheck
	PhaseResample
	PhaseMCMC
	PhaseAdvance
)

func (p Phase) String() string {
	switch p {
	case PhasePropagate:
		return "propagate"
	case PhaseNormalize:
		return "normalize"
	case PhaseESSCheck:
		return "ess-check"
	case PhaseResample:
		return "resample"
	case PhaseMCMC:
		return "mcmc"
	case PhaseAdvance:
		return "advance"
	default:
		return "idle"
	}
}

type workspace struct {
	logWeights []float64
	weights    []float64
	scratch    []float64
	counts     []int
	indices    []int
}

type Sampler[T any] struct {
	n             int
	t             int
	mode          ResampleMode
	threshold     float64
	historyMode   HistoryMode
	threads       int
	populationCap int
	seed          uint64

	particles []Particle[T]
	moves     MoveDispatcher[T]
	streams   []*rng.Stream
	ctrl      *rng.Stream

	accepted    int
	resampled   bool
	initialised bool
	phase       Phase

	logEvidence   float64
	evidenceTrail []float64

	history *history.Store[Particle[T]]
	ws      workspace
	lineage LineageRecorder
	sink    ESSSink
	logger  *zap.Logger
}

// New creates a sampler holding cfg.Particles uninitialised particles.
// Initialise must be called before iterating.
func New[T any](cfg Config, moves MoveDispatcher[T]) (*Sampler[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Sampler[T]{
		n:             cfg.Particles,
		mode:          cfg.Mode,
		historyMode:   cfg.History,
		populationCap: cfg.PopulationCap,
		seed:          cfg.Seed,
		particles:     make([]Particle[T], cfg.Particles),
		moves:         moves,
		logger:        zap.NewNop(),
	}
	s.threshold = s.absoluteThreshold(cfg.Threshold)
	s.SetNumberOfThreads(cfg.Threads)
	s.resetStreams()

	if s.historyMode == HistoryRAM {
		s.history = history.New[Particle[T]]()
	}

	return s, nil
}

func (s *Sampler[T]) absoluteThreshold(t float64) float64 {
	if t < 1 {
		return t * float64(s.n)
	}
	return t
}

func (s *Sampler[T]) resetStreams() {
	s.streams = rng.Streams(s.seed, s.n)
	s.ctrl = rng.Split(s.seed, rng.ControllerStream)
}

func (s *Sampler[T]) SetMoveSet(moves MoveDispatcher[T]) { s.moves = moves }

// SetResampleParams sets the mode and threshold. A threshold below 1 is a
// fraction of the population size; otherwise it is an absolute ESS.
func (s *Sampler[T]) SetResampleParams(mode ResampleMode, threshold float64) error {
	if _, ok := modeNames[mode]; !ok {
		return fmt.Errorf("%w: unknown resample mode %d", ErrInvalidConfig, int(mode))
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return fmt.Errorf("%w: threshold must be non-negative, got %f", ErrInvalidConfig, threshold)
	}
	s.mode = mode
	s.threshold = s.absoluteThreshold(threshold)
	return nil
}

func (s *Sampler[T]) SetNumberOfThreads(n int) {
	if n < 1 {
		n = 1
	}
	s.threads = n
}

func (s *Sampler[T]) SetPopulationCap(c int) error {
	if c < s.n {
		return fmt.Errorf("%w: population cap %d below particle count %d", ErrInvalidConfig, c, s.n)
	}
	s.populationCap = c
	return nil
}

func (s *Sampler[T]) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	s.logger = l
}

func (s *Sampler[T]) SetLineage(r LineageRecorder) { s.lineage = r }

func (s *Sampler[T]) SetESSSink(sink ESSSink) { s.sink = sink }

func (s *Sampler[T]) Number() int              { return s.n }
func (s *Sampler[T]) Time() int                { return s.t }
func (s *Sampler[T]) Mode() ResampleMode       { return s.mode }
func (s *Sampler[T]) Threshold() float64       { return s.threshold }
func (s *Sampler[T]) Threads() int             { return s.threads }
func (s *Sampler[T]) Accepted() int            { return s.accepted }
func (s *Sampler[T]) Resampled() bool          { return s.resampled }
func (s *Sampler[T]) Phase() Phase             { return s.phase }
func (s *Sampler[T]) HistoryMode() HistoryMode { return s.historyMode }

// LogEvidence is the running estimate of the log normalising constant,
// assuming move functions update log-weights additively.
func (s *Sampler[T]) LogEvidence() float64 { return s.logEvidence }

// History is the stored generations, or nil when history is off.
func (s *Sampler[T]) History() *history.Store[Particle[T]] { return s.history }

// ParticleValue, Particle and Particles hand out copies made with Clone when
// the value implements Cloner, so callers cannot edit the live population.
func (s *Sampler[T]) ParticleValue(i int) T           { return cloneValue(s.particles[i].value) }
func (s *Sampler[T]) ParticleLogWeight(i int) float64 { return s.particles[i].logWeight }
func (s *Sampler[T]) ParticleWeight(i int) float64    { return s.particles[i].Weight() }
func (s *Sampler[T]) Particle(i int) Particle[T]      { return s.particles[i].clone() }

func (s *Sampler[T]) Particles() []Particle[T] { return cloneParticles(s.particles) }

// Initialise draws generation 0 from the move set and resets the time to 0.
// Stored history is cleared; generation 0 enters it when generation 1 is
// committed, so History().Len() always equals Time().
func (s *Sampler[T]) Initialise() error {
	if s.moves == nil {
		return fmt.Errorf("%w: no move set", ErrInvalidConfig)
	}
	s.resetStreams()

	particles := make([]Particle[T], s.n)
	err := parallel.Each(s.n, s.threads, func(i int) error {
		v, lw, err := s.moves.Init(s.streams[i])
		if err != nil {
			return err
		}
		particles[i] = NewParticle(v, lw)
		return nil
	})
	if err != nil {
		return &IterationError{Generation: 0, Op: "init", Err: err}
	}

	lw := s.logWeightsOf(particles)
	if _, err := maxLogWeight(lw); err != nil {
		return &IterationError{Generation: 0, Op: "init", Err: err}
	}

	s.particles = particles
	s.t = 0
	s.accepted = 0
	s.resampled = false
	s.logEvidence = floats.LogSumExp(lw) - math.Log(float64(s.n))
	s.evidenceTrail = s.evidenceTrail[:0]

	if s.history != nil {
		s.history.Clear()
	}

	if s.lineage != nil {
		s.lineage.Rewind(-1)
		s.lineage.Record(0, s.n, nil)
	}

	s.initialised = true
	return nil
}

// ESS is the effective sample size of the current population.
func (s *Sampler[T]) ESS() (float64, error) {
	return ESS(s.logWeightsOf(s.particles))
}

// Integrate returns the weighted mean of f over the current population.
func (s *Sampler[T]) Integrate(f func(T) float64) (float64, error) {
	m, err := maxLogWeight(s.logWeightsOf(s.particles))
	if err != nil {
		return 0, err
	}
	var num, den neumaier
	for _, p := range s.particles {
		w := math.Exp(p.logWeight - m)
		if w == 0 {
			continue
		}
		num.add(w * f(p.value))
		den.add(w)
	}
	return num.value() / den.value(), nil
}

// IntegratePathSampling integrates integrand over every stored generation and
// the current one with the trapezoidal rule, width(t) being the spacing
// between generations t-1 and t.
func (s *Sampler[T]) IntegratePathSampling(integrand func(t int, p Particle[T]) float64, width func(t int) float64) (float64, error) {
	if s.history == nil {
		return 0, fmt.Errorf("%w: path sampling integral needs history", ErrMissingHistory)
	}

	s.history.Push(history.Entry[Particle[T]]{
		Number:    s.n,
		Particles: s.particles,
		Accepted:  s.accepted,
		Resampled: s.resampled,
	})
	res, err := s.history.IntegratePathSampling(integrand, width)
	if _, popErr := s.history.Pop(); popErr != nil {
		invariant("history lost the current generation: %v", popErr)
	}
	return res, err
}

// Iterate advances one generation with the fixed resampling policy.
func (s *Sampler[T]) Iterate() error {
	_, err := s.IterateEss()
	return err
}

// IterateUntil iterates until Time() reaches t. A population-cap report from
// adaptive resampling does not stop the loop; the last one is returned.
func (s *Sampler[T]) IterateUntil(t int) error {
	var capErr error
	for s.t < t {
		if _, err := s.IterateEss(); err != nil {
			if errors.Is(err, ErrPopulationCapExceeded) {
				capErr = err
				continue
			}
			return err
		}
	}
	return capErr
}

// IterateEss advances one generation: propagate, normalise, resample when the
// ESS is below threshold, run one MCMC pass, advance time. It returns the ESS
// measured after propagation. On error the sampler is left as it was.
func (s *Sampler[T]) IterateEss() (float64, error) {
	if !s.initialised {
		return 0, ErrNotInitialised
	}
	s.checkSize()
	defer func() { s.phase = PhaseIdle }()

	next := s.t + 1
	work := cloneParticles(s.particles)
	lse0 := floats.LogSumExp(s.logWeightsOf(work))

	s.phase = PhasePropagate
	if err := s.propagate(next, work); err != nil {
		return 0, s.fail(next, err)
	}

	s.phase = PhaseNormalize
	lse1, err := s.normalise(work)
	if err != nil {
		return 0, s.fail(next, err)
	}

	s.phase = PhaseESSCheck
	ess, err := ESS(s.logWeightsOf(work))
	if err != nil {
		return 0, s.fail(next, err)
	}

	var (
		parents   []int
		accepted  int
		resampled bool
		mcmcDone  bool
		capped    bool
	)
	if ess < s.threshold {
		resampled = true
		s.phase = PhaseResample
		if s.mode == Adaptive {
			var g growth[T]
			g, err = s.growByMCMC(next, work, ess)
			if err != nil {
				return 0, s.fail(next, err)
			}
			work, parents, accepted, capped = g.population, g.parents, g.accepted, g.capped
			mcmcDone = true
		} else {
			parents, err = s.resampleInPlace(s.mode, work)
			if err != nil {
				return 0, s.fail(next, err)
			}
		}
	}

	if !mcmcDone {
		s.phase = PhaseMCMC
		accepted, err = s.mcmc(next, work)
		if err != nil {
			return 0, s.fail(next, err)
		}
	}

	s.phase = PhaseAdvance
	s.commit(work, parents, accepted, resampled, lse1-lse0)

	s.logger.Debug("generation complete",
		zap.Int("generation", s.t),
		zap.Float64("ess", ess),
		zap.Bool("resampled", resampled),
		zap.Int("accepted", accepted))

	if capped {
		s.logger.Warn("population cap reached",
			zap.Int("generation", s.t),
			zap.Int("cap", s.populationCap))
		return ess, &IterationError{Generation: s.t, Op: PhaseResample.String(), Err: ErrPopulationCapExceeded}
	}
	return ess, nil
}

// IterateBack undoes the most recent generation from the stored history.
func (s *Sampler[T]) IterateBack() error {
	if s.history == nil {
		return fmt.Errorf("%w: cannot undo generation %d", ErrMissingHistory, s.t)
	}
	if s.t == 0 || s.history.Len() == 0 {
		return fmt.Errorf("%w: no earlier generation than %d", ErrMissingHistory, s.t)
	}

	e, err := s.history.Pop()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingHistory, err)
	}

	s.n = e.Number
	s.particles = e.Particles
	s.accepted = e.Accepted
	s.resampled = e.Resampled
	s.t--
	if k := len(s.evidenceTrail); k > 0 {
		s.logEvidence = s.evidenceTrail[k-1]
		s.evidenceTrail = s.evidenceTrail[:k-1]
	}
	if s.lineage != nil {
		s.lineage.Rewind(s.t)
	}
	return nil
}

// MoveParticles applies one move to every particle at time Time()+1 without
// advancing the generation.
func (s *Sampler[T]) MoveParticles() error {
	if err := s.propagate(s.t+1, s.particles); err != nil {
		return &IterationError{Generation: s.t + 1, Op: PhasePropagate.String(), Err: err}
	}
	return nil
}

// Resample resamples the current population in place with a fixed-size
// scheme, resetting every log-weight to 0.
func (s *Sampler[T]) Resample(mode ResampleMode) error {
	s.checkSize()
	_, err := s.resampleInPlace(mode, s.particles)
	return err
}

// SampleMultinomial draws m parent indices by multinomial sampling.
func (s *Sampler[T]) SampleMultinomial(m int) ([]int, error) { return s.sample(Multinomial, m) }

// SampleResidual draws m parent indices by residual sampling.
func (s *Sampler[T]) SampleResidual(m int) ([]int, error) { return s.sample(Residual, m) }

// SampleStratified draws m parent indices by stratified sampling.
func (s *Sampler[T]) SampleStratified(m int) ([]int, error) { return s.sample(Stratified, m) }

// SampleSystematic draws m parent indices by systematic sampling.
func (s *Sampler[T]) SampleSystematic(m int) ([]int, error) { return s.sample(Systematic, m) }

func (s *Sampler[T]) sample(mode ResampleMode, m int) ([]int, error) {
	w, err := normalisedWeights(nil, s.logWeightsOf(s.particles))
	if err != nil {
		return nil, err
	}
	counts := make([]int, len(w))
	if err := drawCounts(mode, s.ctrl, w, m, counts, nil); err != nil {
		return nil, err
	}
	return CountsToIndices(counts, nil), nil
}

// StreamParticle writes particle i as "value weight".
func (s *Sampler[T]) StreamParticle(w io.Writer, i int) error {
	_, err := fmt.Fprintln(w, s.particles[i].String())
	return err
}

// StreamParticles writes every particle, one per line.
func (s *Sampler[T]) StreamParticles(w io.Writer) error {
	for i := range s.particles {
		if err := s.StreamParticle(w, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sampler[T]) String() string {
	var b strings.Builder
	b.WriteString("Sampler Configuration:\n")
	b.WriteString("======================\n")
	fmt.Fprintf(&b, "Evolution Time:    %d\n", s.t)
	fmt.Fprintf(&b, "Particle Set Size: %d\n", s.n)
	fmt.Fprintf(&b, "Resample Mode:     %s (threshold %.2f)\n", s.mode, s.threshold)
	fmt.Fprintf(&b, "History:           %s\n\n", s.historyMode)
	b.WriteString("Particle Set:\n")
	_ = s.StreamParticles(&b)
	return b.String()
}

func (s *Sampler[T]) checkSize() {
	if len(s.particles) != s.n {
		invariant("population holds %d particles, want %d", len(s.particles), s.n)
	}
}

func (s *Sampler[T]) fail(generation int, err error) error {
	return &IterationError{Generation: generation, Op: s.phase.String(), Err: err}
}

// commit publishes a finished generation. The outgoing population becomes the
// history entry, so nothing is copied.
func (s *Sampler[T]) commit(work []Particle[T], parents []int, accepted int, resampled bool, logIncrement float64) {
	if len(work) != s.n {
		invariant("generation %d ends with %d particles, want %d", s.t+1, len(work), s.n)
	}
	if s.history != nil {
		s.history.Push(history.Entry[Particle[T]]{
			Number:    s.n,
			Particles: s.particles,
			Accepted:  s.accepted,
			Resampled: s.resampled,
		})
	}
	if s.lineage != nil {
		s.lineage.Record(s.t+1, s.n, parents)
	}

	s.evidenceTrail = append(s.evidenceTrail, s.logEvidence)
	s.logEvidence += logIncrement
	s.particles = work
	s.accepted = accepted
	s.resampled = resampled
	s.t++
}

func (s *Sampler[T]) logWeightsOf(ps []Particle[T]) []float64 {
	s.ws.logWeights = growFloats(s.ws.logWeights, len(ps))
	for i := range ps {
		s.ws.logWeights[i] = ps[i].logWeight
	}
	return s.ws.logWeights
}

func (s *Sampler[T]) propagate(t int, ps []Particle[T]) error {
	return parallel.Each(len(ps), s.threads, func(i int) error {
		return s.moves.Move(t, &ps[i], s.streams[i])
	})
}

func (s *Sampler[T]) mcmc(t int, ps []Particle[T]) (int, error) {
	return parallel.Count(len(ps), s.threads, func(i int) (bool, error) {
		return s.moves.MCMC(t, &ps[i], s.streams[i%s.n])
	})
}

// normalise shifts log-weights so the largest is 0 and returns the
// log-sum-exp of the weights before the shift.
func (s *Sampler[T]) normalise(ps []Particle[T]) (float64, error) {
	lw := s.logWeightsOf(ps)
	m, err := maxLogWeight(lw)
	if err != nil {
		return 0, err
	}
	lse := floats.LogSumExp(lw)
	for i := range ps {
		ps[i].AddToLogWeight(-m)
	}
	return lse, nil
}

// resampleInPlace replaces ps by an equally weighted resample of itself and
// returns the parent of every slot.
func (s *Sampler[T]) resampleInPlace(mode ResampleMode, ps []Particle[T]) ([]int, error) {
	n := len(ps)
	w, err := normalisedWeights(s.ws.weights, s.logWeightsOf(ps))
	if err != nil {
		return nil, err
	}
	s.ws.weights = w
	s.ws.counts = growInts(s.ws.counts, n)
	s.ws.scratch = growFloats(s.ws.scratch, n)
	if err := drawCounts(mode, s.ctrl, w, n, s.ws.counts, s.ws.scratch); err != nil {
		return nil, err
	}
	s.ws.indices = RemapInPlace(s.ws.counts, s.ws.indices)

	for i := range ps {
		if p := s.ws.indices[i]; p != i {
			ps[i] = ps[p].clone()
		}
		ps[i].logWeight = 0
	}

	if s.lineage == nil {
		return nil, nil
	}
	return append([]int(nil), s.ws.indices...), nil
}
