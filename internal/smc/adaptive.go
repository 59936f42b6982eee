package smc

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/smcfilter/internal/parallel"
)

// growth is the outcome of an adaptive resampling step.
type growth[T any] struct {
	population []Particle[T]
	parents    []int
	accepted   int
	capped     bool
}

// IterateEssVariable advances one generation with a variable population.
// Fresh batches are propagated from the previous generation until the ESS of
// the pooled population reaches the threshold or the population cap is hit;
// the pool is then downsampled back to N by stratified resampling. Weights
// across batches are kept on a common scale by a running maximum. One MCMC
// pass runs on the final population.
//
// If the cap stops growth first, the generation still completes and the
// returned error wraps ErrPopulationCapExceeded.
func (s *Sampler[T]) IterateEssVariable() (float64, error) {
	if !s.initialised {
		return 0, ErrNotInitialised
	}
	s.checkSize()
	defer func() { s.phase = PhaseIdle }()

	next := s.t + 1
	basis := s.particles
	lse0 := floats.LogSumExp(s.logWeightsOf(basis))

	var (
		pool      = make([]Particle[T], 0, s.n)
		roundLSE  []float64
		globalMax = math.Inf(-1)
		ess       float64
		round     int
	)
	for {
		k := min(s.n, s.populationCap-len(pool))
		fresh := cloneParticles(basis[:k])

		s.phase = PhasePropagate
		if err := s.propagate(next, fresh); err != nil {
			return 0, s.fail(next, err)
		}

		s.phase = PhaseNormalize
		localMax, err := scanLogWeights(s.logWeightsOf(fresh))
		if err != nil {
			return 0, s.fail(next, err)
		}
		if math.IsInf(localMax, -1) {
			roundLSE = append(roundLSE, localMax)
		} else {
			roundLSE = append(roundLSE, floats.LogSumExp(s.ws.logWeights))
		}

		if len(pool) == 0 || localMax > globalMax {
			if !math.IsInf(globalMax, -1) {
				for i := range pool {
					pool[i].AddToLogWeight(globalMax - localMax)
				}
			}
			globalMax = localMax
		}
		if !math.IsInf(globalMax, -1) {
			for i := range fresh {
				fresh[i].AddToLogWeight(-globalMax)
			}
		}
		pool = append(pool, fresh...)
		round++

		s.phase = PhaseESSCheck
		ess, err = ESS(s.logWeightsOf(pool))
		if err != nil {
			return 0, s.fail(next, err)
		}
		if s.sink != nil {
			if err := s.sink.RecordESS(next, round, ess, len(pool)); err != nil {
				return 0, s.fail(next, err)
			}
		}
		s.logger.Debug("growth round",
			zap.Int("generation", next),
			zap.Int("round", round),
			zap.Float64("ess", ess),
			zap.Int("size", len(pool)))

		if ess >= s.threshold || len(pool) >= s.populationCap {
			break
		}
	}
	capped := ess < s.threshold
	grown := len(pool)

	var (
		parents   []int
		resampled bool
	)
	if len(pool) > s.n {
		s.phase = PhaseResample
		resampled = true
		down, idx, err := s.downsample(pool)
		if err != nil {
			return 0, s.fail(next, err)
		}
		if s.lineage != nil {
			parents = make([]int, s.n)
			for i, p := range idx {
				parents[i] = p % s.n
			}
		}
		pool = down
	}

	s.phase = PhaseMCMC
	accepted, err := s.mcmc(next, pool)
	if err != nil {
		return 0, s.fail(next, err)
	}

	// Mean incremental weight over every grown particle, relative to the
	// mean weight of the previous generation.
	logIncrement := floats.LogSumExp(roundLSE) - math.Log(float64(grown)) -
		(lse0 - math.Log(float64(s.n)))

	s.phase = PhaseAdvance
	s.commit(pool, parents, accepted, resampled, logIncrement)

	s.logger.Debug("generation complete",
		zap.Int("generation", s.t),
		zap.Int("rounds", round),
		zap.Float64("ess", ess),
		zap.Bool("resampled", resampled),
		zap.Int("accepted", accepted))

	if capped {
		s.logger.Warn("population cap reached",
			zap.Int("generation", s.t),
			zap.Int("cap", s.populationCap),
			zap.Float64("ess", ess))
		return ess, &IterationError{Generation: s.t, Op: PhaseResample.String(), Err: ErrPopulationCapExceeded}
	}
	return ess, nil
}

// growByMCMC grows the population by duplicating stratified-selected
// particles and refining each copy with one MCMC step, until the ESS reaches
// the threshold or the population cap is hit, then downsamples to N. No
// further MCMC pass is due for the generation.
func (s *Sampler[T]) growByMCMC(t int, ps []Particle[T], ess float64) (growth[T], error) {
	pool := ps
	origin := make([]int, len(ps))
	for i := range origin {
		origin[i] = i
	}

	accepted := 0
	round := 0
	for ess < s.threshold && len(pool) < s.populationCap {
		m := min(s.n, s.populationCap-len(pool))

		w, err := normalisedWeights(s.ws.weights, s.logWeightsOf(pool))
		if err != nil {
			return growth[T]{}, err
		}
		s.ws.weights = w
		s.ws.counts = growInts(s.ws.counts, len(pool))
		stratifiedCounts(s.ctrl, w, m, s.ws.counts, true)
		s.ws.indices = CountsToIndices(s.ws.counts, s.ws.indices)

		fresh := make([]Particle[T], m)
		for k, p := range s.ws.indices {
			fresh[k] = pool[p].clone()
			origin = append(origin, origin[p])
		}

		s.phase = PhaseMCMC
		a, err := parallel.Count(m, s.threads, func(k int) (bool, error) {
			return s.moves.MCMC(t, &fresh[k], s.streams[k])
		})
		if err != nil {
			return growth[T]{}, err
		}
		accepted += a
		pool = append(pool, fresh...)
		round++

		s.phase = PhaseESSCheck
		ess, err = ESS(s.logWeightsOf(pool))
		if err != nil {
			return growth[T]{}, err
		}
		if s.sink != nil {
			if err := s.sink.RecordESS(t, round, ess, len(pool)); err != nil {
				return growth[T]{}, err
			}
		}
		s.logger.Debug("mcmc growth round",
			zap.Int("generation", t),
			zap.Int("round", round),
			zap.Float64("ess", ess),
			zap.Int("size", len(pool)))
	}

	s.phase = PhaseResample
	down, idx, err := s.downsample(pool)
	if err != nil {
		return growth[T]{}, err
	}

	g := growth[T]{population: down, accepted: accepted, capped: ess < s.threshold}
	if s.lineage != nil {
		g.parents = make([]int, len(idx))
		for i, p := range idx {
			g.parents[i] = origin[p]
		}
	}
	return g, nil
}

// downsample draws N particles from pool by stratified resampling. The result
// is equally weighted; idx holds the pool index of every survivor.
func (s *Sampler[T]) downsample(pool []Particle[T]) ([]Particle[T], []int, error) {
	w, err := normalisedWeights(s.ws.weights, s.logWeightsOf(pool))
	if err != nil {
		return nil, nil, err
	}
	s.ws.weights = w
	s.ws.counts = growInts(s.ws.counts, len(pool))
	stratifiedCounts(s.ctrl, w, s.n, s.ws.counts, true)
	idx := CountsToIndices(s.ws.counts, nil)

	out := make([]Particle[T], s.n)
	for i, p := range idx {
		out[i] = pool[p].clone()
		out[i].logWeight = 0
	}
	return out, idx, nil
}

// scanLogWeights is maxLogWeight without the all-zero check: a batch with no
// surviving weight is allowed as long as the pool as a whole has some.
func scanLogWeights(logWeights []float64) (float64, error) {
	m := math.Inf(-1)
	for _, w := range logWeights {
		if math.IsNaN(w) || math.IsInf(w, 1) {
			return 0, ErrDegenerateWeights
		}
		if w > m {
			m = w
		}
	}
	return m, nil
}
