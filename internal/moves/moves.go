// Package moves assembles sampler move sets from plain functions.
//
// A [Set] bundles an initialiser, one or more propagation moves and an
// optional MCMC kernel, and satisfies smc.MoveDispatcher. With several moves
// a selector picks one per particle per generation.
package moves

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/smcfilter/internal/rng"
	"github.com/san-kum/smcfilter/internal/smc"
)

var (
	ErrNoMoves        = errors.New("moves: at least one move is required")
	ErrNoInit         = errors.New("moves: initialiser is required")
	ErrBadSelection   = errors.New("moves: selector returned an out-of-range move")
	ErrBadProbability = errors.New("moves: invalid selection probabilities")
)

// InitFunc draws a generation-0 value and its log-weight.
type InitFunc[T any] func(r rng.Source) (T, float64, error)

// MoveFunc propagates p to time t, updating its value and log-weight.
type MoveFunc[T any] func(t int, p *smc.Particle[T], r rng.Source) error

type MCMCFunc[T any] func(t int, p *smc.Particle[T], r rng.Source) (bool, error)

// SelectFunc picks which of the set's moves to apply to p at time t.
type SelectFunc[T any] func(t int, p smc.Particle[T], r rng.Source) int

type Set[T any] struct {
	init     InitFunc[T]
	moves    []MoveFunc[T]
	mcmc     MCMCFunc[T]
	selectFn SelectFunc[T]
}

// New returns a set with a single move. mcmc may be nil.
func New[T any](init InitFunc[T], move MoveFunc[T], mcmc MCMCFunc[T]) (*Set[T], error) {
	if move == nil {
		return nil, ErrNoMoves
	}
	return NewMixture(init, []MoveFunc[T]{move}, nil, mcmc)
}

// NewMixture returns a set choosing among several moves with sel. sel may be
// nil only when there is exactly one move.
func NewMixture[T any](init InitFunc[T], moves []MoveFunc[T], sel SelectFunc[T], mcmc MCMCFunc[T]) (*Set[T], error) {
	if init == nil {
		return nil, ErrNoInit
	}
	if len(moves) == 0 {
		return nil, ErrNoMoves
	}
	for i, m := range moves {
		if m == nil {
			return nil, fmt.Errorf("%w: move %d is nil", ErrNoMoves, i)
		}
	}
	if sel == nil && len(moves) > 1 {
		return nil, fmt.Errorf("moves: %d moves need a selector", len(moves))
	}
	return &Set[T]{
		init:     init,
		moves:    append([]MoveFunc[T](nil), moves...),
		mcmc:     mcmc,
		selectFn: sel,
	}, nil
}

func (s *Set[T]) Init(r rng.Source) (T, float64, error) {
	return s.init(r)
}

func (s *Set[T]) Move(t int, p *smc.Particle[T], r rng.Source) error {
	if len(s.moves) == 1 {
		return s.moves[0](t, p, r)
	}
	k := s.selectFn(t, *p, r)
	if k < 0 || k >= len(s.moves) {
		return fmt.Errorf("%w: %d of %d", ErrBadSelection, k, len(s.moves))
	}
	return s.moves[k](t, p, r)
}

// MCMC runs the kernel, or reports no move when the set has none.
func (s *Set[T]) MCMC(t int, p *smc.Particle[T], r rng.Source) (bool, error) {
	if s.mcmc == nil {
		return false, nil
	}
	return s.mcmc(t, p, r)
}

func (s *Set[T]) SetMCMC(f MCMCFunc[T]) { s.mcmc = f }

func (s *Set[T]) Len() int { return len(s.moves) }

// WeightedSelect returns a selector drawing move k with probability
// probs[k]/sum(probs), independent of time and particle.
func WeightedSelect[T any](probs []float64) (SelectFunc[T], error) {
	if len(probs) == 0 {
		return nil, ErrBadProbability
	}
	cum := make([]float64, len(probs))
	total := 0.0
	for i, p := range probs {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: probs[%d] = %g", ErrBadProbability, i, p)
		}
		total += p
		cum[i] = total
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: probabilities sum to zero", ErrBadProbability)
	}

	last := len(cum) - 1
	for last > 0 && probs[last] == 0 {
		last--
	}
	return func(_ int, _ smc.Particle[T], r rng.Source) int {
		u := r.Uniform(0, total)
		for i, c := range cum {
			if u < c {
				return i
			}
		}
		return last
	}, nil
}

// Repeat applies f k times and reports whether any step was accepted.
func Repeat[T any](k int, f MCMCFunc[T]) MCMCFunc[T] {
	return func(t int, p *smc.Particle[T], r rng.Source) (bool, error) {
		accepted := false
		for i := 0; i < k; i++ {
			ok, err := f(t, p, r)
			if err != nil {
				return accepted, err
			}
			accepted = accepted || ok
		}
		return accepted, nil
	}
}
