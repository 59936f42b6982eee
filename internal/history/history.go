// Package history stores per-generation snapshots of a particle population.
//
// The store is an append-only stack: the sampler pushes one [Entry] before
// each generation and pops it to undo a generation. Stored generations can be
// combined into a path-sampling estimate with [Store.IntegratePathSampling].
package history

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
)

var (
	// ErrEmpty indicates a pop from a store holding no generations.
	ErrEmpty = errors.New("history: no stored generations")

	// ErrNegativeWidth indicates a width function returned a negative spacing.
	ErrNegativeWidth = errors.New("history: negative generation width")
)

// Weighted is satisfied by anything carrying a natural-log weight.
type Weighted interface {
	LogWeight() float64
}

// Entry is one stored generation.
type Entry[P Weighted] struct {
	Number    int
	Particles []P
	Accepted  int
	Resampled bool
}

type Store[P Weighted] struct {
	entries []Entry[P]
}

func New[P Weighted]() *Store[P] {
	return &Store[P]{entries: make([]Entry[P], 0, 16)}
}

// Push appends a generation. The caller hands over ownership of Particles.
func (s *Store[P]) Push(e Entry[P]) {
	s.entries = append(s.entries, e)
}

// Pop removes and returns the most recent generation.
func (s *Store[P]) Pop() (Entry[P], error) {
	if len(s.entries) == 0 {
		return Entry[P]{}, ErrEmpty
	}
	last := len(s.entries) - 1
	e := s.entries[last]
	s.entries[last] = Entry[P]{}
	s.entries = s.entries[:last]
	return e, nil
}

func (s *Store[P]) Len() int { return len(s.entries) }

// At returns generation t (0 is the oldest stored).
func (s *Store[P]) At(t int) Entry[P] { return s.entries[t] }

func (s *Store[P]) Clear() {
	clear(s.entries)
	s.entries = s.entries[:0]
}

// Integrate returns the weighted mean of f over one stored generation.
func (e Entry[P]) Integrate(t int, f func(t int, p P) float64) float64 {
	if len(e.Particles) == 0 {
		return 0
	}
	maxW := math.Inf(-1)
	for _, p := range e.Particles {
		if w := p.LogWeight(); w > maxW {
			maxW = w
		}
	}
	if math.IsInf(maxW, -1) {
		return math.NaN()
	}

	num, den := 0.0, 0.0
	for _, p := range e.Particles {
		w := math.Exp(p.LogWeight() - maxW)
		if w == 0 {
			continue
		}
		num += w * f(t, p)
		den += w
	}
	return num / den
}

// IntegratePathSampling estimates the path-sampling integral over all stored
// generations with the trapezoidal rule. integrand is averaged under each
// generation's weights; width(t) is the spacing between generations t-1 and
// t. Fewer than two stored generations integrate to zero.
func (s *Store[P]) IntegratePathSampling(integrand func(t int, p P) float64, width func(t int) float64) (float64, error) {
	n := len(s.entries)
	if n < 2 {
		return 0, nil
	}

	x := make([]float64, n)
	f := make([]float64, n)
	for t, e := range s.entries {
		if t > 0 {
			w := width(t)
			if w < 0 || math.IsNaN(w) {
				return 0, fmt.Errorf("%w: generation %d width %g", ErrNegativeWidth, t, w)
			}
			x[t] = x[t-1] + w
		}
		f[t] = e.Integrate(t, integrand)
	}

	return integrate.Trapezoidal(x, f), nil
}
