package history

import (
	"errors"
	"math"
	"testing"
)

type point struct {
	x  float64
	lw float64
}

func (p point) LogWeight() float64 { return p.lw }

func TestPushPop(t *testing.T) {
	s := New[point]()
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}

	s.Push(Entry[point]{Number: 2, Particles: []point{{1, 0}, {2, 0}}, Accepted: 1, Resampled: true})
	s.Push(Entry[point]{Number: 1, Particles: []point{{3, -1}}, Accepted: 0})

	e, err := s.Pop()
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	if e.Number != 1 || e.Particles[0].x != 3 {
		t.Errorf("expected last pushed entry, got %+v", e)
	}

	e, err = s.Pop()
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	if e.Number != 2 || e.Accepted != 1 || !e.Resampled {
		t.Errorf("unexpected entry %+v", e)
	}

	if _, err := s.Pop(); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestClear(t *testing.T) {
	s := New[point]()
	s.Push(Entry[point]{Number: 1})
	s.Push(Entry[point]{Number: 1})
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("expected 0 entries after clear, got %d", s.Len())
	}
}

func TestEntryIntegrate(t *testing.T) {
	e := Entry[point]{Particles: []point{
		{x: 1, lw: math.Log(1)},
		{x: 4, lw: math.Log(3)},
		{x: 100, lw: math.Inf(-1)},
	}}
	got := e.Integrate(0, func(_ int, p point) float64 { return p.x })
	if math.Abs(got-3.25) > 1e-12 {
		t.Errorf("expected 3.25, got %f", got)
	}
}

func TestIntegratePathSampling(t *testing.T) {
	// f_t = t on a unit grid: integral over [0, 3] of x dx = 4.5
	s := New[point]()
	for g := 0; g < 4; g++ {
		s.Push(Entry[point]{Number: 1, Particles: []point{{x: float64(g)}}})
	}

	got, err := s.IntegratePathSampling(
		func(_ int, p point) float64 { return p.x },
		func(int) float64 { return 1 },
	)
	if err != nil {
		t.Fatalf("integrate failed: %v", err)
	}
	if math.Abs(got-4.5) > 1e-12 {
		t.Errorf("expected 4.5, got %f", got)
	}
}

func TestIntegratePathSamplingShort(t *testing.T) {
	s := New[point]()
	s.Push(Entry[point]{Number: 1, Particles: []point{{x: 5}}})
	got, err := s.IntegratePathSampling(
		func(_ int, p point) float64 { return p.x },
		func(int) float64 { return 1 },
	)
	if err != nil || got != 0 {
		t.Errorf("expected 0, nil; got %f, %v", got, err)
	}
}

func TestIntegratePathSamplingNegativeWidth(t *testing.T) {
	s := New[point]()
	s.Push(Entry[point]{Number: 1, Particles: []point{{x: 1}}})
	s.Push(Entry[point]{Number: 1, Particles: []point{{x: 2}}})
	_, err := s.IntegratePathSampling(
		func(_ int, p point) float64 { return p.x },
		func(int) float64 { return -1 },
	)
	if !errors.Is(err, ErrNegativeWidth) {
		t.Errorf("expected ErrNegativeWidth, got %v", err)
	}
}
