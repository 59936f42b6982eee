package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDeterministic(t *testing.T) {
	a := Split(42, 7)
	b := Split(42, 7)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Uint64(), b.Uint64(), "draw %d", i)
	}
}

func TestSplitIndependentStreams(t *testing.T) {
	a := Split(42, 0)
	b := Split(42, 1)
	same := 0
	for i := 0; i < 100; i++ {
		if a.Uint64() == b.Uint64() {
			same++
		}
	}
	assert.Less(t, same, 2)
}

func TestStreams(t *testing.T) {
	streams := Streams(9, 4)
	require.Len(t, streams, 4)
	assert.Equal(t, Split(9, 2).Uint64(), streams[2].Uint64())
}

func TestZeroSeedUsesDefault(t *testing.T) {
	assert.Equal(t, New(0).Uint64(), New(defaultSeed).Uint64())
}

func TestUniformRange(t *testing.T) {
	s := New(3)
	for i := 0; i < 10000; i++ {
		v := s.Uniform(0, 0.25)
		if v < 0 || v >= 0.25 {
			t.Fatalf("draw %d out of range: %f", i, v)
		}
	}
	assert.Equal(t, 2.0, s.Uniform(2, 2))
}

func TestMultinomialSumsToN(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		weights []float64
	}{
		{"uniform", 100, []float64{1, 1, 1, 1}},
		{"skewed", 1000, []float64{0.9, 0.05, 0.05}},
		{"zeros", 50, []float64{0, 2, 0, 1, 0}},
		{"single", 7, []float64{3}},
		{"tiny", 1, []float64{1e-300, 1e-300}},
	}

	s := New(11)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := make([]int, len(tt.weights))
			for rep := 0; rep < 20; rep++ {
				s.Multinomial(tt.n, tt.weights, counts)
				sum := 0
				for i, c := range counts {
					if tt.weights[i] == 0 {
						require.Zero(t, c, "zero-weight category %d selected", i)
					}
					sum += c
				}
				require.Equal(t, tt.n, sum)
			}
		})
	}
}

func TestMultinomialMean(t *testing.T) {
	s := New(5)
	weights := []float64{0.5, 0.3, 0.2}
	counts := make([]int, 3)
	totals := make([]float64, 3)
	reps := 2000
	for i := 0; i < reps; i++ {
		s.Multinomial(100, weights, counts)
		for j, c := range counts {
			totals[j] += float64(c)
		}
	}
	for j, w := range weights {
		assert.InDelta(t, 100*w, totals[j]/float64(reps), 1.0)
	}
}

func TestNormalMoments(t *testing.T) {
	s := New(8)
	n := 20000
	sum, sumsq := 0.0, 0.0
	for i := 0; i < n; i++ {
		v := s.Normal(2, 3)
		sum += v
		sumsq += v * v
	}
	mean := sum / float64(n)
	variance := sumsq/float64(n) - mean*mean
	assert.InDelta(t, 2.0, mean, 0.1)
	assert.InDelta(t, 9.0, variance, 0.5)
	assert.Equal(t, 1.5, s.Normal(1.5, 0))
}
