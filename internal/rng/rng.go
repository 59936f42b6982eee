// Package rng provides the random sources consumed by the sampler.
//
// A [Stream] wraps a PCG generator. Independent streams are derived from a
// master seed with [Split], so that every particle index can own its own
// stream and parallel work never shares generator state:
//
//	streams := rng.Streams(seed, n)
//	ctrl := rng.Split(seed, rng.ControllerStream)
//
// # Thread Safety
//
// A Stream is NOT safe for concurrent use. Give each goroutine its own.
package rng

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ControllerStream is the stream id reserved for the sampler itself
// (resampling draws). Particle streams use ids 0..N-1.
const ControllerStream = ^uint64(0)

const defaultSeed uint64 = 1

// Source is the random source the sampler and the move functions consume.
type Source interface {
	// Uniform returns a draw from [low, high).
	Uniform(low, high float64) float64
	// Normal returns a draw from N(mu, sigma^2).
	Normal(mu, sigma float64) float64
	// Multinomial fills counts with an n-trial multinomial draw over the
	// (unnormalised, non-negative) weights. sum(counts) == n.
	Multinomial(n int, weights []float64, counts []int)
}

type Stream struct {
	src *rand.PCG
	r   *rand.Rand
}

// New returns a stream seeded from seed. A zero seed maps to a fixed default.
func New(seed uint64) *Stream {
	if seed == 0 {
		seed = defaultSeed
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Stream{src: src, r: rand.New(src)}
}

// Split derives an independent stream from a master seed and a stream id.
func Split(master, stream uint64) *Stream {
	return New(deriveSeed(master, stream))
}

// Streams returns n streams Split(master, 0..n-1).
func Streams(master uint64, n int) []*Stream {
	out := make([]*Stream, n)
	for i := range out {
		out[i] = Split(master, uint64(i))
	}
	return out
}

// deriveSeed is a SplitMix64 finaliser over (parent, stream).
func deriveSeed(parent, stream uint64) uint64 {
	x := parent ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	if x == 0 {
		x = defaultSeed
	}
	return x
}

// Uint64 makes a Stream usable as a rand.Source.
func (s *Stream) Uint64() uint64 { return s.src.Uint64() }

// Rand exposes the underlying generator for callers that need more than Source.
func (s *Stream) Rand() *rand.Rand { return s.r }

func (s *Stream) Uniform(low, high float64) float64 {
	if high <= low {
		return low
	}
	v := low + (high-low)*s.r.Float64()
	if v >= high {
		return low
	}
	return v
}

func (s *Stream) Normal(mu, sigma float64) float64 {
	if sigma <= 0 {
		return mu
	}
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: s.src}.Rand()
}

// Multinomial draws by sequential conditional binomials. The last index with
// positive weight absorbs whatever remains, so the total is exact and no
// zero-weight category is ever chosen.
func (s *Stream) Multinomial(n int, weights []float64, counts []int) {
	total := 0.0
	last := -1
	for i, w := range weights {
		counts[i] = 0
		if w > 0 {
			total += w
			last = i
		}
	}
	if n <= 0 || last < 0 {
		return
	}

	remaining := n
	rest := total
	for i, w := range weights {
		if remaining == 0 {
			break
		}
		if w <= 0 {
			continue
		}
		if i == last {
			counts[i] = remaining
			break
		}
		p := w / rest
		rest -= w
		var k int
		switch {
		case p >= 1:
			k = remaining
		case p <= 0:
			k = 0
		default:
			k = int(distuv.Binomial{N: float64(remaining), P: p, Src: s.src}.Rand())
		}
		if k > remaining {
			k = remaining
		}
		counts[i] = k
		remaining -= k
	}
}
