package smc

import (
	"fmt"
	"math"

	"github.com/san-kum/smcfilter/internal/rng"
)

// Counts draws replication counts for m offspring from a population with the
// given log-weights. sum(counts) == m for every fixed-size mode.
func Counts(mode ResampleMode, r rng.Source, logWeights []float64, m int) ([]int, error) {
	w, err := normalisedWeights(nil, logWeights)
	if err != nil {
		return nil, err
	}
	counts := make([]int, len(w))
	if err := drawCounts(mode, r, w, m, counts, nil); err != nil {
		return nil, err
	}
	return counts, nil
}

// drawCounts fills counts from normalised weights w. scratch is reused by the
// residual scheme and may be nil.
func drawCounts(mode ResampleMode, r rng.Source, w []float64, m int, counts []int, scratch []float64) error {
	switch mode {
	case Multinomial:
		r.Multinomial(m, w, counts)
	case Residual:
		residualCounts(r, w, m, counts, scratch)
	case Stratified:
		stratifiedCounts(r, w, m, counts, true)
	case Systematic:
		stratifiedCounts(r, w, m, counts, false)
	default:
		return fmt.Errorf("%w: %s is not a fixed-size resampling mode", ErrInvalidConfig, mode)
	}
	return nil
}

// residualFloors writes floor(m*w_i) into floors and m*w_i minus that floor
// into remainder, returning the number of offspring still to draw.
func residualFloors(w []float64, m int, floors []int, remainder []float64) int {
	left := m
	for i, wi := range w {
		scaled := float64(m) * wi
		f := math.Floor(scaled)
		floors[i] = int(f)
		remainder[i] = scaled - f
		left -= floors[i]
	}
	// Rounding in the normalised weights can push the floors one over m.
	for left < 0 {
		big := 0
		for i := range floors {
			if floors[i] > floors[big] {
				big = i
			}
		}
		floors[big]--
		remainder[big] += 1
		left++
	}
	return left
}

func residualCounts(r rng.Source, w []float64, m int, counts []int, scratch []float64) {
	remainder := growFloats(scratch, len(w))
	floors := make([]int, len(w))
	left := residualFloors(w, m, floors, remainder)
	r.Multinomial(left, remainder, counts)
	for i := range counts {
		counts[i] += floors[i]
	}
}

// stratifiedCounts splits [0,1) into m strata and picks, for stratum j, the
// first particle whose cumulative weight exceeds j/m + u_j. With fresh set a
// new offset is drawn for every stratum (stratified), otherwise one offset is
// shared by all strata (systematic).
func stratifiedCounts(r rng.Source, w []float64, m int, counts []int, fresh bool) {
	clear(counts)
	if m <= 0 {
		return
	}

	last := -1
	var total neumaier
	for i, wi := range w {
		if wi > 0 {
			last = i
		}
		total.add(wi)
	}
	if last < 0 {
		return
	}
	sum := total.value()

	step := 1.0 / float64(m)
	u := r.Uniform(0, step)
	cum := 0.0
	j := 0
	for i := 0; i < len(w) && j < m; i++ {
		cum += w[i] / sum
		for j < m && cum > float64(j)*step+u {
			counts[i]++
			j++
			if fresh && j < m {
				u = r.Uniform(0, step)
			}
		}
	}

	// The cumulative sum can fall a rounding error short of the last
	// stratum; those strata go to the last particle that carries weight.
	if j < m {
		counts[last] += m - j
	}
}

// CountsToIndices expands counts into an ascending parent-index vector.
func CountsToIndices(counts []int, dst []int) []int {
	total := 0
	for _, c := range counts {
		total += c
	}
	dst = growInts(dst, total)
	j := 0
	for i, c := range counts {
		for k := 0; k < c; k++ {
			dst[j] = i
			j++
		}
	}
	return dst
}

// IndicesToCounts is the inverse of CountsToIndices for a population of n.
func IndicesToCounts(indices []int, n int) []int {
	counts := make([]int, n)
	for _, idx := range indices {
		counts[idx]++
	}
	return counts
}

// RemapInPlace converts counts (summing to len(counts)) into a parent vector
// for in-place replication: every particle with a positive count keeps its
// own slot, and its extra copies fill the zero-count slots in index order.
// Since parent slots are never targets, copying indices[i] into slot i in any
// order never reads an overwritten slot.
func RemapInPlace(counts []int, indices []int) []int {
	n := len(counts)
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != n {
		invariant("replication counts sum to %d, want %d", total, n)
	}
	indices = growInts(indices, n)
	j := 0
	for i := 0; i < n; i++ {
		if counts[i] == 0 {
			continue
		}
		indices[i] = i
		for extra := counts[i] - 1; extra > 0; extra-- {
			for j < n && counts[j] > 0 {
				j++
			}
			if j == n {
				invariant("replication counts sum past %d", n)
			}
			indices[j] = i
			j++
		}
	}
	return indices
}
