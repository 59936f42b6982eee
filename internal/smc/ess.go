package smc

import (
	"math"
)

// neumaier is a compensated running sum.
type neumaier struct {
	sum, c float64
}

func (n *neumaier) add(x float64) {
	t := n.sum + x
	if math.Abs(n.sum) >= math.Abs(x) {
		n.c += (n.sum - t) + x
	} else {
		n.c += (x - t) + n.sum
	}
	n.sum = t
}

func (n *neumaier) value() float64 { return n.sum + n.c }

// maxLogWeight returns the largest log-weight, or ErrDegenerateWeights when a
// weight is NaN or +Inf or when every weight is -Inf.
func maxLogWeight(logWeights []float64) (float64, error) {
	m := math.Inf(-1)
	for _, w := range logWeights {
		if math.IsNaN(w) || math.IsInf(w, 1) {
			return 0, ErrDegenerateWeights
		}
		if w > m {
			m = w
		}
	}
	if math.IsInf(m, -1) {
		return 0, ErrDegenerateWeights
	}
	return m, nil
}

// ESS returns the effective sample size of a set of log-weights,
// (sum w)^2 / sum w^2, evaluated on max-shifted weights. The result lies in
// [1, len(logWeights)].
func ESS(logWeights []float64) (float64, error) {
	m, err := maxLogWeight(logWeights)
	if err != nil {
		return 0, err
	}

	var s1, s2 neumaier
	for _, lw := range logWeights {
		w := math.Exp(lw - m)
		s1.add(w)
		s2.add(w * w)
	}

	a, b := s1.value(), s2.value()
	ess := a * a / b
	n := float64(len(logWeights))
	if ess > n {
		ess = n
	}
	if ess < 1 {
		ess = 1
	}
	return ess, nil
}

// normalisedWeights writes exp(lw - max) / sum into dst.
func normalisedWeights(dst, logWeights []float64) ([]float64, error) {
	m, err := maxLogWeight(logWeights)
	if err != nil {
		return nil, err
	}
	dst = growFloats(dst, len(logWeights))
	var s neumaier
	for i, lw := range logWeights {
		dst[i] = math.Exp(lw - m)
		s.add(dst[i])
	}
	total := s.value()
	for i := range dst {
		dst[i] /= total
	}
	return dst, nil
}

func growFloats(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

func growInts(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	return s[:n]
}
