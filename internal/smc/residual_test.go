package smc

import (
	"math"
	"testing"

	"github.com/san-kum/smcfilter/internal/rng"
)

func TestResidualFloorsExact(t *testing.T) {
	r := rng.New(5)
	for trial := 0; trial < 2000; trial++ {
		n := 2 + trial%30
		m := 1 + trial%97
		w := make([]float64, n)
		total := 0.0
		for i := range w {
			w[i] = r.Uniform(0, 1)
			if i%7 == 3 {
				w[i] = 0
			}
			total += w[i]
		}
		for i := range w {
			w[i] /= total
		}

		floors := make([]int, n)
		remainder := make([]float64, n)
		left := residualFloors(w, m, floors, remainder)

		assigned := 0
		for i, wi := range w {
			want := int(math.Floor(float64(m) * wi))
			if floors[i] != want {
				t.Fatalf("trial %d: expected floor %d for weight %g, got %d", trial, want, wi, floors[i])
			}
			if remainder[i] < 0 || remainder[i] >= 1 {
				t.Fatalf("trial %d: remainder %g out of [0, 1)", trial, remainder[i])
			}
			assigned += floors[i]
		}
		if assigned+left != m {
			t.Fatalf("trial %d: expected %d offspring, got %d floors and %d left", trial, m, assigned, left)
		}
	}
}
