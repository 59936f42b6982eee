package analysis

import (
	"math"
	"testing"

	"github.com/san-kum/smcfilter/internal/rng"
)

func ar1(n int, phi float64, seed uint64) []float64 {
	r := rng.New(seed)
	xs := make([]float64, n)
	for i := 1; i < n; i++ {
		xs[i] = phi*xs[i-1] + r.Normal(0, 1)
	}
	return xs
}

func directAutocorrelation(xs []float64, maxLag int) []float64 {
	c := centred(xs)
	c0 := 0.0
	for _, v := range c {
		c0 += v * v
	}
	rho := make([]float64, maxLag+1)
	for k := range rho {
		s := 0.0
		for i := 0; i+k < len(c); i++ {
			s += c[i] * c[i+k]
		}
		rho[k] = s / c0
	}
	return rho
}

func TestAutocorrelationMatchesDirect(t *testing.T) {
	xs := ar1(300, 0.6, 7)
	got, err := Autocorrelation(xs, 20)
	if err != nil {
		t.Fatal(err)
	}
	want := directAutocorrelation(xs, 20)
	for k := range want {
		if math.Abs(got[k]-want[k]) > 1e-9 {
			t.Errorf("lag %d: got %f, want %f", k, got[k], want[k])
		}
	}
	if math.Abs(got[0]-1) > 1e-12 {
		t.Errorf("rho(0) = %f", got[0])
	}
}

func TestAutocorrelationConstant(t *testing.T) {
	rho, err := Autocorrelation([]float64{3, 3, 3, 3}, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rho) != 4 || rho[0] != 1 {
		t.Fatalf("unexpected rho %v", rho)
	}
	for k := 1; k < len(rho); k++ {
		if rho[k] != 0 {
			t.Errorf("lag %d: expected 0, got %f", k, rho[k])
		}
	}
}

func TestAutocorrelationShort(t *testing.T) {
	if _, err := Autocorrelation([]float64{1}, 1); err != ErrShortSeries {
		t.Errorf("expected ErrShortSeries, got %v", err)
	}
}

func TestIntegratedTime(t *testing.T) {
	tests := []struct {
		name string
		phi  float64
		tol  float64
	}{
		{"white", 0, 0.3},
		{"ar1 0.5", 0.5, 0.5},
		{"ar1 0.9", 0.9, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xs := ar1(50000, tt.phi, 11)
			tau, err := IntegratedTime(xs, DefaultWindow)
			if err != nil {
				t.Fatal(err)
			}
			want := (1 + tt.phi) / (1 - tt.phi)
			if math.Abs(tau-want) > tt.tol {
				t.Errorf("tau = %f, want %f ± %f", tau, want, tt.tol)
			}
		})
	}
}

func TestPowerSpectrumPeak(t *testing.T) {
	n := 64
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = math.Sin(2 * math.Pi * 8 * float64(i) / float64(n))
	}
	ps := PowerSpectrum(xs)
	if len(ps) != n/2+1 {
		t.Fatalf("expected %d bins, got %d", n/2+1, len(ps))
	}
	peak := 0
	for i := range ps {
		if ps[i] > ps[peak] {
			peak = i
		}
	}
	if peak != 8 {
		t.Errorf("expected peak at bin 8, got %d", peak)
	}
}

func TestSummarize(t *testing.T) {
	xs := ar1(20000, 0.8, 5)
	s, err := Summarize(xs)
	if err != nil {
		t.Fatal(err)
	}
	if s.N != len(xs) {
		t.Errorf("N = %d", s.N)
	}
	if s.Effective >= float64(s.N) || s.Effective <= 0 {
		t.Errorf("effective samples %f outside (0, %d)", s.Effective, s.N)
	}
	if math.Abs(s.Lag1-0.8) > 0.05 {
		t.Errorf("lag-1 autocorrelation %f, want about 0.8", s.Lag1)
	}
	if _, err := Summarize(nil); err == nil {
		t.Error("expected error for empty series")
	}
}
