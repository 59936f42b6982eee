package analysis

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the Sokal window constant: the sum stops at the first lag
// M with M >= DefaultWindow * tau(M).
const DefaultWindow = 5.0

var ErrShortSeries = errors.New("analysis: series needs at least two values")

func centred(xs []float64) []float64 {
	mean := stat.Mean(xs, nil)
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x - mean
	}
	return out
}

// Autocorrelation returns rho(0..maxLag) for xs. A constant series has
// rho(0) = 1 and zeros elsewhere.
func Autocorrelation(xs []float64, maxLag int) ([]float64, error) {
	n := len(xs)
	if n < 2 {
		return nil, ErrShortSeries
	}
	if maxLag < 0 || maxLag >= n {
		maxLag = n - 1
	}

	// zero padding to 2n keeps the circular correlation from wrapping
	padded := make([]float64, 2*n)
	copy(padded, centred(xs))

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		m := cmplx.Abs(c)
		spectrum[i] = complex(m*m, 0)
	}
	acov := fft.IFFT(spectrum)

	rho := make([]float64, maxLag+1)
	c0 := real(acov[0])
	if c0 <= 0 {
		rho[0] = 1
		return rho, nil
	}
	for k := range rho {
		rho[k] = real(acov[k]) / c0
	}
	return rho, nil
}

// IntegratedTime estimates tau = 1 + 2 sum rho(k). It is at least 1.
func IntegratedTime(xs []float64, window float64) (float64, error) {
	rho, err := Autocorrelation(xs, -1)
	if err != nil {
		return 0, err
	}
	if window <= 0 {
		window = DefaultWindow
	}

	tau := 1.0
	for m := 1; m < len(rho); m++ {
		tau += 2 * rho[m]
		if float64(m) >= window*tau {
			break
		}
	}
	return math.Max(tau, 1), nil
}

// PowerSpectrum returns |X(k)| for the first half of the spectrum of the
// centred series.
func PowerSpectrum(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	spectrum := fft.FFTReal(centred(xs))
	ps := make([]float64, len(spectrum)/2+1)
	for i := range ps {
		ps[i] = cmplx.Abs(spectrum[i])
	}
	return ps
}

type Summary struct {
	N         int
	Mean      float64
	Std       float64
	Tau       float64
	Effective float64
	Lag1      float64
}

func Summarize(xs []float64) (Summary, error) {
	if len(xs) < 2 {
		return Summary{}, ErrShortSeries
	}
	mean, std := stat.MeanStdDev(xs, nil)

	tau, err := IntegratedTime(xs, DefaultWindow)
	if err != nil {
		return Summary{}, err
	}
	rho, err := Autocorrelation(xs, 1)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		N:         len(xs),
		Mean:      mean,
		Std:       std,
		Tau:       tau,
		Effective: float64(len(xs)) / tau,
		Lag1:      rho[1],
	}, nil
}
