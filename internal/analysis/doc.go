// Package analysis provides trace diagnostics for sampler runs.
//
// The per-generation series an experiment produces (ESS, posterior mean,
// acceptance counts) are usually strongly correlated. The package measures
// that correlation:
//
//   - [Autocorrelation]: normalised autocorrelation function via FFT
//   - [IntegratedTime]: integrated autocorrelation time with a
//     self-consistent window
//   - [PowerSpectrum]: magnitude spectrum of the centred series
//   - [Summarize]: mean, spread and effective sample count in one pass
//
// # Effective Samples
//
// A series of n correlated values carries roughly n/tau independent ones:
//
//	s := analysis.Summarize(res.Series("estimate"))
//	fmt.Printf("%.1f effective of %d\n", s.Effective, s.N)
package analysis
