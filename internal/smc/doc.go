// Package smc implements a generic sequential Monte Carlo sampler.
//
// A [Sampler] holds a population of weighted [Particle] values and evolves it
// one generation at a time. Each generation runs the same phases:
//
//	propagate -> normalize -> ess-check -> (resample) -> mcmc -> advance
//
// The problem-specific work is supplied through a [MoveDispatcher]: an
// initialiser for generation 0, a move that propagates and reweights one
// particle, and an MCMC step that refines a particle in place.
//
// Resampling is triggered when the effective sample size falls below the
// threshold. Four fixed-size schemes are available (multinomial, residual,
// stratified, systematic), plus two adaptive ones that temporarily grow the
// population until the threshold is met:
//
//	s, _ := smc.New[float64](smc.DefaultConfig(1000), moves)
//	_ = s.Initialise()
//	for t := 1; t <= 50; t++ {
//		if _, err := s.IterateEss(); err != nil {
//			return err
//		}
//	}
//
// # Randomness
//
// Every particle index owns a random stream derived from Config.Seed, and
// resampling draws from a separate controller stream. Results therefore do
// not depend on the number of worker goroutines.
//
// # Failure
//
// An iteration either completes or leaves the sampler exactly as it was.
// Errors from move functions come back wrapped in an [IterationError] naming
// the generation and phase.
package smc
