// Package models holds reference problems for the sampler: a tracking
// filter and an annealed evidence estimator.
package models

const (
	DefaultProcessNoise = 0.1
	DefaultObsNoise     = 0.5
	DefaultInitSpread   = 1.0

	DefaultGenerations = 20
	DefaultPriorSigma  = 3.0
	DefaultModeOffset  = 2.0
	DefaultModeSigma   = 0.7
)

const (
	NameRandomWalk = "rwalk"
	NameTempered   = "tempered"
)
