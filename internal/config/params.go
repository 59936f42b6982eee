package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/smcfilter/internal/models"
)

func asCount(name string, v float64) (int, error) {
	if v != math.Trunc(v) || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %g", name, v)
	}
	return int(v), nil
}

// SetParam sets one numeric setting by name. Sampler settings apply to every
// model; mcmc_steps applies to the configured model.
func (c *Config) SetParam(name string, v float64) error {
	var err error
	switch name {
	case "particles":
		c.Particles, err = asCount(name, v)
	case "generations":
		c.Generations, err = asCount(name, v)
	case "threads":
		c.Threads, err = asCount(name, v)
	case "cap":
		c.PopulationCap, err = asCount(name, v)
	case "seed":
		var s int
		s, err = asCount(name, v)
		c.Seed = uint64(s)
	case "threshold":
		c.Threshold = v
	case "process_noise":
		c.RandomWalk.ProcessNoise = v
	case "obs_noise":
		c.RandomWalk.ObsNoise = v
	case "init_spread":
		c.RandomWalk.InitSpread = v
	case "guided_prob":
		c.RandomWalk.GuidedProb = v
	case "prior_sigma":
		c.Tempered.PriorSigma = v
	case "mode_offset":
		c.Tempered.ModeOffset = v
	case "mode_sigma":
		c.Tempered.ModeSigma = v
	case "step_size":
		c.Tempered.StepSize = v
	case "mcmc_steps":
		var n int
		n, err = asCount(name, v)
		if c.Model == models.NameTempered {
			c.Tempered.MCMCSteps = n
		} else {
			c.RandomWalk.MCMCSteps = n
		}
	default:
		return fmt.Errorf("unknown parameter: %s (available: %v)", name, ParamNames())
	}
	return err
}

var paramNames = []string{
	"particles", "generations", "threads", "cap", "seed", "threshold",
	"process_noise", "obs_noise", "init_spread", "guided_prob",
	"prior_sigma", "mode_offset", "mode_sigma", "step_size", "mcmc_steps",
}

func ParamNames() []string {
	names := append([]string(nil), paramNames...)
	sort.Strings(names)
	return names
}
