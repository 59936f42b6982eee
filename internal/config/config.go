package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/smcfilter/internal/models"
	"github.com/san-kum/smcfilter/internal/smc"
)

const (
	DefaultParticles   = 1000
	DefaultGenerations = 30
	DefaultMode        = "stratified"
	DefaultThreads     = 1
	DefaultSeed        = 1
	DefaultSteps       = 30
)

type Config struct {
	Model         string           `yaml:"model"`
	Particles     int              `yaml:"particles"`
	Generations   int              `yaml:"generations"`
	Mode          string           `yaml:"mode"`
	Threshold     float64          `yaml:"threshold"`
	Variable      bool             `yaml:"variable"`
	History       bool             `yaml:"history"`
	Threads       int              `yaml:"threads"`
	Seed          uint64           `yaml:"seed"`
	PopulationCap int              `yaml:"population_cap"`
	RandomWalk    RandomWalkConfig `yaml:"rwalk"`
	Tempered      TemperedConfig   `yaml:"tempered"`
}

type RandomWalkConfig struct {
	ProcessNoise float64 `yaml:"process_noise"`
	ObsNoise     float64 `yaml:"obs_noise"`
	InitSpread   float64 `yaml:"init_spread"`
	GuidedProb   float64 `yaml:"guided_prob"`
	MCMCSteps    int     `yaml:"mcmc_steps"`
	// Steps is the length of the synthetic observation sequence.
	Steps    int    `yaml:"steps"`
	DataSeed uint64 `yaml:"data_seed"`
}

type TemperedConfig struct {
	PriorSigma float64 `yaml:"prior_sigma"`
	ModeOffset float64 `yaml:"mode_offset"`
	ModeSigma  float64 `yaml:"mode_sigma"`
	StepSize   float64 `yaml:"step_size"`
	MCMCSteps  int     `yaml:"mcmc_steps"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:         models.NameRandomWalk,
		Particles:     DefaultParticles,
		Generations:   DefaultGenerations,
		Mode:          DefaultMode,
		Threshold:     smc.DefaultThreshold,
		Threads:       DefaultThreads,
		Seed:          DefaultSeed,
		PopulationCap: smc.DefaultPopulationCap,
		RandomWalk: RandomWalkConfig{
			ProcessNoise: models.DefaultProcessNoise,
			ObsNoise:     models.DefaultObsNoise,
			InitSpread:   models.DefaultInitSpread,
			GuidedProb:   0.2,
			MCMCSteps:    1,
			Steps:        DefaultSteps,
			DataSeed:     DefaultSeed,
		},
		Tempered: TemperedConfig{
			PriorSigma: models.DefaultPriorSigma,
			ModeOffset: models.DefaultModeOffset,
			ModeSigma:  models.DefaultModeSigma,
			StepSize:   1.0,
			MCMCSteps:  2,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Generations < 1 {
		return fmt.Errorf("generations must be positive, got %d", c.Generations)
	}
	if c.Particles < 1 {
		return fmt.Errorf("particles must be positive, got %d", c.Particles)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got %f", c.Threshold)
	}
	if c.Model != models.NameRandomWalk && c.Model != models.NameTempered {
		return fmt.Errorf("unknown model: %s", c.Model)
	}
	sc, err := c.SamplerConfig()
	if err != nil {
		return err
	}
	if sc.PopulationCap < sc.Particles {
		return fmt.Errorf("population cap %d below particle count %d", sc.PopulationCap, sc.Particles)
	}
	return nil
}

// SamplerConfig converts the run settings into an smc.Config.
func (c *Config) SamplerConfig() (smc.Config, error) {
	mode, err := smc.ParseResampleMode(c.Mode)
	if err != nil {
		return smc.Config{}, err
	}
	sc := smc.Config{
		Particles:     c.Particles,
		Mode:          mode,
		Threshold:     c.Threshold,
		Threads:       c.Threads,
		Seed:          c.Seed,
		PopulationCap: c.PopulationCap,
	}
	if c.History {
		sc.History = smc.HistoryRAM
	}
	if sc.PopulationCap == 0 {
		sc.PopulationCap = smc.DefaultPopulationCap
	}
	return sc, nil
}

func (c *Config) NewRandomWalk() *models.RandomWalk {
	m := models.NewRandomWalk()
	m.ProcessNoise = c.RandomWalk.ProcessNoise
	m.ObsNoise = c.RandomWalk.ObsNoise
	m.InitSpread = c.RandomWalk.InitSpread
	m.GuidedProb = c.RandomWalk.GuidedProb
	m.MCMCSteps = c.RandomWalk.MCMCSteps
	return m
}

func (c *Config) NewTempered() *models.Tempered {
	m := models.NewTempered()
	m.Generations = c.Generations
	m.PriorSigma = c.Tempered.PriorSigma
	m.Modes = []float64{-c.Tempered.ModeOffset, c.Tempered.ModeOffset}
	m.ModeSigma = c.Tempered.ModeSigma
	m.StepSize = c.Tempered.StepSize
	m.MCMCSteps = c.Tempered.MCMCSteps
	return m
}

// Params flattens the model-specific settings for storage metadata.
func (c *Config) Params() map[string]float64 {
	switch c.Model {
	case models.NameTempered:
		return c.NewTempered().Params()
	default:
		p := c.NewRandomWalk().Params()
		p["steps"] = float64(c.RandomWalk.Steps)
		return p
	}
}
