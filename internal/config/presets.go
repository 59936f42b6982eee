package config

import (
	"sort"

	"github.com/san-kum/smcfilter/internal/models"
)

func preset(model string, edit func(*Config)) *Config {
	cfg := DefaultConfig()
	cfg.Model = model
	edit(cfg)
	return cfg
}

var Presets = map[string]map[string]*Config{
	models.NameRandomWalk: {
		"default": preset(models.NameRandomWalk, func(c *Config) {}),
		"noisy": preset(models.NameRandomWalk, func(c *Config) {
			c.RandomWalk.ObsNoise = 2.0
			c.RandomWalk.GuidedProb = 0.5
		}),
		"systematic": preset(models.NameRandomWalk, func(c *Config) {
			c.Mode = "systematic"
			c.Threshold = 0.8
		}),
		"adaptive": preset(models.NameRandomWalk, func(c *Config) {
			c.Mode = "adaptive"
			c.Threshold = 0.9
			c.PopulationCap = 20000
		}),
		"long": preset(models.NameRandomWalk, func(c *Config) {
			c.Generations = 200
			c.RandomWalk.Steps = 200
			c.Threads = 4
		}),
	},
	models.NameTempered: {
		"default": preset(models.NameTempered, func(c *Config) {
			c.Generations = models.DefaultGenerations
			c.History = true
		}),
		"sharp": preset(models.NameTempered, func(c *Config) {
			c.Generations = 50
			c.History = true
			c.Tempered.ModeOffset = 4
			c.Tempered.ModeSigma = 0.3
			c.Tempered.MCMCSteps = 5
		}),
		"variable": preset(models.NameTempered, func(c *Config) {
			c.Generations = 10
			c.History = true
			c.Variable = true
			c.Threshold = 0.8
		}),
	},
}

func GetPreset(model, name string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[name]
	if !ok {
		return nil
	}
	cp := *cfg
	return &cp
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
