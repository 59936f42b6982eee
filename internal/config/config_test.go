package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/smcfilter/internal/models"
	"github.com/san-kum/smcfilter/internal/smc"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != models.NameRandomWalk {
		t.Errorf("expected model rwalk, got %s", cfg.Model)
	}
	if cfg.Particles <= 0 {
		t.Error("particles should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestSamplerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = "Residual"
	cfg.History = true
	cfg.PopulationCap = 0

	sc, err := cfg.SamplerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.Mode != smc.Residual {
		t.Errorf("expected residual, got %s", sc.Mode)
	}
	if sc.History != smc.HistoryRAM {
		t.Errorf("expected ram history, got %s", sc.History)
	}
	if sc.PopulationCap != smc.DefaultPopulationCap {
		t.Errorf("expected default cap, got %d", sc.PopulationCap)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "roulette" }},
		{"no particles", func(c *Config) { c.Particles = 0 }},
		{"no generations", func(c *Config) { c.Generations = 0 }},
		{"cap below particles", func(c *Config) { c.PopulationCap = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSamplerConfigRejectedByNew(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PopulationCap = 10
	sc, err := cfg.SamplerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := smc.New[float64](sc, nil); err == nil {
		t.Error("expected smc.New to reject a cap below the particle count")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	cfg := DefaultConfig()
	cfg.Model = models.NameTempered
	cfg.Particles = 321
	cfg.Mode = "adaptive"
	cfg.Tempered.ModeOffset = 3.5
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Particles != 321 || loaded.Mode != "adaptive" || loaded.Tempered.ModeOffset != 3.5 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("particles: 50\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Particles != 50 {
		t.Errorf("expected 50 particles, got %d", cfg.Particles)
	}
	if cfg.Mode != DefaultMode {
		t.Errorf("expected default mode, got %s", cfg.Mode)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("mode: roulette\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset(models.NameRandomWalk, "noisy")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.RandomWalk.ObsNoise != 2.0 {
		t.Errorf("expected obs noise 2.0, got %f", cfg.RandomWalk.ObsNoise)
	}

	cfg.Particles = 1
	if again := GetPreset(models.NameRandomWalk, "noisy"); again.Particles == 1 {
		t.Error("GetPreset should return a copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset(models.NameRandomWalk, "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "default"); cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestPresetsValidate(t *testing.T) {
	for model, presets := range Presets {
		for name, cfg := range presets {
			if cfg.Model != model {
				t.Errorf("%s/%s: model field is %s", model, name, cfg.Model)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
		}
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets(models.NameTempered)
	if len(presets) != 3 {
		t.Errorf("expected 3 tempered presets, got %v", presets)
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestParams(t *testing.T) {
	cfg := DefaultConfig()
	if _, ok := cfg.Params()["steps"]; !ok {
		t.Error("expected steps in random walk params")
	}
	cfg.Model = models.NameTempered
	if _, ok := cfg.Params()["prior_sigma"]; !ok {
		t.Error("expected prior_sigma in tempered params")
	}
}

func TestSetParam(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		param   string
		value   float64
		check   func(*Config) bool
		wantErr bool
	}{
		{"particles", models.NameRandomWalk, "particles", 250, func(c *Config) bool { return c.Particles == 250 }, false},
		{"threshold", models.NameRandomWalk, "threshold", 0.7, func(c *Config) bool { return c.Threshold == 0.7 }, false},
		{"seed", models.NameRandomWalk, "seed", 9, func(c *Config) bool { return c.Seed == 9 }, false},
		{"rwalk mcmc", models.NameRandomWalk, "mcmc_steps", 4, func(c *Config) bool { return c.RandomWalk.MCMCSteps == 4 }, false},
		{"tempered mcmc", models.NameTempered, "mcmc_steps", 6, func(c *Config) bool { return c.Tempered.MCMCSteps == 6 }, false},
		{"step size", models.NameTempered, "step_size", 0.4, func(c *Config) bool { return c.Tempered.StepSize == 0.4 }, false},
		{"fractional count", models.NameRandomWalk, "particles", 10.5, nil, true},
		{"negative count", models.NameRandomWalk, "generations", -1, nil, true},
		{"unknown", models.NameRandomWalk, "gravity", 9.8, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Model = tt.model
			err := cfg.SetParam(tt.param, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("%s=%g not applied", tt.param, tt.value)
			}
		})
	}
}

func TestParamNamesSorted(t *testing.T) {
	names := ParamNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
	cfg := DefaultConfig()
	for _, n := range names {
		if err := cfg.SetParam(n, 1); err != nil {
			t.Errorf("listed parameter %s rejected: %v", n, err)
		}
	}
}
