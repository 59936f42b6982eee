package automation

import (
	"context"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/smcfilter/internal/config"
	"github.com/san-kum/smcfilter/internal/experiment"
)

// Scenario defines a scripted sequence of sampler runs
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run: a model, an optional preset, and overrides
type ScenarioStep struct {
	Model    string             `yaml:"model"`
	Preset   string             `yaml:"preset"`
	Mode     string             `yaml:"mode"`
	Variable *bool              `yaml:"variable"`
	History  *bool              `yaml:"history"`
	Params   map[string]float64 `yaml:"params"`
	SaveAs   string             `yaml:"save_as"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}

	return &scenario, nil
}

// Config builds the validated run configuration for the step.
func (s ScenarioStep) Config() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if s.Model != "" {
		cfg.Model = s.Model
	}
	if s.Preset != "" {
		p := config.GetPreset(cfg.Model, s.Preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
		cfg = p
	}
	if s.Mode != "" {
		cfg.Mode = s.Mode
	}
	if s.Variable != nil {
		cfg.Variable = *s.Variable
	}
	if s.History != nil {
		cfg.History = *s.History
	}

	// sorted so errors are reported deterministically
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := cfg.SetParam(k, s.Params[k]); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StepResult pairs a finished run with the configuration that produced it.
type StepResult struct {
	Config *config.Config
	Result *experiment.Result
}

// RunScenario executes all steps in order, stopping at the first failure.
func RunScenario(ctx context.Context, scenario *Scenario, logger *zap.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		logger.Info("scenario step",
			zap.String("scenario", scenario.Name),
			zap.Int("step", i+1),
			zap.Int("of", len(scenario.Steps)),
			zap.String("model", cfg.Model))

		exp := experiment.New(cfg)
		exp.SetLogger(logger)
		if step.SaveAs != "" {
			exp.SetRunID(step.SaveAs)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Config: cfg, Result: result})
	}

	return results, nil
}

// ParameterSweep runs one configuration across a range of values of one
// parameter
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

// SweepResult holds the headline numbers of one sweep point
type SweepResult struct {
	ParamValue    float64
	LogEvidence   float64
	FinalEstimate float64
	MeanESS       float64
	Metrics       map[string]float64
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, logger *zap.Logger) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", sweep.NumSteps)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]SweepResult, 0, sweep.NumSteps)

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep

		cfg := *sweep.Base
		if err := cfg.SetParam(sweep.ParamName, paramVal); err != nil {
			return results, err
		}

		exp := experiment.New(&cfg)
		exp.SetLogger(logger)
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.ParamName, paramVal, err)
		}

		sum := experiment.Summarize([]*experiment.Result{result})
		results = append(results, SweepResult{
			ParamValue:    paramVal,
			LogEvidence:   result.LogEvidence,
			FinalEstimate: sum.FinalEstimate.Mean,
			MeanESS:       sum.MeanESS.Mean,
			Metrics:       result.Metrics,
		})

		logger.Debug("sweep point",
			zap.Int("step", i+1),
			zap.String("param", sweep.ParamName),
			zap.Float64("value", paramVal))
	}

	return results, nil
}
