package experiment

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/smcfilter/internal/config"
	"github.com/san-kum/smcfilter/internal/parallel"
)

// Ensemble repeats one configuration with seeds seedStart, seedStart+1, ...
type Ensemble struct {
	base      config.Config
	numRuns   int
	seedStart uint64
	workers   int
	logger    *zap.Logger
}

func NewEnsemble(cfg *config.Config, numRuns int, seedStart uint64, workers int) *Ensemble {
	return &Ensemble{base: *cfg, numRuns: numRuns, seedStart: seedStart, workers: workers, logger: zap.NewNop()}
}

func (e *Ensemble) SetLogger(l *zap.Logger) { e.logger = l }

func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	err := parallel.Each(e.numRuns, e.workers, func(idx int) error {
		cfgCopy := e.base
		cfgCopy.Seed = e.seedStart + uint64(idx)

		ex := New(&cfgCopy)
		ex.SetLogger(e.logger.With(zap.Int("replicate", idx)))
		res, err := ex.Run(ctx)
		results[idx] = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Spread is the mean and sample standard deviation of one quantity across
// replicates.
type Spread struct {
	Mean, Std float64
}

func spreadOf(xs []float64) Spread {
	if len(xs) == 0 {
		return Spread{}
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) == 1 {
		return Spread{Mean: mean}
	}
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return Spread{Mean: mean, Std: math.Sqrt(ss / float64(len(xs)-1))}
}

type EnsembleSummary struct {
	Runs          int
	LogEvidence   Spread
	FinalEstimate Spread
	MeanESS       Spread
}

func Summarize(results []*Result) EnsembleSummary {
	var evidence, final, ess []float64
	for _, r := range results {
		if r == nil || len(r.Generations) == 0 {
			continue
		}
		evidence = append(evidence, r.LogEvidence)
		final = append(final, r.Generations[len(r.Generations)-1].Estimate)
		mean := 0.0
		for _, g := range r.Generations {
			mean += g.ESS
		}
		ess = append(ess, mean/float64(len(r.Generations)))
	}
	return EnsembleSummary{
		Runs:          len(evidence),
		LogEvidence:   spreadOf(evidence),
		FinalEstimate: spreadOf(final),
		MeanESS:       spreadOf(ess),
	}
}
