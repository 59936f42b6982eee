package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/san-kum/smcfilter/internal/metrics"
	"github.com/san-kum/smcfilter/internal/models"
	"github.com/san-kum/smcfilter/internal/rng"
	"github.com/san-kum/smcfilter/internal/smc"
)

// Runner builds a model from the experiment's config and drives it.
type Runner func(ctx context.Context, e *Experiment) (*Result, error)

type Registry struct {
	runners map[string]Runner
	about   map[string]string
}

func NewRegistry() *Registry {
	r := &Registry{
		runners: make(map[string]Runner),
		about:   make(map[string]string),
	}

	r.Register(models.NameRandomWalk, "1-D target tracking from noisy observations", runRandomWalk)
	r.Register(models.NameTempered, "annealed bimodal target with evidence estimates", runTempered)

	return r
}

func (r *Registry) Register(name, about string, fn Runner) {
	r.runners[name] = fn
	r.about[name] = about
}

func (r *Registry) Get(name string) (Runner, error) {
	fn, ok := r.runners[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn, nil
}

func (r *Registry) Describe(name string) string { return r.about[name] }

// DefaultMetrics returns fresh metrics suited to the model.
func (r *Registry) DefaultMetrics(model string) []metrics.Metric {
	ms := []metrics.Metric{metrics.NewESSFraction(), metrics.NewResampleRate()}
	if model == models.NameRandomWalk {
		ms = append(ms, metrics.NewRMSE(), metrics.NewCoverage(2))
	}
	return ms
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runRandomWalk(ctx context.Context, e *Experiment) (*Result, error) {
	m := e.cfg.NewRandomWalk()
	steps := max(e.cfg.RandomWalk.Steps, e.cfg.Generations)
	truth := m.Simulate(rng.New(e.cfg.RandomWalk.DataSeed), steps)

	set, err := m.MoveSet()
	if err != nil {
		return nil, err
	}

	res, err := drive(ctx, e, problem[models.Track]{
		moves:   set,
		summary: models.Position,
	})
	if res != nil {
		res.Truth = truth[:e.cfg.Generations]
		res.Observations = m.Observations[:e.cfg.Generations]
	}
	return res, err
}

func runTempered(ctx context.Context, e *Experiment) (*Result, error) {
	m := e.cfg.NewTempered()
	set, err := m.MoveSet()
	if err != nil {
		return nil, err
	}

	exact := m.LogEvidence()
	res, err := drive(ctx, e, problem[float64]{
		moves:   set,
		summary: models.Identity,
		finish: func(s *smc.Sampler[float64], res *Result) error {
			if s.HistoryMode() == smc.HistoryNone {
				return nil
			}
			ps, err := s.IntegratePathSampling(m.Integrand, m.Width)
			if err != nil {
				return err
			}
			res.PathSampling = &ps
			return nil
		},
	})
	if res != nil {
		res.ExactLogEvidence = &exact
	}
	return res, err
}
