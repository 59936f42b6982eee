package experiment

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/smcfilter/internal/config"
	"github.com/san-kum/smcfilter/internal/diag"
	"github.com/san-kum/smcfilter/internal/metrics"
	"github.com/san-kum/smcfilter/internal/smc"
)

type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	logger    *zap.Logger
	observers []Observer
	lineage   smc.LineageRecorder
	sink      diag.Sink
	runID     string
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
		logger:   zap.NewNop(),
	}
}

func (e *Experiment) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	e.logger = l
}

func (e *Experiment) SetRunID(id string)               { e.runID = id }
func (e *Experiment) AddObserver(o Observer)           { e.observers = append(e.observers, o) }
func (e *Experiment) SetLineage(r smc.LineageRecorder) { e.lineage = r }

// SetESSSink adds a sink next to the in-memory one every run keeps.
func (e *Experiment) SetESSSink(s diag.Sink) { e.sink = s }

func (e *Experiment) Config() *config.Config { return e.cfg }

// Run executes the configured model for the configured number of
// generations. Cancellation is checked between generations; the partial
// result is returned with the context error.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	runner, err := e.registry.Get(e.cfg.Model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := runner(ctx, e)
	if res != nil {
		res.RunID = e.runID
		res.Model = e.cfg.Model
		res.Elapsed = time.Since(start)
		res.Metrics = metrics.Evaluate(e.registry.DefaultMetrics(e.cfg.Model), res.Samples(e.cfg.Particles))
	}
	return res, err
}

// problem is one model wired for the driver loop.
type problem[T any] struct {
	moves   smc.MoveDispatcher[T]
	summary func(T) float64
	// finish runs after the last generation.
	finish func(s *smc.Sampler[T], res *Result) error
}

func drive[T any](ctx context.Context, e *Experiment, p problem[T]) (*Result, error) {
	sc, err := e.cfg.SamplerConfig()
	if err != nil {
		return nil, err
	}
	s, err := smc.New[T](sc, p.moves)
	if err != nil {
		return nil, err
	}

	rounds := diag.NewMemory()
	var sink diag.Sink = rounds
	if e.sink != nil {
		sink = diag.Multi{rounds, e.sink}
	}
	s.SetESSSink(sink)
	s.SetLogger(e.logger)
	if e.lineage != nil {
		s.SetLineage(e.lineage)
	}

	res := &Result{Generations: make([]GenerationStat, 0, e.cfg.Generations+1)}
	defer func() { res.Rounds = rounds.Records() }()

	if err := s.Initialise(); err != nil {
		return nil, err
	}
	ess, err := s.ESS()
	if err != nil {
		return nil, err
	}
	if err := record(e, s, res, p.summary, ess, false); err != nil {
		return res, err
	}

	for g := 1; g <= e.cfg.Generations; g++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		if e.cfg.Variable {
			ess, err = s.IterateEssVariable()
		} else {
			ess, err = s.IterateEss()
		}
		capHit := errors.Is(err, smc.ErrPopulationCapExceeded)
		if err != nil && !capHit {
			return res, err
		}

		if err := record(e, s, res, p.summary, ess, capHit); err != nil {
			return res, err
		}
	}

	res.LogEvidence = s.LogEvidence()
	if p.finish != nil {
		if err := p.finish(s, res); err != nil {
			return res, err
		}
	}

	e.logger.Info("run complete",
		zap.String("model", e.cfg.Model),
		zap.Int("generations", s.Time()),
		zap.Float64("log_evidence", res.LogEvidence))
	return res, nil
}

func record[T any](e *Experiment, s *smc.Sampler[T], res *Result, summary func(T) float64, ess float64, capHit bool) error {
	mean, spread, err := moments(s, summary)
	if err != nil {
		return err
	}
	stat := GenerationStat{
		Generation:  s.Time(),
		ESS:         ess,
		Resampled:   s.Resampled(),
		Accepted:    s.Accepted(),
		Estimate:    mean,
		Spread:      spread,
		LogEvidence: s.LogEvidence(),
		CapHit:      capHit,
	}
	res.Generations = append(res.Generations, stat)
	for _, o := range e.observers {
		o.OnGeneration(stat)
	}
	return nil
}

func moments[T any](s *smc.Sampler[T], f func(T) float64) (mean, spread float64, err error) {
	mean, err = s.Integrate(f)
	if err != nil {
		return 0, 0, err
	}
	second, err := s.Integrate(func(v T) float64 {
		x := f(v)
		return x * x
	})
	if err != nil {
		return 0, 0, err
	}
	return mean, math.Sqrt(math.Max(0, second-mean*mean)), nil
}
