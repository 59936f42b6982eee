package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/smcfilter/internal/experiment"
	"github.com/san-kum/smcfilter/internal/parallel"
)

var ErrNoFeasiblePoint = errors.New("optim: no grid point produced a score")

// Objective scores a finished run; lower is better. ok is false when the run
// cannot be scored.
type Objective func(res *experiment.Result) (score float64, ok bool)

func MetricObjective(name string) Objective {
	return func(res *experiment.Result) (float64, bool) {
		v, ok := res.Metrics[name]
		return v, ok
	}
}

// EvidenceError scores the distance of the log-evidence estimate from the
// exact value, for models that provide one.
func EvidenceError(res *experiment.Result) (float64, bool) {
	if res.ExactLogEvidence == nil {
		return 0, false
	}
	return math.Abs(res.LogEvidence - *res.ExactLogEvidence), true
}

type Point struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: 1}
}

func (g *GridSearch) SetWorkers(n int) { g.workers = n }

// Points enumerates the grid, last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	points := []map[string]float64{{}}
	for d, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(points)*len(g.ranges[d]))
		for _, p := range points {
			for _, val := range g.ranges[d] {
				np := make(map[string]float64, len(p)+1)
				for k, v := range p {
					np[k] = v
				}
				np[name] = val
				next = append(next, np)
			}
		}
		points = next
	}
	return points
}

// Search runs one experiment per grid point and returns the best point along
// with every evaluated point in grid order. Points whose build or run fails
// are kept with their error and never win.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	objective Objective,
) (Point, []Point, error) {
	if len(g.paramNames) != len(g.ranges) {
		return Point{}, nil, fmt.Errorf("optim: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	grid := g.Points()
	evaluated := make([]Point, len(grid))

	err := parallel.Each(len(grid), g.workers, func(i int) error {
		evaluated[i] = g.evaluate(ctx, grid[i], buildExperiment, objective)
		return ctx.Err()
	})
	if err != nil {
		return Point{}, evaluated, err
	}

	best := Point{Score: math.Inf(1)}
	for _, p := range evaluated {
		if p.Err == nil && p.Score < best.Score {
			best = p
		}
	}
	if best.Params == nil {
		return best, evaluated, ErrNoFeasiblePoint
	}
	return best, evaluated, nil
}

func (g *GridSearch) evaluate(
	ctx context.Context,
	params map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	objective Objective,
) Point {
	p := Point{Params: params, Score: math.NaN()}

	exp, err := buildExperiment(params)
	if err != nil {
		p.Err = err
		return p
	}

	result, err := exp.Run(ctx)
	if err != nil {
		p.Err = err
		return p
	}

	score, ok := objective(result)
	if !ok || math.IsNaN(score) {
		p.Err = errors.New("run could not be scored")
		return p
	}
	p.Score = score
	return p
}
