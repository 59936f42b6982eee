package smc

import (
	"fmt"
	"strings"

	"github.com/san-kum/smcfilter/internal/rng"
)

// ResampleMode selects the resampling scheme.
type ResampleMode int

const (
	Multinomial ResampleMode = iota
	Residual
	Stratified
	Systematic
	// Adaptive grows the population until the ESS threshold is met, then
	// downsamples back to N.
	Adaptive
)

var modeNames = map[ResampleMode]string{
	Multinomial: "multinomial",
	Residual:    "residual",
	Stratified:  "stratified",
	Systematic:  "systematic",
	Adaptive:    "adaptive",
}

func (m ResampleMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ResampleMode(%d)", int(m))
}

// ParseResampleMode maps a mode name to its ResampleMode.
func ParseResampleMode(s string) (ResampleMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown resample mode %q", ErrInvalidConfig, s)
}

// HistoryMode selects whether generations are stored.
type HistoryMode int

const (
	HistoryNone HistoryMode = iota
	HistoryRAM
)

func (h HistoryMode) String() string {
	if h == HistoryRAM {
		return "ram"
	}
	return "none"
}

// DefaultPopulationCap bounds adaptive growth.
const DefaultPopulationCap = 100000

// DefaultThreshold is the default resampling threshold as a fraction of N.
const DefaultThreshold = 0.5

type Config struct {
	Particles int
	History   HistoryMode
	Mode      ResampleMode
	// Threshold below 1 is a fraction of Particles, otherwise an absolute ESS.
	Threshold     float64
	Threads       int
	Seed          uint64
	PopulationCap int
}

func DefaultConfig(particles int) Config {
	return Config{
		Particles:     particles,
		History:       HistoryNone,
		Mode:          Stratified,
		Threshold:     DefaultThreshold,
		Threads:       1,
		PopulationCap: DefaultPopulationCap,
	}
}

func (c Config) validate() error {
	if c.Particles <= 0 {
		return fmt.Errorf("%w: particles must be positive, got %d", ErrInvalidConfig, c.Particles)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: threshold must be non-negative, got %f", ErrInvalidConfig, c.Threshold)
	}
	if _, ok := modeNames[c.Mode]; !ok {
		return fmt.Errorf("%w: unknown resample mode %d", ErrInvalidConfig, int(c.Mode))
	}
	if c.PopulationCap < c.Particles {
		return fmt.Errorf("%w: population cap %d below particle count %d", ErrInvalidConfig, c.PopulationCap, c.Particles)
	}
	return nil
}

// MoveDispatcher supplies the problem-specific moves. Implementations must be
// safe to call concurrently for different particles; each call gets the
// random stream owned by that particle's index.
type MoveDispatcher[T any] interface {
	// Init draws one generation-0 particle value and its log-weight.
	Init(r rng.Source) (T, float64, error)
	// Move propagates p to generation t, updating value and log-weight.
	Move(t int, p *Particle[T], r rng.Source) error
	// MCMC performs one refinement step at generation t.
	MCMC(t int, p *Particle[T], r rng.Source) (bool, error)
}

// LineageRecorder receives the ancestry of each generation.
type LineageRecorder interface {
	// Record adds generation g with n particles. parents[i] is the index in
	// generation g-1 of particle i's ancestor; nil means the identity (or,
	// for generation 0, no parents).
	Record(g, n int, parents []int)
	// Rewind drops every generation after g.
	Rewind(g int)
}

// ESSSink receives the ESS of every adaptive growth round.
type ESSSink interface {
	RecordESS(generation, round int, ess float64, size int) error
}
