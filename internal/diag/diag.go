// Package diag collects per-round effective sample size diagnostics from
// adaptive sampler generations.
package diag

import (
	"errors"
	"sync"
)

// Record is the ESS after one growth round of one generation.
type Record struct {
	Generation int     `json:"generation"`
	Round      int     `json:"round"`
	ESS        float64 `json:"ess"`
	Size       int     `json:"size"`
}

// Sink is the recording side of a diagnostics store.
type Sink interface {
	RecordESS(generation, round int, ess float64, size int) error
}

type Memory struct {
	mu      sync.Mutex
	records []Record
}

func NewMemory() *Memory {
	return &Memory{records: make([]Record, 0, 64)}
}

func (m *Memory) RecordESS(generation, round int, ess float64, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, Record{Generation: generation, Round: round, ESS: ess, Size: size})
	return nil
}

// Records returns a copy of everything recorded so far.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

func (m *Memory) ForGeneration(g int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.Generation == g {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = m.records[:0]
}

// Multi fans every record out to all sinks and joins their errors.
type Multi []Sink

func (ms Multi) RecordESS(generation, round int, ess float64, size int) error {
	var errs []error
	for _, s := range ms {
		if err := s.RecordESS(generation, round, ess, size); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
