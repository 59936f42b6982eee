package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/smcfilter/internal/config"
	"github.com/san-kum/smcfilter/internal/experiment"
)

const (
	metadataFile = "metadata.json"
	traceFile    = "trace.csv"
)

var traceHeader = []string{"generation", "ess", "resampled", "accepted", "estimate", "spread", "log_evidence", "cap_hit"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// NewRunID returns a fresh id of the form <model>_<8 hex digits>.
func NewRunID(model string) string {
	return fmt.Sprintf("%s_%s", model, uuid.NewString()[:8])
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Model        string             `json:"model"`
	Timestamp    time.Time          `json:"timestamp"`
	Seed         uint64             `json:"seed"`
	Particles    int                `json:"particles"`
	Generations  int                `json:"generations"`
	Mode         string             `json:"mode"`
	Threshold    float64            `json:"threshold"`
	Variable     bool               `json:"variable"`
	Params       map[string]float64 `json:"params"`
	LogEvidence  float64            `json:"log_evidence"`
	PathSampling *float64           `json:"path_sampling,omitempty"`
	Exact        *float64           `json:"exact_log_evidence,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Elapsed      time.Duration      `json:"elapsed"`
}

func (s *Store) Save(cfg *config.Config, result *experiment.Result) (string, error) {
	runID := result.RunID
	if runID == "" {
		runID = NewRunID(cfg.Model)
	}
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:           runID,
		Model:        cfg.Model,
		Timestamp:    time.Now(),
		Seed:         cfg.Seed,
		Particles:    cfg.Particles,
		Generations:  cfg.Generations,
		Mode:         cfg.Mode,
		Threshold:    cfg.Threshold,
		Variable:     cfg.Variable,
		Params:       cfg.Params(),
		LogEvidence:  result.LogEvidence,
		PathSampling: result.PathSampling,
		Exact:        result.ExactLogEvidence,
		Metrics:      result.Metrics,
		Elapsed:      result.Elapsed,
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, traceFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteTrace(csvFile, result.Generations); err != nil {
		return "", err
	}
	return runID, nil
}

// WriteTrace writes the per-generation trace as CSV.
func WriteTrace(w io.Writer, gens []experiment.GenerationStat) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(traceHeader); err != nil {
		return err
	}
	for _, g := range gens {
		row := []string{
			strconv.Itoa(g.Generation),
			strconv.FormatFloat(g.ESS, 'g', -1, 64),
			strconv.FormatBool(g.Resampled),
			strconv.Itoa(g.Accepted),
			strconv.FormatFloat(g.Estimate, 'g', -1, 64),
			strconv.FormatFloat(g.Spread, 'g', -1, 64),
			strconv.FormatFloat(g.LogEvidence, 'g', -1, 64),
			strconv.FormatBool(g.CapHit),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// List returns every stored run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadTrace(runID string) ([]experiment.GenerationStat, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, traceFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(traceHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []experiment.GenerationStat{}, nil
	}

	gens := make([]experiment.GenerationStat, 0, len(records)-1)
	for i, rec := range records[1:] {
		g, err := parseTraceRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", traceFile, i+2, err)
		}
		gens = append(gens, g)
	}
	return gens, nil
}

func parseTraceRow(rec []string) (experiment.GenerationStat, error) {
	var (
		g   experiment.GenerationStat
		err error
	)
	if g.Generation, err = strconv.Atoi(rec[0]); err != nil {
		return g, err
	}
	if g.ESS, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return g, err
	}
	if g.Resampled, err = strconv.ParseBool(rec[2]); err != nil {
		return g, err
	}
	if g.Accepted, err = strconv.Atoi(rec[3]); err != nil {
		return g, err
	}
	if g.Estimate, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return g, err
	}
	if g.Spread, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return g, err
	}
	if g.LogEvidence, err = strconv.ParseFloat(rec[6], 64); err != nil {
		return g, err
	}
	if g.CapHit, err = strconv.ParseBool(rec[7]); err != nil {
		return g, err
	}
	return g, nil
}

// Delete removes a stored run.
func (s *Store) Delete(runID string) error {
	dir := filepath.Join(s.baseDir, runID)
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	return os.RemoveAll(dir)
}
