package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/smcfilter/internal/diag"
	"github.com/san-kum/smcfilter/internal/experiment"
)

type ExportData struct {
	RunID        string                      `json:"run_id,omitempty"`
	Model        string                      `json:"model"`
	Params       map[string]float64          `json:"params,omitempty"`
	Generations  []experiment.GenerationStat `json:"generations"`
	Truth        []float64                   `json:"truth,omitempty"`
	Observations []float64                   `json:"observations,omitempty"`
	LogEvidence  float64                     `json:"log_evidence"`
	PathSampling *float64                    `json:"path_sampling,omitempty"`
	Exact        *float64                    `json:"exact_log_evidence,omitempty"`
	Rounds       []diag.Record               `json:"rounds,omitempty"`
	Metrics      map[string]float64          `json:"metrics,omitempty"`
}

func exportData(result *experiment.Result, params map[string]float64) ExportData {
	return ExportData{
		RunID:        result.RunID,
		Model:        result.Model,
		Params:       params,
		Generations:  result.Generations,
		Truth:        result.Truth,
		Observations: result.Observations,
		LogEvidence:  result.LogEvidence,
		PathSampling: result.PathSampling,
		Exact:        result.ExactLogEvidence,
		Rounds:       result.Rounds,
		Metrics:      result.Metrics,
	}
}

func WriteJSON(w io.Writer, result *experiment.Result, params map[string]float64) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportData(result, params))
}

func ExportJSON(path string, result *experiment.Result, params map[string]float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, result, params)
}

func ExportJSONStdout(result *experiment.Result, params map[string]float64) error {
	return WriteJSON(os.Stdout, result, params)
}

// ReadJSON decodes a document written by WriteJSON.
func ReadJSON(r io.Reader) (*ExportData, error) {
	var data ExportData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
