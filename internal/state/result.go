// Package state persists benchmark run results and in-progress
// checkpoints to the filesystem as indented JSON, keyed by a validated
// run id under a base directory.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// ErrInvalidID indicates a run ID is empty, a dot-segment, or contains path
// separators.
var ErrInvalidID = errors.New("state: invalid run id")

// BenchmarkConfig is the subset of run configuration recorded alongside
// results, for reproducibility.
type BenchmarkConfig struct {
	PromptsDir string `json:"promptsDir"`
	MaxRetries int    `json:"maxRetries"`
}

// BenchmarkRunResult is the final persisted document for one benchmark
// invocation: timestamp, config, every prompt's PipelineRunResult, and
// the aggregate summary.
type BenchmarkRunResult struct {
	RunID     string                     `json:"runId"`
	Timestamp time.Time                  `json:"timestamp"`
	Config    BenchmarkConfig            `json:"config"`
	Results   []plugin.PipelineRunResult `json:"results"`
	Summary   BenchmarkSummary           `json:"summary"`
}

// BenchmarkSummary is the aggregate outcome across all prompts in a
// benchmark run.
type BenchmarkSummary struct {
	TotalPrompts      int     `json:"totalPrompts"`
	SuccessfulPrompts int     `json:"successfulPrompts"`
	SuccessRatePct    float64 `json:"successRatePct"`
	AvgAttempts       float64 `json:"avgAttempts"`
	TotalDurationMs   int64   `json:"totalDurationMs"`
}

// path validates id and returns the filesystem path for its result or
// checkpoint file, rejecting empty, dot-segment, or path-traversing IDs.
func path(baseDir, id, suffix string) (string, error) {
	if id == "" || id == "." || id == ".." || id != filepath.Base(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(baseDir, id+suffix), nil
}

// ResultStore persists finished BenchmarkRunResult documents as indented
// JSON under a base directory, named by RunID.
type ResultStore struct {
	baseDir string
}

// NewResultStore creates a ResultStore that saves results under baseDir.
func NewResultStore(baseDir string) *ResultStore {
	return &ResultStore{baseDir: baseDir}
}

// Save writes result to <baseDir>/<RunID>.json.
func (s *ResultStore) Save(result BenchmarkRunResult) error {
	p, err := path(s.baseDir, result.RunID, ".json")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("state: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshaling result: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("state: writing %s: %w", p, err)
	}
	return nil
}

// Load reads a previously saved BenchmarkRunResult by RunID.
func (s *ResultStore) Load(runID string) (BenchmarkRunResult, bool, error) {
	p, err := path(s.baseDir, runID, ".json")
	if err != nil {
		return BenchmarkRunResult{}, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BenchmarkRunResult{}, false, nil
		}
		return BenchmarkRunResult{}, false, fmt.Errorf("state: reading %s: %w", p, err)
	}

	var result BenchmarkRunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return BenchmarkRunResult{}, false, fmt.Errorf("state: parsing %s: %w", p, err)
	}
	return result, true, nil
}
