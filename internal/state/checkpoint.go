package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// BenchmarkCheckpoint records in-progress benchmark state: every prompt
// result completed so far under RunID, so a run that ended early can
// resume by skipping prompts already present. The CLI saves it once, after
// the benchmark loop returns; a process that dies mid-run leaves none.
type BenchmarkCheckpoint struct {
	RunID   string                     `json:"runId"`
	Config  BenchmarkConfig            `json:"config"`
	Results []plugin.PipelineRunResult `json:"results"`
}

// CheckpointStore persists in-progress BenchmarkCheckpoint documents as
// indented JSON under a base directory.
type CheckpointStore struct {
	baseDir string
}

// NewCheckpointStore creates a CheckpointStore that saves checkpoints under
// baseDir.
func NewCheckpointStore(baseDir string) *CheckpointStore {
	return &CheckpointStore{baseDir: baseDir}
}

// Save writes cp to <baseDir>/<RunID>.checkpoint.json, overwriting any
// previous checkpoint for the same RunID.
func (s *CheckpointStore) Save(cp BenchmarkCheckpoint) error {
	p, err := path(s.baseDir, cp.RunID, ".checkpoint.json")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshaling: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: writing %s: %w", p, err)
	}
	return nil
}

// Load reads a previously saved BenchmarkCheckpoint by RunID. Returns
// (checkpoint, true, nil) if found, (zero, false, nil) if not found.
func (s *CheckpointStore) Load(runID string) (BenchmarkCheckpoint, bool, error) {
	p, err := path(s.baseDir, runID, ".checkpoint.json")
	if err != nil {
		return BenchmarkCheckpoint{}, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BenchmarkCheckpoint{}, false, nil
		}
		return BenchmarkCheckpoint{}, false, fmt.Errorf("checkpoint: reading %s: %w", p, err)
	}

	var cp BenchmarkCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return BenchmarkCheckpoint{}, false, fmt.Errorf("checkpoint: parsing %s: %w", p, err)
	}
	return cp, true, nil
}

// Remove deletes the checkpoint file for runID, called once a run finishes
// successfully so a later invocation with the same RunID starts fresh.
func (s *CheckpointStore) Remove(runID string) error {
	p, err := path(s.baseDir, runID, ".checkpoint.json")
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: removing %s: %w", p, err)
	}
	return nil
}
