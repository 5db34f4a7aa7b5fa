// Package workspace materializes setup-flow context content to disk as a
// per-prompt scratch directory, and cleans it up afterward. Directory ids
// are validated so a prompt-derived name can never escape the base dir.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for caller-checkable conditions.
var (
	ErrInvalidID = errors.New("workspace: invalid id")
	ErrNotFound  = errors.New("workspace: not found")
)

// Manager materializes and cleans up per-prompt scratch directories under
// a base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a Manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// validateID rejects ids that are empty, flag-like, or path-traversal
// components.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidID)
	}
	if strings.HasPrefix(id, "-") {
		return fmt.Errorf("%w: %q (must not start with -)", ErrInvalidID, id)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Path returns the scratch directory path for id without creating it.
func (m *Manager) Path(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(m.baseDir, id), nil
}

// Create makes a fresh scratch directory for id and materializes
// contextContent into <dir>/context, returning its path. This is the
// setup-flow's context file path.
func (m *Manager) Create(id, contextContent string) (contextFilePath string, err error) {
	dir, err := m.Path(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace: creating %s: %w", dir, err)
	}

	contextFilePath = filepath.Join(dir, "context")
	if err := os.WriteFile(contextFilePath, []byte(contextContent), 0o644); err != nil {
		return "", fmt.Errorf("workspace: writing context file: %w", err)
	}
	return contextFilePath, nil
}

// Exists reports whether id's scratch directory has been created.
func (m *Manager) Exists(id string) bool {
	dir, err := m.Path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(dir)
	return err == nil
}

// Remove deletes id's scratch directory.
func (m *Manager) Remove(id string) error {
	dir, err := m.Path(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("workspace: removing %s: %w", dir, err)
	}
	return nil
}

// List returns the ids of currently materialized scratch directories.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: listing %s: %w", m.baseDir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Prune removes every scratch directory except those named in keep.
func (m *Manager) Prune(keep []string) error {
	keeping := make(map[string]bool, len(keep))
	for _, id := range keep {
		keeping[id] = true
	}

	ids, err := m.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if keeping[id] {
			continue
		}
		if err := m.Remove(id); err != nil {
			return err
		}
	}
	return nil
}
