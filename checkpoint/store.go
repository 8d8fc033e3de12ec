// Package checkpoint persists resumable training state to disk, one gob
// file per label. A save is a full overwrite; a load of a missing label
// fails with CheckpointNotFoundError and no recovery is attempted.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// State is the on-disk snapshot of a training run. The model and optimizer
// blobs are opaque to the store and round-trip byte for byte.
type State struct {
	Epoch          int
	GlobalStep     int
	ModelState     []byte
	OptimizerState []byte
}

// CheckpointNotFoundError reports a load for a label with no checkpoint.
type CheckpointNotFoundError struct {
	Label string
	Path  string
}

func (e *CheckpointNotFoundError) Error() string {
	return fmt.Sprintf("no checkpoint for label %q at %s", e.Label, e.Path)
}

// Store writes checkpoints under Dir as <Prefix>_<label>.gob.
type Store struct {
	Dir    string
	Prefix string
}

func NewStore(dir, prefix string) *Store {
	return &Store{Dir: dir, Prefix: prefix}
}

// Path is the deterministic location for a label.
func (s *Store) Path(label string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s.gob", s.Prefix, label))
}

// Save writes state for label, replacing any previous checkpoint at that
// label. The write goes to a temp file first and is renamed into place so
// a crash never leaves a half-written checkpoint under the label.
func (s *Store) Save(label string, st *State) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	path := s.Path(label)
	tmp, err := os.CreateTemp(s.Dir, s.Prefix+"-*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := gob.NewEncoder(tmp).Encode(st); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint save %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint save %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("checkpoint save %s: %w", path, err)
	}
	return nil
}

// Load reads the checkpoint for label.
func (s *Store) Load(label string) (*State, error) {
	path := s.Path(label)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, &CheckpointNotFoundError{Label: label, Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint load %s: %w", path, err)
	}
	defer f.Close()
	var st State
	if err := gob.NewDecoder(f).Decode(&st); err != nil {
		return nil, fmt.Errorf("checkpoint load %s: %w", path, err)
	}
	return &st, nil
}
