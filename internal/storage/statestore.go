package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"caucion-alerts/internal/alerting"
)

// ErrLockHeld indicates another run holds the state lock.
var ErrLockHeld = errors.New("storage: state lock held by another run")

// StateStore persists per-rule alert state between runs. Each run is a fresh
// process, so this store is the only cross-run memory the checker has.
type StateStore interface {
	Acquire() (release func(), err error)
	Load() (map[string]alerting.RuleState, error)
	Save(state map[string]alerting.RuleState) error
}

// FileStateStore keeps the state map in a single JSON document. Saves are
// atomic (write to a temp file, then rename) so a crash mid-save never leaves
// a half-written file, and a lock file guards against overlapping runs
// interleaving load and save.
type FileStateStore struct {
	path        string
	lockTimeout time.Duration
}

// NewFileStateStore builds a store rooted at path.
func NewFileStateStore(path string, lockTimeout time.Duration) *FileStateStore {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &FileStateStore{path: path, lockTimeout: lockTimeout}
}

// Acquire takes the exclusive cross-run lock, waiting up to the configured
// timeout before failing with ErrLockHeld. The returned release func removes
// the lock file.
func (s *FileStateStore) Acquire() (func(), error) {
	lockPath := s.path + ".lock"
	deadline := time.Now().Add(s.lockTimeout)

	for {
		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(file, "%d\n", os.Getpid())
			_ = file.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create state lock: %w", err)
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, lockPath)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Load reads the persisted state. A missing file is a first run, not an
// error, and yields an empty map.
func (s *FileStateStore) Load() (map[string]alerting.RuleState, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]alerting.RuleState{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	state := make(map[string]alerting.RuleState)
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	return state, nil
}

// Save atomically replaces the persisted state. Map keys marshal in sorted
// order, so saving an unchanged state map reproduces the file byte for byte.
func (s *FileStateStore) Save(state map[string]alerting.RuleState) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	payload = append(payload, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

var _ StateStore = (*FileStateStore)(nil)
