// Package checkpoint persists the resume point of a pipeline run.
//
// A checkpoint is a single decimal integer: the index of the first line that
// has not yet been fully written to the run's destinations. Next to it a
// sidecar records the size of every destination at that index so a resumed
// run can cut off anything written after it.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

const (
	offsetsSuffix = ".sinks"
	lockSuffix    = ".lock"
)

var (
	// ErrCorrupt is returned when persisted state cannot be parsed.
	ErrCorrupt = errors.New("checkpoint corrupt")
	// ErrLocked is returned when another run holds the checkpoint.
	ErrLocked = errors.New("checkpoint locked by another run")
)

// Checkpoint is the persisted resume point.
type Checkpoint struct {
	LastIndex uint64
}

// Offsets maps destination paths to their size in bytes at Index.
type Offsets struct {
	Index uint64           `json:"index"`
	Sizes map[string]int64 `json:"sizes"`
}

// Store reads and writes the checkpoint identified by its file path.
type Store struct {
	path string
}

// NewStore returns a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted checkpoint. A missing file is the start of the
// input; unparseable content is ErrCorrupt.
func (s *Store) Load() (Checkpoint, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Checkpoint{}, nil
		}
		return Checkpoint{}, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	n, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %s: %q", ErrCorrupt, s.path, truncate(string(raw), 32))
	}
	return Checkpoint{LastIndex: n}, nil
}

// Save replaces the checkpoint atomically.
func (s *Store) Save(c Checkpoint) error {
	return writeAtomic(s.path, []byte(strconv.FormatUint(c.LastIndex, 10)))
}

// Clear removes the checkpoint and its sidecar.
func (s *Store) Clear() error {
	var errs []error
	for _, p := range []string{s.path, s.path + offsetsSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveOffsets replaces the destination-size sidecar atomically.
func (s *Store) SaveOffsets(o Offsets) error {
	raw, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path+offsetsSuffix, raw)
}

// LoadOffsets returns the sidecar and whether it exists.
func (s *Store) LoadOffsets() (Offsets, bool, error) {
	raw, err := os.ReadFile(s.path + offsetsSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Offsets{}, false, nil
		}
		return Offsets{}, false, fmt.Errorf("read offsets: %w", err)
	}

	var o Offsets
	if err := json.Unmarshal(raw, &o); err != nil {
		return Offsets{}, false, fmt.Errorf("%w: %s%s: %v", ErrCorrupt, s.path, offsetsSuffix, err)
	}
	return o, true, nil
}

// Lock takes an advisory lock keyed by the checkpoint path so two runs cannot
// share it. The returned function releases the lock.
func (s *Store) Lock() (func() error, error) {
	if err := ensureDir(s.path); err != nil {
		return nil, err
	}

	fl := flock.New(s.path + lockSuffix)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", s.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, s.path)
	}
	return fl.Unlock, nil
}

// writeAtomic writes data to a temp file in the target directory, syncs it,
// then renames it over path.
func writeAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
