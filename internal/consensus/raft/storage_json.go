package raft

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// JSONStorage persists engine state as JSON files in a local directory.
type JSONStorage struct {
	dir string
}

// NewJSONStorage returns a file-backed Storage implementation rooted at dir.
func NewJSONStorage(dir string) Storage {
	return &JSONStorage{dir: dir}
}

// Load restores hard state and log from disk.
func (s *JSONStorage) Load() (*PersistentState, error) {
	hs, err := s.loadHardState()
	if err != nil {
		return nil, err
	}

	logEntries, err := s.loadLog()
	if err != nil {
		return nil, err
	}

	return &PersistentState{
		HardState: hs,
		Log:       logEntries,
	}, nil
}

// SaveHardState persists the current hard state to disk.
func (s *JSONStorage) SaveHardState(state HardState) error {
	return writeJSONAtomically(s.hardStatePath(), state)
}

// AppendLog appends entries to the stored log.
func (s *JSONStorage) AppendLog(entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	existing, err := s.loadLog()
	if err != nil {
		return err
	}
	existing = append(existing, cloneLogEntries(entries)...)
	return s.writeLog(existing)
}

// TruncateLog truncates the stored log to the first keepN entries.
func (s *JSONStorage) TruncateLog(keepN int64) error {
	existing, err := s.loadLog()
	if err != nil {
		return err
	}
	if keepN < 0 {
		keepN = 0
	}
	if keepN > int64(len(existing)) {
		keepN = int64(len(existing))
	}
	return s.writeLog(existing[:keepN])
}

func (s *JSONStorage) writeLog(entries []LogEntry) error {
	return writeJSONAtomically(s.logPath(), entries)
}

func (s *JSONStorage) hardStatePath() string { return filepath.Join(s.dir, "hard_state.json") }
func (s *JSONStorage) logPath() string       { return filepath.Join(s.dir, "log.json") }

func (s *JSONStorage) loadHardState() (HardState, error) {
	var hs HardState
	data, err := os.ReadFile(s.hardStatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return hs, nil
		}
		return hs, err
	}
	if len(data) == 0 {
		return hs, nil
	}
	if err := json.Unmarshal(data, &hs); err != nil {
		return hs, err
	}
	return hs, nil
}

func (s *JSONStorage) loadLog() ([]LogEntry, error) {
	data, err := os.ReadFile(s.logPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return cloneLogEntries(entries), nil
}

func writeJSONAtomically(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	//nolint:gosec // tmpName and path are derived from internal storage paths, not user input.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	// Sync the parent directory so the rename itself is durable.
	//nolint:gosec // dir is derived from the configured storage directory under our control.
	dirFile, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = dirFile.Close() }()

	return dirFile.Sync()
}
