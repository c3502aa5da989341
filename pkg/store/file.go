package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// FileStore persists snapshots as indented JSON files in a directory.
type FileStore struct {
	currentPath string
	historyPath string

	mu sync.Mutex // serialises read-modify-write of the history file
}

// NewFileStore returns a FileStore. Missing names fall back to data.json and
// historical_data.json.
func NewFileStore(cfg FileConfig) *FileStore {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.CurrentFile == "" {
		cfg.CurrentFile = "data.json"
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = "historical_data.json"
	}
	return &FileStore{
		currentPath: filepath.Join(cfg.Dir, cfg.CurrentFile),
		historyPath: filepath.Join(cfg.Dir, cfg.HistoryFile),
	}
}

// CurrentPath returns the path of the current-snapshot file.
func (f *FileStore) CurrentPath() string { return f.currentPath }

// HistoryPath returns the path of the history file.
func (f *FileStore) HistoryPath() string { return f.historyPath }

func (f *FileStore) LoadCurrent(_ context.Context) (*types.Snapshot, error) {
	var s types.Snapshot
	if err := readJSON(f.currentPath, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (f *FileStore) LoadHistory(_ context.Context) (types.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadHistory()
}

func (f *FileStore) loadHistory() (types.History, error) {
	var h types.History
	if err := readJSON(f.historyPath, &h); err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.History{}, nil
		}
		return nil, err
	}
	if h == nil {
		h = types.History{}
	}
	return h, nil
}

func (f *FileStore) WriteCurrent(_ context.Context, s *types.Snapshot) error {
	return writeJSON(f.currentPath, s)
}

// AppendHistory appends s to the on-disk window. An unreadable history file
// is replaced by a window holding only s.
func (f *FileStore) AppendHistory(_ context.Context, s *types.Snapshot, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	h, err := f.loadHistory()
	if err != nil {
		h = types.History{}
	}
	return writeJSON(f.historyPath, h.Append(*s, limit))
}

func (f *FileStore) Close() error { return nil }

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", path, err)
	}
	return nil
}

// writeJSON writes v to a temp file in the target directory and renames it
// into place.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("store: create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store: rename %s: %w", path, err)
	}
	return nil
}
