// Package state persists the relay checkpoint across batch runs.
//
// The checkpoint is a single JSON file holding the watermark (last relayed
// message id) and a bounded ring of seen feed entry ids. Loading is fail-soft:
// a missing or corrupt file yields the default empty state so a damaged
// checkpoint never blocks a run. Saving is atomic: the state is written to a
// temp file in the same directory and renamed over the previous checkpoint.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BTreeMap/ChannelRelay/internal/models"
	"github.com/BTreeMap/ChannelRelay/internal/util"
)

// DefaultFileName is the default checkpoint filename inside the state directory.
const DefaultFileName = "relay_state.json"

// FilePermissions defines the permissions for the checkpoint file.
const FilePermissions = 0644

// Store loads and saves the relay checkpoint file.
type Store struct {
	path string
}

// NewStore creates a checkpoint store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the checkpoint from disk. It never fails: a missing file returns
// the default empty state, and a corrupt file is logged as a warning and also
// yields the default empty state.
func (s *Store) Load() models.RelayState {
	var st models.RelayState

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("Store.Load: no checkpoint file, starting from empty state", "path", s.path)
		} else {
			slog.Warn("Store.Load: checkpoint unreadable, starting from empty state", "error", err, "path", s.path)
		}
		return st
	}

	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("Store.Load: checkpoint corrupt, starting from empty state", "error", err, "path", s.path)
		return models.RelayState{}
	}

	slog.Debug("Store.Load: checkpoint loaded", "path", s.path, "lastMessageId", st.LastMessageID, "seenIds", len(st.SeenIDs))
	return st
}

// Save writes the checkpoint atomically: the state is marshalled to a temp
// file next to the target, synced, then renamed over the previous checkpoint.
// A crash mid-write never corrupts the previous valid state.
func (s *Store) Save(st models.RelayState) error {
	data, err := json.Marshal(st)
	if err != nil {
		slog.Error("Store.Save: marshal failed", "error", err)
		return fmt.Errorf("failed to marshal relay state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Store.Save: failed to create state directory", "error", err, "dir", dir)
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(s.path), util.GenerateRandomHex(8)))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FilePermissions)
	if err != nil {
		slog.Error("Store.Save: failed to open temp file", "error", err, "path", tmpPath)
		return fmt.Errorf("failed to open temp state file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		slog.Error("Store.Save: write failed", "error", err, "path", tmpPath)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		slog.Error("Store.Save: sync failed", "error", err, "path", tmpPath)
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		slog.Error("Store.Save: close failed", "error", err, "path", tmpPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		slog.Error("Store.Save: rename failed", "error", err, "from", tmpPath, "to", s.path)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	slog.Debug("Store.Save: checkpoint saved", "path", s.path, "lastMessageId", st.LastMessageID, "seenIds", len(st.SeenIDs))
	return nil
}
