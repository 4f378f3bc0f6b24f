package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

func TestLoadMissingFileReturnsEmptyState(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "relay_state.json"))
	st := s.Load()
	if st.LastMessageID != 0 || len(st.SeenIDs) != 0 {
		t.Errorf("expected empty state, got %+v", st)
	}
}

func TestLoadCorruptFileReturnsEmptyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := NewStore(path)
	st := s.Load()
	if st.LastMessageID != 0 || len(st.SeenIDs) != 0 {
		t.Errorf("expected empty state for corrupt file, got %+v", st)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay_state.json")
	s := NewStore(path)

	st := models.RelayState{LastMessageID: 102, SeenIDs: []string{"a", "b"}}
	if err := s.Save(st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := s.Load()
	if got.LastMessageID != 102 {
		t.Errorf("expected watermark 102, got %d", got.LastMessageID)
	}
	if len(got.SeenIDs) != 2 || got.SeenIDs[0] != "a" || got.SeenIDs[1] != "b" {
		t.Errorf("seen ids not round-tripped: %v", got.SeenIDs)
	}
}

func TestSaveCreatesStateDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "relay_state.json")
	s := NewStore(path)
	if err := s.Save(models.RelayState{LastMessageID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Load().LastMessageID != 1 {
		t.Error("state not written under created directory")
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay_state.json")
	s := NewStore(path)

	if err := s.Save(models.RelayState{LastMessageID: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Save(models.RelayState{LastMessageID: 11}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Load().LastMessageID; got != 11 {
		t.Errorf("expected watermark 11 after overwrite, got %d", got)
	}

	// No temp files may linger after a successful save.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		for _, e := range entries {
			t.Logf("entry: %s", e.Name())
		}
		t.Errorf("expected only the state file in the directory, found %d entries", len(entries))
	}
}
