package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/corosback/models"
)

func TestLoadMissingStateIsFirstRun(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), StateFileName))
	if err := store.Load(); err != nil {
		t.Fatalf("Load of missing state failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty state, got %d ids", store.Len())
	}
}

func TestCommitIsDurableAndAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	store := NewStateStore(path)
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := store.Commit("act-001"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := store.Commit("act-002"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Durable before return: a fresh store must see both ids.
	reloaded := NewStateStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reloaded.Contains("act-001") || !reloaded.Contains("act-002") {
		t.Error("committed ids missing after reload")
	}

	// No temp file may linger after a successful rename.
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp state file left behind: %v", err)
	}
}

func TestCommitTwiceIsNoOp(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), StateFileName))
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.Commit("act-001"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := store.Commit("act-001"); err != nil {
		t.Fatalf("second Commit failed: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 id, got %d", store.Len())
	}
}

func TestLoadCorruptStateFailsLoudly(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	if err := os.WriteFile(path, []byte("{this is not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStateStore(path)
	err := store.Load()
	var fsErr *models.FSError
	if !errors.As(err, &fsErr) {
		t.Fatalf("expected FSError for corrupt state, got %v", err)
	}
}

func TestFinalizeStampsLastRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	store := NewStateStore(path)
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.Commit("act-001"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	if err := store.Finalize(now); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var state models.BackupState
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("state file does not parse: %v", err)
	}
	if state.LastBackupTimestamp != "2026-08-29T12:00:00Z" {
		t.Errorf("unexpected last run timestamp %q", state.LastBackupTimestamp)
	}
	if state.TotalBackedUp != 1 {
		t.Errorf("expected total 1, got %d", state.TotalBackedUp)
	}
	if len(state.DownloadedIDs) != 1 || state.DownloadedIDs[0] != "act-001" {
		t.Errorf("unexpected id list %v", state.DownloadedIDs)
	}
}
