package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/corosback/logging"
	"github.com/corosback/models"
)

// StateFileName is the persisted state file kept inside the backup dir.
const StateFileName = "corosback_state.json"

// StateStore persists the set of already backed up activity ids. It is
// the single source of truth for idempotency: an id is present iff that
// activity's metadata and every requested export were fully written.
//
// Commit is mutex-serialized so concurrent workers never race on the
// state file, and every mutation is durable before Commit returns.
type StateStore struct {
	path string

	mu    sync.Mutex
	state models.BackupState
	ids   map[string]struct{}
}

// NewStateStore creates a store persisting to path. Call Load before use.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path, ids: make(map[string]struct{})}
}

// Load reads the state file. A missing file is a first run and yields an
// empty state. A file that exists but does not parse fails loudly: the
// safer direction is re-downloading after the operator moves the corrupt
// file aside, not silently forgetting what was already backed up.
func (s *StateStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.state = models.BackupState{}
		s.ids = make(map[string]struct{})
		return nil
	}
	if err != nil {
		return &models.FSError{Path: s.path, Err: err}
	}

	var state models.BackupState
	if err := json.Unmarshal(data, &state); err != nil {
		return &models.FSError{
			Path: s.path,
			Err:  fmt.Errorf("state file is corrupt, move it aside to start fresh: %w", err),
		}
	}

	s.state = state
	s.ids = make(map[string]struct{}, len(state.DownloadedIDs))
	for _, id := range state.DownloadedIDs {
		s.ids[id] = struct{}{}
	}

	logging.Info().Int("known", len(s.ids)).Str("path", s.path).Msg("loaded backup state")
	return nil
}

// Contains reports whether the activity is already fully backed up.
func (s *StateStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of known activity ids.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Commit records one fully backed up activity and persists the state
// before returning. Committing an id twice is a no-op.
func (s *StateStore) Commit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return nil
	}
	s.ids[id] = struct{}{}
	s.state.DownloadedIDs = append(s.state.DownloadedIDs, id)
	s.state.LastSyncedID = id
	s.state.TotalBackedUp++

	return s.persistLocked()
}

// Finalize stamps the last successful run time and persists once more.
func (s *StateStore) Finalize(finished time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.LastBackupTimestamp = finished.UTC().Format(time.RFC3339)
	return s.persistLocked()
}

// persistLocked writes the state file with write-then-rename semantics so
// a crash mid-write never leaves a corrupt or half-written file behind.
// Caller must hold s.mu.
func (s *StateStore) persistLocked() error {
	s.state.Normalize()
	return writeFileAtomic(s.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(&s.state)
	})
}
