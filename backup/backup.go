// Package backup drives incremental backups of COROS activities: diff the
// remote listing against the persisted state, download what is missing,
// and commit each activity only once all of its files are on disk.
package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/corosback/client"
	"github.com/corosback/logging"
	"github.com/corosback/models"
)

// RemoteClient is the slice of the API client the orchestrator needs.
// Satisfied by *client.Client and by test fakes.
type RemoteClient interface {
	Login(ctx context.Context, email, password string) (client.Session, error)
	ListActivities(ctx context.Context, session client.Session) ([]models.Activity, error)
	Download(ctx context.Context, session client.Session, activity models.Activity, format models.ExportFormat) (io.ReadCloser, error)
}

// RunSummary reports what one backup run did.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Found      int
	Downloaded int
	Skipped    int
	Failed     int
	FailedIDs  []string
}

// Orchestrator composes the client and the state store into one run.
type Orchestrator struct {
	remote  RemoteClient
	store   *StateStore
	dir     string
	formats []models.ExportFormat
	workers int
}

// NewOrchestrator wires an orchestrator. workers bounds how many
// activities are processed concurrently; 1 gives a fully sequential run.
func NewOrchestrator(remote RemoteClient, store *StateStore, dir string, formats []models.ExportFormat, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		remote:  remote,
		store:   store,
		dir:     dir,
		formats: formats,
		workers: workers,
	}
}

// Run performs one incremental backup: authenticate, list everything,
// diff against state, download what is missing, finalize. Failures before
// any download abort the run; failures during processing are isolated per
// activity and collected into the summary. The credentials are used for
// the single login call and not retained.
func (o *Orchestrator) Run(ctx context.Context, email, password string) (*RunSummary, error) {
	summary := &RunSummary{RunID: uuid.NewString(), StartedAt: time.Now()}

	if err := ensureDir(o.dir); err != nil {
		return nil, err
	}
	if err := o.store.Load(); err != nil {
		return nil, err
	}

	session, err := o.remote.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	activities, err := o.remote.ListActivities(ctx, session)
	if err != nil {
		return nil, err
	}
	summary.Found = len(activities)

	var missing []models.Activity
	for _, act := range activities {
		if o.store.Contains(act.LabelID) {
			summary.Skipped++
			continue
		}
		missing = append(missing, act)
	}

	log := logging.With().Str("run_id", summary.RunID).Logger()
	log.Info().
		Int("found", summary.Found).
		Int("missing", len(missing)).
		Int("workers", o.workers).
		Msg("starting backup run")

	o.process(ctx, session, missing, summary)

	// A canceled run is not a successful one; the last-run stamp waits
	// for a run that actually finished.
	if ctx.Err() == nil {
		if err := o.store.Finalize(time.Now()); err != nil {
			return nil, err
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	sort.Strings(summary.FailedIDs)

	log.Info().
		Int("downloaded", summary.Downloaded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("took", summary.Duration).
		Msg("backup run finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// process fans the missing activities out to a bounded worker pool. One
// activity's failure never aborts the run; state commits are serialized
// inside the store.
func (o *Orchestrator) process(ctx context.Context, session client.Session, missing []models.Activity, summary *RunSummary) {
	jobs := make(chan models.Activity)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for act := range jobs {
				if ctx.Err() != nil {
					continue // drain; uncommitted work is retried next run
				}
				if err := o.processActivity(ctx, session, act); err != nil {
					logging.Warn().Str("activity", act.LabelID).Err(err).Msg("activity failed, will retry next run")
					mu.Lock()
					summary.Failed++
					summary.FailedIDs = append(summary.FailedIDs, act.LabelID)
					mu.Unlock()
					continue
				}
				mu.Lock()
				summary.Downloaded++
				mu.Unlock()
			}
		}()
	}

	for _, act := range missing {
		select {
		case jobs <- act:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

// processActivity writes the metadata artifact and every requested export
// for one activity, then commits it. Each file lands via temp-then-rename
// so an interruption never leaves a partial file at a final path, and the
// commit only happens after every file is durable.
func (o *Orchestrator) processActivity(ctx context.Context, session client.Session, act models.Activity) error {
	prefix := filepath.Join(o.dir, act.FilePrefix())

	meta := models.NewMetadata(act)
	if err := writeFileAtomic(prefix+"-metadata.json", func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(&meta)
	}); err != nil {
		return err
	}

	for _, format := range o.formats {
		body, err := o.remote.Download(ctx, session, act, format)
		if err != nil {
			return err
		}
		err = writeFileAtomic(prefix+"."+format.Ext(), func(w io.Writer) error {
			_, copyErr := io.Copy(w, body)
			return copyErr
		})
		_ = body.Close()
		if err != nil {
			return err
		}
		logging.Debug().Str("activity", act.LabelID).Str("format", format.Ext()).Msg("export downloaded")
	}

	return o.store.Commit(act.LabelID)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &models.FSError{Path: dir, Err: err}
	}
	return nil
}
