// Package ledger keeps session results in the local store and mirrors them
// to the backend when signed in.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/remote"
)

var (
	// ErrGuest is returned by Sync when no backend is configured.
	ErrGuest = errors.New("guest mode, nothing to sync with")
	// ErrPersistence marks a failed remote write. Local data is intact.
	ErrPersistence = errors.New("remote save failed")
)

// PersistenceError reports a remote write that will be retried by Sync.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s remotely: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Local is the authoritative store.
type Local interface {
	InsertRecord(ctx context.Context, rec model.Record) error
	MergeProgress(ctx context.Context, update model.Progress) (model.Progress, error)
	UnsyncedRecords(ctx context.Context) ([]model.Record, error)
	MarkRecordsSynced(ctx context.Context, ids []string, at time.Time) error
	DirtyProgress(ctx context.Context) ([]model.Progress, error)
	MarkProgressSynced(ctx context.Context, chapterIDs []string) error
	SetRecordRemoteID(ctx context.Context, id, remoteID string) error
	ImportRemoteRecord(ctx context.Context, rec model.Record, syncedAt time.Time) (bool, error)
	ApplyRemoteProgress(ctx context.Context, p model.Progress) (model.Progress, error)
}

// Remote is the best-effort mirror.
type Remote interface {
	SaveRecord(ctx context.Context, rec model.Record) (string, error)
	UpsertProgress(ctx context.Context, p model.Progress) error
	Sync(ctx context.Context, records []model.Record, progress []model.Progress) (remote.SyncResult, error)
	ListRecords(ctx context.Context) ([]model.Record, error)
	ListProgress(ctx context.Context) ([]model.Progress, error)
}

// SyncReport summarises a Sync.
type SyncReport struct {
	remote.SyncResult
	RecordsPulled  int
	ProgressMerged int
}

// Options configure a Ledger.
type Options struct {
	Clock  func() time.Time
	Logger *log.Logger
}

// Ledger is the two-tier persistence front.
type Ledger struct {
	local  Local
	remote Remote
	clock  func() time.Time
	logger *log.Logger
}

// New returns a ledger. A nil remote means guest mode.
func New(local Local, rem Remote, opts Options) *Ledger {
	l := &Ledger{local: local, remote: rem, clock: opts.Clock, logger: opts.Logger}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.logger == nil {
		l.logger = log.Default()
	}
	l.logger = l.logger.WithPrefix("ledger")
	return l
}

// Guest reports whether results stay local only.
func (l *Ledger) Guest() bool {
	return l.remote == nil
}

// Commit stores a finished record and marks its chapter completed. A
// *PersistenceError means the local write succeeded and the remote one did
// not; the returned progress is valid in that case.
func (l *Ledger) Commit(ctx context.Context, rec model.Record) (model.Progress, error) {
	if err := l.local.InsertRecord(ctx, rec); err != nil {
		return model.Progress{}, fmt.Errorf("failed to save record: %w", err)
	}
	wpm, acc, at := rec.WPM, rec.Accuracy, rec.CreatedAt
	progress, err := l.local.MergeProgress(ctx, model.Progress{
		ChapterID:    rec.ChapterID,
		Status:       model.StatusCompleted,
		BestWPM:      &wpm,
		BestAccuracy: &acc,
		LastPlayedAt: &at,
	})
	if err != nil {
		return model.Progress{}, fmt.Errorf("failed to update progress: %w", err)
	}
	if l.Guest() {
		return progress, nil
	}

	remoteID, err := l.remote.SaveRecord(ctx, rec)
	if err != nil {
		l.logger.Warn("record queued for sync", "record", rec.ID, "err", err)
		return progress, &PersistenceError{Op: "save record", Err: err}
	}
	if err := l.local.MarkRecordsSynced(ctx, []string{rec.ID}, l.clock()); err != nil {
		return progress, fmt.Errorf("failed to mark record synced: %w", err)
	}
	if err := l.local.SetRecordRemoteID(ctx, rec.ID, remoteID); err != nil {
		return progress, fmt.Errorf("failed to link record: %w", err)
	}
	return progress, l.pushProgress(ctx, progress)
}

// Touch marks a chapter as in progress.
func (l *Ledger) Touch(ctx context.Context, chapterID string) (model.Progress, error) {
	now := l.clock()
	progress, err := l.local.MergeProgress(ctx, model.Progress{
		ChapterID:    chapterID,
		Status:       model.StatusInProgress,
		LastPlayedAt: &now,
	})
	if err != nil {
		return model.Progress{}, fmt.Errorf("failed to update progress: %w", err)
	}
	if l.Guest() {
		return progress, nil
	}
	return progress, l.pushProgress(ctx, progress)
}

func (l *Ledger) pushProgress(ctx context.Context, p model.Progress) error {
	if err := l.remote.UpsertProgress(ctx, p); err != nil {
		l.logger.Warn("progress queued for sync", "chapter", p.ChapterID, "err", err)
		return &PersistenceError{Op: "save progress", Err: err}
	}
	if err := l.local.MarkProgressSynced(ctx, []string{p.ChapterID}); err != nil {
		return fmt.Errorf("failed to mark progress synced: %w", err)
	}
	return nil
}

// Sync pushes every unsynced record and every changed progress row in one
// batch, then pulls the backend's progress and records. Pushed rows are
// marked synced only after the backend accepts the batch. Pulled progress
// is merged with the monotonic rule and pulled records are added when not
// already known locally.
func (l *Ledger) Sync(ctx context.Context) (SyncReport, error) {
	if l.Guest() {
		return SyncReport{}, ErrGuest
	}
	pushed, err := l.push(ctx)
	if err != nil {
		return SyncReport{}, err
	}
	report := SyncReport{SyncResult: pushed}
	if err := l.pull(ctx, &report); err != nil {
		return report, err
	}
	l.logger.Info("synced",
		"records", report.RecordsSynced, "progress", report.ProgressSynced,
		"pulled", report.RecordsPulled, "merged", report.ProgressMerged)
	return report, nil
}

func (l *Ledger) push(ctx context.Context) (remote.SyncResult, error) {
	records, err := l.local.UnsyncedRecords(ctx)
	if err != nil {
		return remote.SyncResult{}, fmt.Errorf("failed to load unsynced records: %w", err)
	}
	progress, err := l.local.DirtyProgress(ctx)
	if err != nil {
		return remote.SyncResult{}, fmt.Errorf("failed to load changed progress: %w", err)
	}
	if len(records) == 0 && len(progress) == 0 {
		return remote.SyncResult{}, nil
	}

	res, err := l.remote.Sync(ctx, records, progress)
	if err != nil {
		return remote.SyncResult{}, &PersistenceError{Op: "sync", Err: err}
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	if err := l.local.MarkRecordsSynced(ctx, ids, l.clock()); err != nil {
		return res, fmt.Errorf("failed to mark records synced: %w", err)
	}
	chapters := make([]string, 0, len(progress))
	for _, p := range progress {
		chapters = append(chapters, p.ChapterID)
	}
	if err := l.local.MarkProgressSynced(ctx, chapters); err != nil {
		return res, fmt.Errorf("failed to mark progress synced: %w", err)
	}
	return res, nil
}

func (l *Ledger) pull(ctx context.Context, report *SyncReport) error {
	progress, err := l.remote.ListProgress(ctx)
	if err != nil {
		return &PersistenceError{Op: "download progress", Err: err}
	}
	for _, p := range progress {
		if p.ChapterID == "" || !p.Status.Valid() {
			l.logger.Warn("skipping remote progress", "chapter", p.ChapterID, "status", p.Status)
			continue
		}
		if _, err := l.local.ApplyRemoteProgress(ctx, p); err != nil {
			return fmt.Errorf("failed to merge progress: %w", err)
		}
		report.ProgressMerged++
	}

	records, err := l.remote.ListRecords(ctx)
	if err != nil {
		return &PersistenceError{Op: "download records", Err: err}
	}
	now := l.clock()
	for _, r := range records {
		if r.Errors == nil {
			r.Errors = []model.ErrorEntry{}
		}
		r.ErrorCount = len(r.Errors)
		added, err := l.local.ImportRemoteRecord(ctx, r, now)
		if err != nil {
			return fmt.Errorf("failed to import record %s: %w", r.ID, err)
		}
		if added {
			report.RecordsPulled++
		}
	}
	return nil
}
