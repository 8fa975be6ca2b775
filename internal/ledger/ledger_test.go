package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/remote"
	"github.com/verte-zerg/dictype/internal/store"
)

type fakeRemote struct {
	fail      error
	saved     []string
	progress  []model.Progress
	syncCalls int
	batch     []string

	serverRecords  []model.Record
	serverProgress []model.Progress
	listFail       error
}

func (f *fakeRemote) SaveRecord(_ context.Context, rec model.Record) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.saved = append(f.saved, rec.ID)
	return "srv-" + rec.ID, nil
}

func (f *fakeRemote) ListRecords(context.Context) ([]model.Record, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if f.listFail != nil {
		return nil, f.listFail
	}
	return f.serverRecords, nil
}

func (f *fakeRemote) ListProgress(context.Context) ([]model.Progress, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.serverProgress, nil
}

func (f *fakeRemote) UpsertProgress(_ context.Context, p model.Progress) error {
	if f.fail != nil {
		return f.fail
	}
	f.progress = append(f.progress, p)
	return nil
}

func (f *fakeRemote) Sync(_ context.Context, records []model.Record, progress []model.Progress) (remote.SyncResult, error) {
	f.syncCalls++
	if f.fail != nil {
		return remote.SyncResult{}, f.fail
	}
	f.batch = nil
	for _, r := range records {
		f.batch = append(f.batch, r.ID)
	}
	return remote.SyncResult{RecordsSynced: len(records), ProgressSynced: len(progress)}, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "dictype.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var fixedNow = time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

func record(id string, wpm int, acc float64) model.Record {
	return model.Record{ID: id, ChapterID: "ch1", WPM: wpm, Accuracy: acc, DurationSeconds: 30, CreatedAt: fixedNow}
}

func TestGuestCommitStaysLocal(t *testing.T) {
	st := openStore(t)
	l := New(st, nil, Options{Clock: func() time.Time { return fixedNow }})
	ctx := context.Background()

	require.True(t, l.Guest())
	p, err := l.Commit(ctx, record("r1", 25, 96))
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, p.Status)
	require.Equal(t, 25, *p.BestWPM)

	_, err = l.Sync(ctx)
	require.ErrorIs(t, err, ErrGuest)

	unsynced, err := st.UnsyncedRecords(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
}

func TestCommitPushesAndMarksSynced(t *testing.T) {
	st := openStore(t)
	rem := &fakeRemote{}
	l := New(st, rem, Options{Clock: func() time.Time { return fixedNow }})
	ctx := context.Background()

	_, err := l.Commit(ctx, record("r1", 25, 96))
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, rem.saved)
	require.Len(t, rem.progress, 1)

	unsynced, err := st.UnsyncedRecords(ctx)
	require.NoError(t, err)
	require.Empty(t, unsynced)
	dirty, err := st.DirtyProgress(ctx)
	require.NoError(t, err)
	require.Empty(t, dirty)

	res, err := l.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, SyncReport{}, res)
	require.Equal(t, 0, rem.syncCalls, "nothing pending means no push")
}

func TestRemoteFailureQueuesForSync(t *testing.T) {
	st := openStore(t)
	rem := &fakeRemote{fail: errors.New("timeout")}
	l := New(st, rem, Options{Clock: func() time.Time { return fixedNow }})
	ctx := context.Background()

	p, err := l.Commit(ctx, record("r1", 25, 96))
	require.ErrorIs(t, err, ErrPersistence)
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "save record", pe.Op)
	require.Equal(t, model.StatusCompleted, p.Status, "local progress still updated")

	_, err = l.Commit(ctx, record("r2", 20, 99))
	require.ErrorIs(t, err, ErrPersistence)
	_, err = l.Sync(ctx)
	require.ErrorIs(t, err, ErrPersistence)

	rem.fail = nil
	res, err := l.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.RecordsSynced)
	require.Equal(t, 1, res.ProgressSynced)
	require.Equal(t, []string{"r1", "r2"}, rem.batch)

	_, err = l.Commit(ctx, record("r3", 30, 90))
	require.NoError(t, err)
	rem.fail = errors.New("offline")
	_, err = l.Touch(ctx, "ch2")
	require.ErrorIs(t, err, ErrPersistence)
	rem.fail = nil
	_, err = l.Sync(ctx)
	require.NoError(t, err)
	require.Empty(t, rem.batch, "already synced records are not re-sent")

	progress, err := st.GetProgress(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, 30, *progress.BestWPM)
	require.Equal(t, 99.0, *progress.BestAccuracy)
}

func TestTouchDoesNotRegressCompleted(t *testing.T) {
	st := openStore(t)
	l := New(st, nil, Options{Clock: func() time.Time { return fixedNow.Add(time.Hour) }})
	ctx := context.Background()

	_, err := l.Commit(ctx, record("r1", 25, 96))
	require.NoError(t, err)
	p, err := l.Touch(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, p.Status)
	require.Equal(t, fixedNow.Add(time.Hour), *p.LastPlayedAt)

	fresh, err := l.Touch(ctx, "ch2")
	require.NoError(t, err)
	require.Equal(t, model.StatusInProgress, fresh.Status)
	require.Nil(t, fresh.BestWPM)
}

func TestSyncPullsBackendProgressAndRecords(t *testing.T) {
	st := openStore(t)
	rem := &fakeRemote{}
	l := New(st, rem, Options{Clock: func() time.Time { return fixedNow }})
	ctx := context.Background()

	_, err := l.Commit(ctx, record("r1", 25, 96))
	require.NoError(t, err)

	serverWPM, serverAcc := 50, 90.0
	rem.serverProgress = []model.Progress{
		{ChapterID: "ch1", Status: model.StatusCompleted, BestWPM: &serverWPM, BestAccuracy: &serverAcc},
		{ChapterID: "ch2", Status: "bogus"},
	}
	rem.serverRecords = []model.Record{
		{ID: "srv-r1", ChapterID: "ch1", WPM: 25, Accuracy: 96, DurationSeconds: 30, CreatedAt: fixedNow},
		{ID: "srv-other", ChapterID: "ch2", WPM: 50, Accuracy: 90, DurationSeconds: 20, ErrorCount: 3,
			Errors: []model.ErrorEntry{{Expected: "Hi.", Actual: "hey", SentenceID: "2-1"}}, CreatedAt: fixedNow.Add(-24 * time.Hour)},
	}

	res, err := l.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.RecordsPulled, "the linked copy of r1 is not imported again")
	require.Equal(t, 1, res.ProgressMerged)

	progress, err := st.GetProgress(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, 50, *progress.BestWPM)
	require.Equal(t, 96.0, *progress.BestAccuracy)

	recs, err := st.ListRecords(ctx, model.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	other, err := st.GetRecord(ctx, "srv-other")
	require.NoError(t, err)
	require.Equal(t, 1, other.ErrorCount, "error count follows the error log")

	res, err = l.Sync(ctx)
	require.NoError(t, err)
	require.Empty(t, rem.batch, "pulled records are never pushed back")
	require.Equal(t, 1, res.ProgressSynced, "local accuracy is still ahead of the backend")
	require.Zero(t, res.RecordsPulled)
}

func TestSyncDownloadFailureIsPersistenceError(t *testing.T) {
	st := openStore(t)
	rem := &fakeRemote{listFail: errors.New("gateway timeout")}
	l := New(st, rem, Options{Clock: func() time.Time { return fixedNow }})

	_, err := l.Sync(context.Background())
	require.ErrorIs(t, err, ErrPersistence)
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "download records", pe.Op)
}
