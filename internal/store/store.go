// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/dictype/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a chapter, record or vocabulary entry does
// not exist.
var ErrNotFound = errors.New("not found")

// busyTimeoutMs is how long a connection waits for another process's write
// lock.
const busyTimeoutMs = 5000

// Store wraps SQLite access for chapters, records, progress and vocabulary.
type Store struct {
	db *sql.DB
}

// querier is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, busyTimeoutMs))
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized for the embedded driver.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chapters (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			ord INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sentences (
			chapter_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			translation TEXT NOT NULL,
			PRIMARY KEY (chapter_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			chapter_id TEXT NOT NULL,
			wpm INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			duration_s INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			synced_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS record_errors (
			record_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			sentence_id TEXT NOT NULL,
			expected TEXT NOT NULL,
			actual TEXT NOT NULL,
			PRIMARY KEY (record_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS progress (
			chapter_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			best_wpm INTEGER,
			best_accuracy REAL,
			last_played_at TEXT,
			dirty INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS vocabulary (
			sentence_id TEXT PRIMARY KEY,
			chapter_id TEXT NOT NULL,
			content TEXT NOT NULL,
			translation TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_record_errors_sentence ON record_errors(sentence_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	if err := s.addColumn("records", "remote_id", "TEXT"); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_records_remote_id ON records(remote_id);`)
	return err
}

// addColumn adds a column to a table created by an older schema.
func (s *Store) addColumn(table, column, decl string) error {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			_ = rows.Close()
			return err
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if found {
		return nil
	}
	_, err = s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

// immediate runs fn in a BEGIN IMMEDIATE transaction, so the write lock is
// held from the first read until commit.
func (s *Store) immediate(ctx context.Context, fn func(q querier) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			// Best-effort connection release.
			_ = cerr
		}
	}()
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return err
	}
	err = fn(conn)
	if err == nil {
		_, err = conn.ExecContext(ctx, `COMMIT`)
	}
	if err != nil {
		if _, rerr := conn.ExecContext(context.WithoutCancel(ctx), `ROLLBACK`); rerr != nil {
			// Best-effort rollback.
			_ = rerr
		}
		return err
	}
	return nil
}

// UpsertChapter stores a chapter, replacing any previous sentences.
func (s *Store) UpsertChapter(ctx context.Context, chapter model.Chapter) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO chapters (id, name, ord) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, ord = excluded.ord`,
		chapter.ID, chapter.Name, chapter.Order); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM sentences WHERE chapter_id = ?`, chapter.ID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sentences (chapter_id, position, id, content, translation) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for i, sentence := range chapter.Sentences {
		if _, err = stmt.ExecContext(ctx, chapter.ID, i, sentence.ID, sentence.Content, sentence.Translation); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListChapters returns chapter summaries ordered by their ordering key.
func (s *Store) ListChapters(ctx context.Context) ([]model.ChapterSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.ord, COUNT(s.id)
		 FROM chapters c LEFT JOIN sentences s ON s.chapter_id = c.id
		 GROUP BY c.id, c.name, c.ord
		 ORDER BY c.ord ASC, c.name ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.ChapterSummary
	for rows.Next() {
		var c model.ChapterSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Order, &c.SentenceCount); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetChapter loads a chapter with its sentences in order.
func (s *Store) GetChapter(ctx context.Context, id string) (model.Chapter, error) {
	var chapter model.Chapter
	err := s.db.QueryRowContext(ctx, `SELECT id, name, ord FROM chapters WHERE id = ?`, id).
		Scan(&chapter.ID, &chapter.Name, &chapter.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Chapter{}, fmt.Errorf("chapter %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Chapter{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, translation FROM sentences WHERE chapter_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return model.Chapter{}, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var sentence model.Sentence
		if err := rows.Scan(&sentence.ID, &sentence.Content, &sentence.Translation); err != nil {
			return model.Chapter{}, err
		}
		chapter.Sentences = append(chapter.Sentences, sentence)
	}
	if err := rows.Err(); err != nil {
		return model.Chapter{}, err
	}
	return chapter, nil
}

// InsertRecord stores a finished session record and its error log.
func (s *Store) InsertRecord(ctx context.Context, rec model.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	if err = insertRecord(ctx, tx, rec, nil, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRecord(ctx context.Context, q querier, rec model.Record, remoteID, syncedAt any) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO records (id, chapter_id, wpm, accuracy, duration_s, error_count, created_at, synced_at, remote_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.ChapterID,
		rec.WPM,
		rec.Accuracy,
		rec.DurationSeconds,
		rec.ErrorCount,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		syncedAt,
		remoteID,
	); err != nil {
		return err
	}
	for i, entry := range rec.Errors {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO record_errors (record_id, seq, sentence_id, expected, actual) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, i, entry.SentenceID, entry.Expected, entry.Actual); err != nil {
			return err
		}
	}
	return nil
}

// SetRecordRemoteID links a local record to the backend's copy of it.
func (s *Store) SetRecordRemoteID(ctx context.Context, id, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE records SET remote_id = ? WHERE id = ?`, remoteID, id)
	return err
}

// ImportRemoteRecord stores a record downloaded from the backend, using its
// backend id as both id and link. A record already linked is skipped. A
// synced local record without a link that matches on chapter, metrics and
// creation time to the millisecond is linked instead of duplicated. It
// reports whether a row was added.
func (s *Store) ImportRemoteRecord(ctx context.Context, rec model.Record, syncedAt time.Time) (bool, error) {
	if rec.ID == "" {
		return false, errors.New("remote record has no id")
	}
	added := false
	err := s.immediate(ctx, func(q querier) error {
		var known int
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM records WHERE remote_id = ? OR id = ?`, rec.ID, rec.ID).Scan(&known); err != nil {
			return err
		}
		if known > 0 {
			return nil
		}
		match, err := matchUnlinked(ctx, q, rec)
		if err != nil {
			return err
		}
		if match != "" {
			_, err := q.ExecContext(ctx, `UPDATE records SET remote_id = ? WHERE id = ?`, rec.ID, match)
			return err
		}
		stamp := syncedAt.UTC().Format(time.RFC3339Nano)
		if err := insertRecord(ctx, q, rec, rec.ID, stamp); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

func matchUnlinked(ctx context.Context, q querier, rec model.Record) (string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, created_at FROM records
		 WHERE remote_id IS NULL AND synced_at IS NOT NULL
		   AND chapter_id = ? AND wpm = ? AND duration_s = ? AND error_count = ?
		 ORDER BY created_at ASC, id ASC`,
		rec.ChapterID, rec.WPM, rec.DurationSeconds, rec.ErrorCount)
	if err != nil {
		return "", err
	}
	type candidate struct {
		id        string
		createdAt string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.createdAt); err != nil {
			_ = rows.Close()
			return "", err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return "", err
	}
	if err := rows.Close(); err != nil {
		return "", err
	}
	want := rec.CreatedAt.UTC().Truncate(time.Millisecond)
	for _, c := range candidates {
		at, err := time.Parse(time.RFC3339Nano, c.createdAt)
		if err != nil {
			return "", err
		}
		if at.UTC().Truncate(time.Millisecond).Equal(want) {
			return c.id, nil
		}
	}
	return "", nil
}

// GetRecord loads a record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (model.Record, error) {
	recs, err := s.queryRecords(ctx, `WHERE id = ?`, []any{id})
	if err != nil {
		return model.Record{}, err
	}
	if len(recs) == 0 {
		return model.Record{}, fmt.Errorf("record %q: %w", id, ErrNotFound)
	}
	return recs[0], nil
}

// ListRecords returns records oldest first, filtered by the given options.
func (s *Store) ListRecords(ctx context.Context, filter model.RecordFilter) ([]model.Record, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.ChapterID != "" {
		clauses = append(clauses, "chapter_id = ?")
		args = append(args, filter.ChapterID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	recs, err := s.queryRecords(ctx, "WHERE "+strings.Join(clauses, " AND "), args)
	if err != nil {
		return nil, err
	}
	if filter.Last > 0 && len(recs) > filter.Last {
		recs = recs[len(recs)-filter.Last:]
	}
	return recs, nil
}

// UnsyncedRecords returns records that have not been pushed to the remote.
func (s *Store) UnsyncedRecords(ctx context.Context) ([]model.Record, error) {
	return s.queryRecords(ctx, `WHERE synced_at IS NULL`, nil)
}

// MarkRecordsSynced stamps records as pushed.
func (s *Store) MarkRecordsSynced(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UTC().Format(time.RFC3339Nano))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE records SET synced_at = ? WHERE id IN (%s)`, strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) queryRecords(ctx context.Context, where string, args []any) ([]model.Record, error) {
	query := fmt.Sprintf(`SELECT id, chapter_id, wpm, accuracy, duration_s, error_count, created_at
		FROM records %s
		ORDER BY created_at ASC, id ASC`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var recs []model.Record
	for rows.Next() {
		var rec model.Record
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.ChapterID, &rec.WPM, &rec.Accuracy, &rec.DurationSeconds, &rec.ErrorCount, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = parsed
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range recs {
		entries, err := s.recordErrors(ctx, recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Errors = entries
	}
	return recs, nil
}

func (s *Store) recordErrors(ctx context.Context, recordID string) ([]model.ErrorEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sentence_id, expected, actual FROM record_errors WHERE record_id = ? ORDER BY seq ASC`, recordID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	entries := []model.ErrorEntry{}
	for rows.Next() {
		var entry model.ErrorEntry
		if err := rows.Scan(&entry.SentenceID, &entry.Expected, &entry.Actual); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetProgress returns the stored progress for a chapter, or a not_started
// entry when none exists.
func (s *Store) GetProgress(ctx context.Context, chapterID string) (model.Progress, error) {
	return getProgress(ctx, s.db, chapterID)
}

func getProgress(ctx context.Context, q querier, chapterID string) (model.Progress, error) {
	list, err := queryProgress(ctx, q, `WHERE chapter_id = ?`, chapterID)
	if err != nil {
		return model.Progress{}, err
	}
	if len(list) == 0 {
		return model.Progress{ChapterID: chapterID, Status: model.StatusNotStarted}, nil
	}
	return list[0], nil
}

// ListProgress returns progress for all chapters that have any.
func (s *Store) ListProgress(ctx context.Context) ([]model.Progress, error) {
	return queryProgress(ctx, s.db, "")
}

// DirtyProgress returns progress rows changed since the last sync.
func (s *Store) DirtyProgress(ctx context.Context) ([]model.Progress, error) {
	return queryProgress(ctx, s.db, `WHERE dirty = 1`)
}

// MarkProgressSynced clears the dirty flag for the given chapters.
func (s *Store) MarkProgressSynced(ctx context.Context, chapterIDs []string) error {
	if len(chapterIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(chapterIDs))
	args := make([]any, len(chapterIDs))
	for i, id := range chapterIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE progress SET dirty = 0 WHERE chapter_id IN (%s)`, strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// MergeProgress folds update into the stored progress using
// model.MergeProgress and marks the row dirty. The read and the write share
// one write-locked transaction.
func (s *Store) MergeProgress(ctx context.Context, update model.Progress) (model.Progress, error) {
	return s.mergeProgress(ctx, update, func(model.Progress) bool { return true })
}

// ApplyRemoteProgress folds a progress row downloaded from the backend into
// the stored one. The row stays dirty only when the merged result still
// holds something the backend lacks.
func (s *Store) ApplyRemoteProgress(ctx context.Context, remote model.Progress) (model.Progress, error) {
	return s.mergeProgress(ctx, remote, func(merged model.Progress) bool {
		return !sameScores(merged, remote)
	})
}

func (s *Store) mergeProgress(ctx context.Context, update model.Progress, dirty func(merged model.Progress) bool) (model.Progress, error) {
	var merged model.Progress
	err := s.immediate(ctx, func(q querier) error {
		existing, err := getProgress(ctx, q, update.ChapterID)
		if err != nil {
			return err
		}
		merged = model.MergeProgress(existing, update)

		var lastPlayed any
		if merged.LastPlayedAt != nil {
			lastPlayed = merged.LastPlayedAt.UTC().Format(time.RFC3339Nano)
		}
		var bestWPM, bestAcc any
		if merged.BestWPM != nil {
			bestWPM = *merged.BestWPM
		}
		if merged.BestAccuracy != nil {
			bestAcc = *merged.BestAccuracy
		}
		flag := 0
		if dirty(merged) {
			flag = 1
		}
		_, err = q.ExecContext(ctx,
			`INSERT INTO progress (chapter_id, status, best_wpm, best_accuracy, last_played_at, dirty)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(chapter_id) DO UPDATE SET
				status = excluded.status,
				best_wpm = excluded.best_wpm,
				best_accuracy = excluded.best_accuracy,
				last_played_at = excluded.last_played_at,
				dirty = excluded.dirty`,
			merged.ChapterID, string(merged.Status), bestWPM, bestAcc, lastPlayed, flag)
		return err
	})
	if err != nil {
		return model.Progress{}, err
	}
	return merged, nil
}

// sameScores compares the fields the backend stores.
func sameScores(a, b model.Progress) bool {
	if a.Status != b.Status {
		return false
	}
	if (a.BestWPM == nil) != (b.BestWPM == nil) || (a.BestWPM != nil && *a.BestWPM != *b.BestWPM) {
		return false
	}
	if (a.BestAccuracy == nil) != (b.BestAccuracy == nil) || (a.BestAccuracy != nil && *a.BestAccuracy != *b.BestAccuracy) {
		return false
	}
	return true
}

func queryProgress(ctx context.Context, q querier, where string, args ...any) ([]model.Progress, error) {
	query := fmt.Sprintf(`SELECT chapter_id, status, best_wpm, best_accuracy, last_played_at
		FROM progress %s ORDER BY chapter_id ASC`, where)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.Progress
	for rows.Next() {
		var p model.Progress
		var status string
		var bestWPM sql.NullInt64
		var bestAcc sql.NullFloat64
		var lastPlayed sql.NullString
		if err := rows.Scan(&p.ChapterID, &status, &bestWPM, &bestAcc, &lastPlayed); err != nil {
			return nil, err
		}
		p.Status = model.ProgressStatus(status)
		if bestWPM.Valid {
			v := int(bestWPM.Int64)
			p.BestWPM = &v
		}
		if bestAcc.Valid {
			v := bestAcc.Float64
			p.BestAccuracy = &v
		}
		if lastPlayed.Valid {
			parsed, err := time.Parse(time.RFC3339Nano, lastPlayed.String)
			if err != nil {
				return nil, err
			}
			p.LastPlayedAt = &parsed
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MissedSentences counts mismatches per sentence over the most recent
// window records, optionally limited to one chapter.
func (s *Store) MissedSentences(ctx context.Context, window int, chapterID string) ([]model.SentenceMiss, error) {
	if window <= 0 {
		return nil, nil
	}
	query := `WITH recent_records AS (
		SELECT id, chapter_id FROM records
		WHERE (? = '' OR chapter_id = ?)
		ORDER BY created_at DESC
		LIMIT ?
	)
	SELECT e.sentence_id, r.chapter_id, MAX(e.expected), COUNT(*) AS misses
	FROM record_errors e
	JOIN recent_records r ON r.id = e.record_id
	GROUP BY e.sentence_id, r.chapter_id`

	rows, err := s.db.QueryContext(ctx, query, chapterID, chapterID, window)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.SentenceMiss
	for rows.Next() {
		var miss model.SentenceMiss
		if err := rows.Scan(&miss.SentenceID, &miss.ChapterID, &miss.Content, &miss.Misses); err != nil {
			return nil, err
		}
		result = append(result, miss)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveVocab adds a sentence to the vocabulary. Saving a sentence that is
// already present only updates its status.
func (s *Store) SaveVocab(ctx context.Context, entry model.VocabEntry) (model.VocabEntry, error) {
	if !entry.Status.Valid() {
		return model.VocabEntry{}, fmt.Errorf("invalid vocabulary status %q", entry.Status)
	}
	now := entry.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	stamp := now.UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO vocabulary (sentence_id, chapter_id, content, translation, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sentence_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		entry.SentenceID, entry.ChapterID, entry.Content, entry.Translation, string(entry.Status), stamp, stamp); err != nil {
		return model.VocabEntry{}, err
	}
	return s.GetVocab(ctx, entry.SentenceID)
}

// GetVocab loads one vocabulary entry.
func (s *Store) GetVocab(ctx context.Context, sentenceID string) (model.VocabEntry, error) {
	list, err := s.queryVocab(ctx, `WHERE sentence_id = ?`, sentenceID)
	if err != nil {
		return model.VocabEntry{}, err
	}
	if len(list) == 0 {
		return model.VocabEntry{}, fmt.Errorf("vocabulary entry %q: %w", sentenceID, ErrNotFound)
	}
	return list[0], nil
}

// ListVocab returns vocabulary entries newest first. An empty status lists
// every entry.
func (s *Store) ListVocab(ctx context.Context, status model.VocabStatus) ([]model.VocabEntry, error) {
	if status == "" {
		return s.queryVocab(ctx, "")
	}
	return s.queryVocab(ctx, `WHERE status = ?`, string(status))
}

// SetVocabStatus changes the status of an existing entry.
func (s *Store) SetVocabStatus(ctx context.Context, sentenceID string, status model.VocabStatus, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid vocabulary status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE vocabulary SET status = ?, updated_at = ? WHERE sentence_id = ?`,
		string(status), at.UTC().Format(time.RFC3339Nano), sentenceID)
	if err != nil {
		return err
	}
	return requireRow(res, "vocabulary entry", sentenceID)
}

// DeleteVocab removes an entry.
func (s *Store) DeleteVocab(ctx context.Context, sentenceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vocabulary WHERE sentence_id = ?`, sentenceID)
	if err != nil {
		return err
	}
	return requireRow(res, "vocabulary entry", sentenceID)
}

func requireRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryVocab(ctx context.Context, where string, args ...any) ([]model.VocabEntry, error) {
	query := fmt.Sprintf(`SELECT sentence_id, chapter_id, content, translation, status, created_at, updated_at
		FROM vocabulary %s ORDER BY created_at DESC, sentence_id ASC`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.VocabEntry
	for rows.Next() {
		var e model.VocabEntry
		var status, createdAt, updatedAt string
		if err := rows.Scan(&e.SentenceID, &e.ChapterID, &e.Content, &e.Translation, &status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		e.Status = model.VocabStatus(status)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
