package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/dictype/internal/model"
)

func writeEnvelope(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": success, "data": data, "message": message})
}

func TestClientRoutesAndAuth(t *testing.T) {
	var seen []string
	var synced syncPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer tok" {
			writeEnvelope(w, http.StatusUnauthorized, false, nil, "unauthenticated")
			return
		}
		switch r.URL.Path {
		case "/api/records":
			var p recordPayload
			_ = json.NewDecoder(r.Body).Decode(&p)
			if p.ChapterID != "ch1" || p.Duration != 42 || p.Errors == nil {
				writeEnvelope(w, http.StatusBadRequest, false, nil, "bad record")
				return
			}
			writeEnvelope(w, http.StatusOK, true, map[string]any{"id": "srv-1"}, "")
		case "/api/progress/ch1":
			writeEnvelope(w, http.StatusOK, true, nil, "")
		case "/api/sync":
			_ = json.NewDecoder(r.Body).Decode(&synced)
			writeEnvelope(w, http.StatusOK, true, SyncResult{RecordsSynced: len(synced.Records), ProgressSynced: len(synced.Progress)}, "ok")
		case "/api/chapters":
			writeEnvelope(w, http.StatusOK, true, []model.ChapterSummary{{ID: "ch1", Name: "Greetings", Order: 1, SentenceCount: 5}}, "")
		case "/api/chapters/ch1":
			writeEnvelope(w, http.StatusOK, true, model.Chapter{ID: "ch1", Sentences: []model.Sentence{{ID: "1-1", Content: "Hi."}}}, "")
		default:
			writeEnvelope(w, http.StatusNotFound, false, nil, "not found")
		}
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/api/", "tok", srv.Client())
	ctx := context.Background()
	rec := model.Record{ID: "local", ChapterID: "ch1", WPM: 30, Accuracy: 97.5, DurationSeconds: 42, CreatedAt: time.Now()}

	remoteID, err := c.SaveRecord(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, "srv-1", remoteID)
	wpm := 30
	require.NoError(t, c.UpsertProgress(ctx, model.Progress{ChapterID: "ch1", Status: model.StatusCompleted, BestWPM: &wpm}))

	res, err := c.Sync(ctx, []model.Record{rec, rec}, nil)
	require.NoError(t, err)
	require.Equal(t, SyncResult{RecordsSynced: 2, ProgressSynced: 0}, res)
	require.NotNil(t, synced.Progress)

	list, err := c.ListChapters(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	ch, err := c.GetChapter(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, "Hi.", ch.Sentences[0].Content)

	_, err = c.GetChapter(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "not found", apiErr.Message)

	anon := New(srv.URL+"/api", "", srv.Client())
	_, err = anon.SaveRecord(ctx, rec)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Contains(t, seen, "PUT /api/progress/ch1")
	require.Contains(t, seen, "POST /api/sync")
}

func TestClientRejectsUnsuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, false, nil, "chapter does not exist")
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, "tok", srv.Client()).SaveRecord(context.Background(), model.Record{ChapterID: "x"})
	require.ErrorContains(t, err, "chapter does not exist")
}

func TestClientNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(base, "tok", nil).SaveRecord(context.Background(), model.Record{ChapterID: "x"})
	require.ErrorContains(t, err, "failed to reach backend")
}

func TestClientDownloadsRecordsAndProgress(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/records":
			offset := r.URL.Query().Get("offset")
			offsets = append(offsets, offset)
			require.Equal(t, "100", r.URL.Query().Get("limit"))
			var recs []map[string]any
			if offset == "0" {
				for i := 0; i < 100; i++ {
					recs = append(recs, map[string]any{"id": "srv", "chapterId": "ch1", "wpm": 20})
				}
			} else {
				recs = append(recs, map[string]any{
					"id": "srv-last", "chapterId": "ch2", "wpm": 31, "accuracy": 98.5, "duration": 40,
					"errorCount": 1, "errors": []map[string]any{{"expected": "Hi.", "actual": "hi", "sentenceId": "2-1"}},
					"createdAt": "2025-03-02T12:00:00.123Z", "chapter": map[string]any{"id": "ch2", "name": "Family"},
				})
			}
			writeEnvelope(w, http.StatusOK, true, map[string]any{"records": recs, "total": 101, "limit": 100, "offset": offset}, "")
		case "/progress":
			writeEnvelope(w, http.StatusOK, true, []map[string]any{
				{"id": "p1", "chapterId": "ch1", "status": "completed", "bestWpm": 44, "bestAccuracy": nil, "lastPlayedAt": "2025-03-01T08:00:00.000Z"},
			}, "")
		default:
			writeEnvelope(w, http.StatusNotFound, false, nil, "not found")
		}
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "tok", srv.Client())
	ctx := context.Background()

	recs, err := c.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 101)
	require.Equal(t, []string{"0", "100"}, offsets)
	last := recs[100]
	require.Equal(t, "srv-last", last.ID)
	require.Equal(t, 40, last.DurationSeconds)
	require.Equal(t, []model.ErrorEntry{{Expected: "Hi.", Actual: "hi", SentenceID: "2-1"}}, last.Errors)
	require.Equal(t, time.Date(2025, 3, 2, 12, 0, 0, 123e6, time.UTC), last.CreatedAt.UTC())

	progress, err := c.ListProgress(ctx)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	require.Equal(t, model.StatusCompleted, progress[0].Status)
	require.Equal(t, 44, *progress[0].BestWPM)
	require.Nil(t, progress[0].BestAccuracy)
	require.NotNil(t, progress[0].LastPlayedAt)
}
