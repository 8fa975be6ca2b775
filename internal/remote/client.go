// Package remote talks to the dictype HTTP backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/dictype/internal/model"
)

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("not signed in")

// APIError is a failed backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// SyncResult counts what the backend accepted.
type SyncResult struct {
	RecordsSynced  int `json:"recordsSynced"`
	ProgressSynced int `json:"progressSynced"`
}

// Client is a backend API client.
type Client struct {
	base   string
	token  string
	client *http.Client
}

// New returns a client for base, e.g. https://host/api.
func New(base, token string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), token: token, client: client}
}

type recordPayload struct {
	ChapterID  string             `json:"chapterId"`
	WPM        int                `json:"wpm"`
	Accuracy   float64            `json:"accuracy"`
	Duration   int                `json:"duration"`
	ErrorCount int                `json:"errorCount"`
	Errors     []model.ErrorEntry `json:"errors"`
	CreatedAt  time.Time          `json:"createdAt"`
}

func toPayload(r model.Record) recordPayload {
	errs := r.Errors
	if errs == nil {
		errs = []model.ErrorEntry{}
	}
	return recordPayload{
		ChapterID:  r.ChapterID,
		WPM:        r.WPM,
		Accuracy:   r.Accuracy,
		Duration:   r.DurationSeconds,
		ErrorCount: r.ErrorCount,
		Errors:     errs,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

// SaveRecord uploads one finished session and returns the id the backend
// assigned to it.
func (c *Client) SaveRecord(ctx context.Context, r model.Record) (string, error) {
	var saved struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/records", toPayload(r), &saved); err != nil {
		return "", err
	}
	return saved.ID, nil
}

// recordPageSize is the page size used when listing records.
const recordPageSize = 100

type recordPage struct {
	Records []model.Record `json:"records"`
	Total   int            `json:"total"`
}

// ListRecords returns every record the backend holds for the user, newest
// first.
func (c *Client) ListRecords(ctx context.Context) ([]model.Record, error) {
	var out []model.Record
	for offset := 0; ; {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(recordPageSize))
		q.Set("offset", strconv.Itoa(offset))
		var page recordPage
		if err := c.do(ctx, http.MethodGet, "/records?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		offset += len(page.Records)
		if len(page.Records) == 0 || offset >= page.Total {
			return out, nil
		}
	}
}

type progressPayload struct {
	Status       model.ProgressStatus `json:"status,omitempty"`
	BestWPM      *int                 `json:"bestWpm,omitempty"`
	BestAccuracy *float64             `json:"bestAccuracy,omitempty"`
}

// UpsertProgress sends chapter progress. The backend keeps the better score.
func (c *Client) UpsertProgress(ctx context.Context, p model.Progress) error {
	path := "/progress/" + url.PathEscape(p.ChapterID)
	body := progressPayload{Status: p.Status, BestWPM: p.BestWPM, BestAccuracy: p.BestAccuracy}
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// ListProgress returns the backend's progress rows for the user.
func (c *Client) ListProgress(ctx context.Context) ([]model.Progress, error) {
	var out []model.Progress
	err := c.do(ctx, http.MethodGet, "/progress", nil, &out)
	return out, err
}

type syncPayload struct {
	Records  []recordPayload  `json:"records"`
	Progress []model.Progress `json:"progress"`
}

// Sync uploads records and progress in one batch.
func (c *Client) Sync(ctx context.Context, records []model.Record, progress []model.Progress) (SyncResult, error) {
	body := syncPayload{Records: make([]recordPayload, 0, len(records)), Progress: progress}
	for _, r := range records {
		body.Records = append(body.Records, toPayload(r))
	}
	if body.Progress == nil {
		body.Progress = []model.Progress{}
	}
	var res SyncResult
	err := c.do(ctx, http.MethodPost, "/sync", body, &res)
	return res, err
}

// ListChapters returns the backend's chapter listing.
func (c *Client) ListChapters(ctx context.Context) ([]model.ChapterSummary, error) {
	var out []model.ChapterSummary
	err := c.do(ctx, http.MethodGet, "/chapters", nil, &out)
	return out, err
}

// GetChapter returns one chapter with its sentences.
func (c *Client) GetChapter(ctx context.Context, id string) (model.Chapter, error) {
	var out model.Chapter
	err := c.do(ctx, http.MethodGet, "/chapters/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer func() {
		// Best-effort close.
		_ = resp.Body.Close()
	}()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
