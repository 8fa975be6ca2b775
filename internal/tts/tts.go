// Package tts provides speech synthesis backends.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/verte-zerg/dictype/internal/audio"
)

// MaxTextRunes is the longest text a provider accepts.
const MaxTextRunes = 500

// DefaultVoice is used when no voice is configured.
const DefaultVoice = "Wendy"

// Voice is a selectable speaker.
type Voice struct {
	Name        string
	Description string
}

// Voices lists the English speakers offered by the service.
var Voices = []Voice{
	{Name: "Wendy", Description: "US English, female"},
	{Name: "William", Description: "US English, male"},
	{Name: "Olivia", Description: "British English, female"},
	{Name: "Harry", Description: "British English, male"},
}

// ValidVoice reports whether name is one of Voices.
func ValidVoice(name string) bool {
	for _, v := range Voices {
		if v.Name == name {
			return true
		}
	}
	return false
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: errors.New("text is empty")}
	}
	if n := utf8.RuneCountInString(text); n > MaxTextRunes {
		return &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: fmt.Errorf("text has %d characters, limit is %d", n, MaxTextRunes)}
	}
	return nil
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

func wait(ctx context.Context, l *rate.Limiter, text string) error {
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &audio.Error{Kind: audio.ErrNetwork, Text: text, Err: fmt.Errorf("rate limit: %w", err)}
	}
	return nil
}

// do sends req and returns the body and media type of a successful audio
// response.
func do(client *http.Client, req *http.Request, text string) ([]byte, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, "", req.Context().Err()
		}
		return nil, "", &audio.Error{Kind: audio.ErrNetwork, Text: text, Err: err}
	}
	defer func() {
		// Best-effort close.
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &audio.Error{Kind: audio.ErrNetwork, Text: text, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, "", &audio.Error{Kind: audio.ErrNetwork, Text: text, Err: fmt.Errorf("server returned %s", resp.Status)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: fmt.Errorf("server returned %s: %s", resp.Status, snippet(body))}
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	if mediaType == "application/json" {
		return nil, "", &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: fmt.Errorf("service error: %s", snippet(body))}
	}
	if len(body) == 0 {
		return nil, "", &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: errors.New("empty audio")}
	}
	return body, mediaType, nil
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
