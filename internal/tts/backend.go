package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/verte-zerg/dictype/internal/audio"
)

// BackendConfig configures the dictype backend client.
type BackendConfig struct {
	BaseURL           string
	Token             string
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Backend requests speech from the dictype backend's /tts/synthesize route.
type Backend struct {
	base    string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewBackend returns a client for cfg.BaseURL.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend url is empty")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Backend{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  client,
		limiter: newLimiter(cfg.RequestsPerMinute),
	}, nil
}

// Synthesize returns PCM audio for text. MP3 responses are decoded; raw
// PCM is accepted as audio/pcm, audio/L16 or application/octet-stream.
func (b *Backend) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if err := wait(ctx, b.limiter, text); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("text", text)
	q.Set("voice", voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+"/tts/synthesize?"+q.Encode(), nil)
	if err != nil {
		return nil, &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: err}
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	body, mediaType, err := do(b.client, req, text)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(mediaType) {
	case "audio/mpeg", "audio/mp3":
		pcm, err := audio.DecodeMP3(body)
		if err != nil {
			return nil, &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: err}
		}
		return pcm, nil
	case "audio/pcm", "audio/l16", "application/octet-stream":
		return body, nil
	default:
		return nil, &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: fmt.Errorf("unsupported audio type %q", mediaType)}
	}
}
