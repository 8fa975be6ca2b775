package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/dictype/internal/audio"
)

func newAliyunServer(t *testing.T, synth http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var tokens atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokens.Add(1)
		q := r.URL.Query()
		if q.Get("Action") != "CreateToken" || q.Get("Signature") == "" || q.Get("AccessKeyId") != "id" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Message":"bad request"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Token":{"Id":"tok-1","ExpireTime":` + jsonInt(time.Now().Add(time.Hour).Unix()) + `}}`))
	})
	mux.HandleFunc("/tts", synth)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokens
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func newTestAliyun(t *testing.T, srv *httptest.Server) *Aliyun {
	t.Helper()
	a, err := NewAliyun(AliyunConfig{
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
		AppKey:          "app",
		TokenURL:        srv.URL + "/token",
		GatewayURL:      srv.URL + "/tts",
		HTTPClient:      srv.Client(),
	})
	require.NoError(t, err)
	return a
}

func TestAliyunSynthesizeCachesToken(t *testing.T) {
	srv, tokens := newAliyunServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Token != "tok-1" || req.AppKey != "app" || req.Format != "pcm" || req.SampleRate != audio.SampleRate {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/basic")
		_, _ = w.Write([]byte(req.Voice + ":" + req.Text))
	})
	a := newTestAliyun(t, srv)

	pcm, err := a.Synthesize(context.Background(), "Hello.", "Olivia")
	require.NoError(t, err)
	require.Equal(t, "Olivia:Hello.", string(pcm))

	pcm, err = a.Synthesize(context.Background(), "Again.", "")
	require.NoError(t, err)
	require.Equal(t, "Wendy:Again.", string(pcm))
	require.Equal(t, int32(1), tokens.Load())
}

func TestAliyunJSONResponseIsSynthesisError(t *testing.T) {
	srv, _ := newAliyunServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":40000000,"message":"voice not found"}`))
	})
	a := newTestAliyun(t, srv)

	_, err := a.Synthesize(context.Background(), "Hello.", "Nobody")
	require.ErrorIs(t, err, audio.ErrSynthesis)
	require.Contains(t, err.Error(), "voice not found")
}

func TestTextLimitRejectedBeforeRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write([]byte("pcm"))
	}))
	t.Cleanup(srv.Close)

	b, err := NewBackend(BackendConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	_, err = b.Synthesize(context.Background(), strings.Repeat("é", MaxTextRunes+1), "Wendy")
	require.ErrorIs(t, err, audio.ErrSynthesis)
	_, err = b.Synthesize(context.Background(), "   ", "Wendy")
	require.ErrorIs(t, err, audio.ErrSynthesis)
	require.Equal(t, int32(0), hits.Load())

	_, err = b.Synthesize(context.Background(), strings.Repeat("é", MaxTextRunes), "Wendy")
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())
}

func TestBackendRequestAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts/synthesize" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer t0k" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("text") {
		case "boom":
			http.Error(w, "down", http.StatusBadGateway)
		case "mp3":
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3\x03\x00\x00\x00\x00\x00\x00garbage frames"))
		case "html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html>login</html>"))
		default:
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte(r.URL.Query().Get("voice") + "|" + r.URL.Query().Get("text")))
		}
	}))
	t.Cleanup(srv.Close)

	b, err := NewBackend(BackendConfig{BaseURL: srv.URL + "/api/", Token: "t0k", HTTPClient: srv.Client()})
	require.NoError(t, err)

	pcm, err := b.Synthesize(context.Background(), "How are you?", "Harry")
	require.NoError(t, err)
	require.Equal(t, "Harry|How are you?", string(pcm))

	_, err = b.Synthesize(context.Background(), "boom", "Harry")
	require.ErrorIs(t, err, audio.ErrNetwork)

	pcm, err = b.Synthesize(context.Background(), "mp3", "Harry")
	require.ErrorIs(t, err, audio.ErrSynthesis, "mp3 bodies are decoded, never played as raw pcm")
	require.Nil(t, pcm)

	_, err = b.Synthesize(context.Background(), "html", "Harry")
	require.ErrorIs(t, err, audio.ErrSynthesis)
	require.Contains(t, err.Error(), "text/html")

	anon, err := NewBackend(BackendConfig{BaseURL: srv.URL + "/api", HTTPClient: srv.Client()})
	require.NoError(t, err)
	_, err = anon.Synthesize(context.Background(), "Hi.", "")
	require.ErrorIs(t, err, audio.ErrSynthesis)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b, err := NewBackend(BackendConfig{BaseURL: url})
	require.NoError(t, err)
	_, err = b.Synthesize(context.Background(), "Hi.", "Wendy")
	require.ErrorIs(t, err, audio.ErrNetwork)
}

type countingSynth struct {
	calls atomic.Int32
	err   error
}

func (c *countingSynth) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []byte(strings.Repeat(voice+text, 100)), nil
}

func TestDiskCacheServesRepeats(t *testing.T) {
	dir := t.TempDir()
	next := &countingSynth{}
	cache, err := NewDiskCache(dir, next, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	first, err := cache.Synthesize(context.Background(), "Hello.", "Wendy")
	require.NoError(t, err)
	second, err := cache.Synthesize(context.Background(), "Hello.", "Wendy")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, int32(1), next.calls.Load())

	_, err = cache.Synthesize(context.Background(), "Hello.", "Harry")
	require.NoError(t, err)
	require.Equal(t, int32(2), next.calls.Load())

	raw, err := os.ReadFile(cache.path("Hello.", "Wendy"))
	require.NoError(t, err)
	require.Less(t, len(raw), len(first))
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(raw, nil)
	require.NoError(t, err)
	require.Equal(t, first, plain)
}

func TestDiskCacheRecoversFromCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	next := &countingSynth{}
	cache, err := NewDiskCache(dir, next, nil)
	require.NoError(t, err)

	path := cache.path("Hi.", "Wendy")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))

	_, err = cache.Synthesize(context.Background(), "Hi.", "Wendy")
	require.NoError(t, err)
	require.Equal(t, int32(1), next.calls.Load())

	next.err = errors.New("offline")
	_, err = cache.Synthesize(context.Background(), "Hi.", "Wendy")
	require.NoError(t, err, "rewritten entry should be served")
}

func TestSignatureIsStable(t *testing.T) {
	query := canonicalQuery(map[string]string{"b": "2", "a": "x y*~"})
	require.Equal(t, "a=x%20y%2A~&b=2", query)
	require.Equal(t, sign("secret", query), sign("secret", query))
	require.NotEqual(t, sign("secret", query), sign("other", query))
}
