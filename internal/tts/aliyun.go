package tts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/verte-zerg/dictype/internal/audio"
)

const (
	defaultTokenURL   = "https://nls-meta.cn-shanghai.aliyuncs.com/"
	defaultGatewayURL = "https://nls-gateway-cn-shanghai.aliyuncs.com/stream/v1/tts"
	tokenRefreshSlack = time.Minute
)

// AliyunConfig configures the Aliyun NLS client.
type AliyunConfig struct {
	AccessKeyID       string
	AccessKeySecret   string
	AppKey            string
	TokenURL          string
	GatewayURL        string
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            *log.Logger
	Clock             func() time.Time
}

// Aliyun synthesizes speech through the Aliyun NLS gateway.
type Aliyun struct {
	cfg     AliyunConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAliyun validates cfg and returns a client.
func NewAliyun(cfg AliyunConfig) (*Aliyun, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.AppKey == "" {
		return nil, errors.New("aliyun credentials are incomplete")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = defaultGatewayURL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Aliyun{
		cfg:     cfg,
		client:  client,
		limiter: newLimiter(cfg.RequestsPerMinute),
		logger:  logger.WithPrefix("aliyun"),
	}, nil
}

type synthesisRequest struct {
	AppKey     string `json:"appkey"`
	Token      string `json:"token"`
	Text       string `json:"text"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Voice      string `json:"voice"`
	Volume     int    `json:"volume"`
	SpeechRate int    `json:"speech_rate"`
	PitchRate  int    `json:"pitch_rate"`
}

// Synthesize returns 16 kHz mono PCM for text.
func (a *Aliyun) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	if voice == "" {
		voice = DefaultVoice
	}
	token, err := a.getToken(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := wait(ctx, a.limiter, text); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(synthesisRequest{
		AppKey:     a.cfg.AppKey,
		Token:      token,
		Text:       text,
		Format:     "pcm",
		SampleRate: audio.SampleRate,
		Voice:      voice,
		Volume:     50,
	})
	if err != nil {
		return nil, &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	// The gateway labels every audio body audio/mpeg; the format is the one
	// requested.
	pcm, _, err := do(a.client, req, text)
	return pcm, err
}

type tokenResponse struct {
	Token *struct {
		ID         string `json:"Id"`
		ExpireTime int64  `json:"ExpireTime"`
	} `json:"Token"`
	Message string `json:"Message"`
}

func (a *Aliyun) getToken(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.cfg.Clock()
	if a.token != "" && now.Before(a.expires.Add(-tokenRefreshSlack)) {
		return a.token, nil
	}

	params := map[string]string{
		"AccessKeyId":      a.cfg.AccessKeyID,
		"Action":           "CreateToken",
		"Format":           "JSON",
		"RegionId":         "cn-shanghai",
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureNonce":   uuid.NewString(),
		"SignatureVersion": "1.0",
		"Timestamp":        now.UTC().Format("2006-01-02T15:04:05Z"),
		"Version":          "2019-02-28",
	}
	query := canonicalQuery(params)
	signature := sign(a.cfg.AccessKeySecret, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.TokenURL+"?"+query+"&Signature="+popEscape(signature), nil)
	if err != nil {
		return "", &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &audio.Error{Kind: audio.ErrNetwork, Text: text, Err: fmt.Errorf("failed to create token: %w", err)}
	}
	defer func() {
		// Best-effort close.
		_ = resp.Body.Close()
	}()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", &audio.Error{Kind: audio.ErrNetwork, Text: text, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tr.Token == nil || tr.Token.ID == "" {
		return "", &audio.Error{Kind: audio.ErrSynthesis, Text: text, Err: fmt.Errorf("failed to create token: %s", tr.Message)}
	}
	a.token = tr.Token.ID
	a.expires = time.Unix(tr.Token.ExpireTime, 0)
	a.logger.Debug("token refreshed", "expires", a.expires)
	return a.token, nil
}

func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, popEscape(k)+"="+popEscape(params[k]))
	}
	return strings.Join(parts, "&")
}

func sign(secret, query string) string {
	toSign := "GET&" + popEscape("/") + "&" + popEscape(query)
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(toSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// popEscape is RFC 3986 percent-encoding as the POP signature expects.
func popEscape(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	e = strings.ReplaceAll(e, "*", "%2A")
	return strings.ReplaceAll(e, "%7E", "~")
}
