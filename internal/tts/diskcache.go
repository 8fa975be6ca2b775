package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"

	"github.com/verte-zerg/dictype/internal/audio"
)

// DiskCache stores synthesized audio compressed on disk and serves
// repeated requests without calling the wrapped synthesizer.
type DiskCache struct {
	dir     string
	next    audio.Synthesizer
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *log.Logger
}

// NewDiskCache wraps next with a cache rooted at dir.
func NewDiskCache(dir string, next audio.Synthesizer, logger *log.Logger) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &DiskCache{dir: dir, next: next, encoder: enc, decoder: dec, logger: logger.WithPrefix("tts-cache")}, nil
}

// Synthesize returns cached audio or delegates and stores the result.
func (c *DiskCache) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	path := c.path(text, voice)
	if data, err := os.ReadFile(path); err == nil {
		pcm, err := c.decoder.DecodeAll(data, nil)
		if err == nil {
			return pcm, nil
		}
		c.logger.Warn("dropping corrupt cache entry", "path", path, "err", err)
		_ = os.Remove(path)
	}

	pcm, err := c.next.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	if err := c.put(path, pcm); err != nil {
		c.logger.Warn("failed to cache audio", "err", err)
	}
	return pcm, nil
}

// Close releases the codec resources.
func (c *DiskCache) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

func (c *DiskCache) path(text, voice string) string {
	sum := sha256.Sum256([]byte(voice + "\x00" + text))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.dir, name[:2], name+".pcm.zst")
}

func (c *DiskCache) put(path string, pcm []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(c.encoder.EncodeAll(pcm, nil)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
