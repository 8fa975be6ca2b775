// Package audio fetches, caches and plays sentence audio.
package audio

import (
	"context"
	"time"
)

// SampleRate is the PCM rate of every clip: 16-bit little-endian mono.
const SampleRate = 16000

// Key identifies a synthesized clip.
type Key struct {
	Text  string
	Voice string
}

// Clip is raw PCM audio.
type Clip struct {
	Key Key
	PCM []byte
}

// Duration returns the playback length of c.
func (c Clip) Duration() time.Duration {
	samples := len(c.PCM) / 2
	return time.Duration(samples) * time.Second / SampleRate
}

// Synthesizer turns text into PCM audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Player plays a clip, blocking until it ends or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// NopPlayer discards audio.
type NopPlayer struct{}

// Play returns immediately.
func (NopPlayer) Play(ctx context.Context, _ Clip) error {
	return ctx.Err()
}
