package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayer plays clips on the system audio device.
type OtoPlayer struct {
	ctx *oto.Context
}

var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoErr     error
)

// NewOtoPlayer opens the audio device. oto allows a single context per
// process, so every player shares it.
func NewOtoPlayer() (*OtoPlayer, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create audio context: %w", err)
			return
		}
		<-ready
		otoContext = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	return &OtoPlayer{ctx: otoContext}, nil
}

// Play blocks until clip has played or ctx is done.
func (p *OtoPlayer) Play(ctx context.Context, clip Clip) error {
	if len(clip.PCM) == 0 {
		return nil
	}
	player := p.ctx.NewPlayer(bytes.NewReader(clip.PCM))
	defer func() {
		// Best-effort close.
		_ = player.Close()
	}()
	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := player.Err(); err != nil {
		return fmt.Errorf("failed to play audio: %w", err)
	}
	return nil
}
