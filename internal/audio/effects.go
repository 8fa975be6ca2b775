package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Sound identifies a feedback effect.
type Sound int

const (
	KeyPress Sound = iota
	KeyError
	SentenceComplete
	ChapterComplete
)

func (s Sound) String() string {
	switch s {
	case KeyPress:
		return "key-press"
	case KeyError:
		return "key-error"
	case SentenceComplete:
		return "sentence-complete"
	case ChapterComplete:
		return "chapter-complete"
	}
	return "unknown"
}

// DefaultVolume is the initial effect volume.
const DefaultVolume = 0.5

var effectClips = map[Sound][]byte{
	KeyPress:         tone(note{freq: 1800, dur: 15 * time.Millisecond}),
	KeyError:         tone(note{freq: 220, dur: 70 * time.Millisecond}, note{freq: 180, dur: 90 * time.Millisecond}),
	SentenceComplete: tone(note{freq: 660, dur: 80 * time.Millisecond}, note{freq: 880, dur: 120 * time.Millisecond}),
	ChapterComplete: tone(
		note{freq: 523, dur: 110 * time.Millisecond},
		note{freq: 659, dur: 110 * time.Millisecond},
		note{freq: 784, dur: 110 * time.Millisecond},
		note{freq: 1047, dur: 240 * time.Millisecond},
	),
}

// Effects plays overlapping feedback sounds. Each Play gets its own
// cancellable handle so rapid keystrokes do not cut each other off.
type Effects struct {
	player Player
	logger *log.Logger

	mu     sync.Mutex
	volume float64
	next   uint64
	active map[uint64]context.CancelFunc
	wg     sync.WaitGroup
}

// NewEffects returns an effect pool at the given volume.
func NewEffects(player Player, volume float64, logger *log.Logger) *Effects {
	if player == nil {
		player = NopPlayer{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Effects{
		player: player,
		logger: logger.WithPrefix("effects"),
		volume: clamp(volume),
		active: make(map[uint64]context.CancelFunc),
	}
}

// SetVolume sets the volume, clamped to [0, 1].
func (e *Effects) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = clamp(v)
	e.mu.Unlock()
}

// Volume returns the current volume.
func (e *Effects) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Play starts sound in the background and returns a function that stops it.
func (e *Effects) Play(sound Sound) (stop func()) {
	pcm, ok := effectClips[sound]
	e.mu.Lock()
	vol := e.volume
	if !ok || vol == 0 {
		e.mu.Unlock()
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := e.next
	e.next++
	e.active[id] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	clip := Clip{Key: Key{Text: sound.String()}, PCM: scale(pcm, vol)}
	go func() {
		defer e.wg.Done()
		defer e.release(id)
		if err := e.player.Play(ctx, clip); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Debug("effect failed", "sound", sound, "err", err)
		}
	}()
	return func() { e.release(id) }
}

// Active returns the number of effects still playing.
func (e *Effects) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// StopAll cancels every playing effect and waits for them to end.
func (e *Effects) StopAll() {
	e.mu.Lock()
	for id, cancel := range e.active {
		cancel()
		delete(e.active, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Effects) release(id uint64) {
	e.mu.Lock()
	if cancel, ok := e.active[id]; ok {
		cancel()
		delete(e.active, id)
	}
	e.mu.Unlock()
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
