package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/verte-zerg/dictype/internal/model"
)

// Handle is a prefetched clip ready to play.
type Handle struct {
	Index int
	Clip  Clip
}

// SequencerOptions configure a Sequencer.
type SequencerOptions struct {
	Voice  string
	Logger *log.Logger
}

// Sequencer keeps audio one sentence ahead of the learner. It is safe for
// concurrent use.
type Sequencer struct {
	synth  Synthesizer
	player Player
	logger *log.Logger

	fetch singleflight.Group

	mu       sync.Mutex
	voice    string
	chapter  model.Chapter
	focus    int
	gen      uint64
	session  context.Context
	teardown context.CancelFunc
	cache    map[Key]Clip
	playing  map[Key]*playback
}

type playback struct {
	done    chan struct{}
	cancel  context.CancelFunc
	err     error
	waiters int
}

// NewSequencer returns a sequencer with no chapter loaded.
func NewSequencer(synth Synthesizer, player Player, opts SequencerOptions) *Sequencer {
	if player == nil {
		player = NopPlayer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Sequencer{
		synth:   synth,
		player:  player,
		logger:  logger.WithPrefix("audio"),
		voice:   opts.Voice,
		playing: make(map[Key]*playback),
	}
	s.resetLocked()
	return s
}

// SetVoice changes the voice used for later requests.
func (s *Sequencer) SetVoice(voice string) {
	s.mu.Lock()
	s.voice = voice
	s.mu.Unlock()
}

// Load tears down the previous chapter and focuses the first sentence.
func (s *Sequencer) Load(chapter model.Chapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.chapter = chapter
}

// Reset abandons in-flight work and clears the cache.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.chapter = model.Chapter{}
}

func (s *Sequencer) resetLocked() {
	if s.teardown != nil {
		s.teardown()
	}
	for _, pb := range s.playing {
		pb.cancel()
	}
	s.gen++
	s.focus = 0
	s.cache = make(map[Key]Clip)
	s.session, s.teardown = context.WithCancel(context.Background())
}

// Prefetch synthesizes the sentence at index into the cache. It returns
// (nil, nil) when the result is no longer wanted: the focus moved past
// index or the chapter was torn down while the request was in flight.
func (s *Sequencer) Prefetch(ctx context.Context, index int) (*Handle, error) {
	s.mu.Lock()
	sentence, err := s.sentenceLocked(index)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if index < s.focus {
		s.mu.Unlock()
		return nil, nil
	}
	key := Key{Text: sentence.Content, Voice: s.voice}
	if clip, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return &Handle{Index: index, Clip: clip}, nil
	}
	gen, session := s.gen, s.session
	s.mu.Unlock()

	flight := fmt.Sprintf("%d\x00%s\x00%s", gen, key.Voice, key.Text)
	ch := s.fetch.DoChan(flight, func() (any, error) {
		pcm, err := s.synth.Synthesize(session, key.Text, key.Voice)
		if err != nil {
			return nil, Wrap(ErrSynthesis, key.Text, err)
		}
		return pcm, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || index < s.focus {
		s.logger.Debug("dropping stale prefetch", "index", index)
		return nil, nil
	}
	if res.Err != nil {
		return nil, res.Err
	}
	clip := Clip{Key: key, PCM: res.Val.([]byte)}
	s.cache[key] = clip
	return &Handle{Index: index, Clip: clip}, nil
}

// Present focuses index, prefetches the next sentence in the background
// and plays the current one.
func (s *Sequencer) Present(ctx context.Context, index int) error {
	s.mu.Lock()
	if _, err := s.sentenceLocked(index); err != nil {
		s.mu.Unlock()
		return err
	}
	if index > s.focus {
		s.focus = index
	}
	next := index + 1
	hasNext := next < len(s.chapter.Sentences)
	session := s.session
	s.mu.Unlock()

	if hasNext {
		go func() {
			if _, err := s.Prefetch(session, next); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("prefetch failed", "index", next, "err", err)
			}
		}()
	}
	return s.Replay(ctx, index)
}

// Replay plays the sentence at index, synthesizing it if it is not cached.
func (s *Sequencer) Replay(ctx context.Context, index int) error {
	h, err := s.Prefetch(ctx, index)
	if err != nil {
		return err
	}
	if h == nil {
		return nil
	}
	return s.play(ctx, h.Clip)
}

func (s *Sequencer) play(ctx context.Context, clip Clip) error {
	s.mu.Lock()
	if pb, ok := s.playing[clip.Key]; ok {
		pb.waiters++
		s.mu.Unlock()
		select {
		case <-pb.done:
			return pb.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	playCtx, cancel := context.WithCancel(ctx)
	pb := &playback{done: make(chan struct{}), cancel: cancel}
	s.playing[clip.Key] = pb
	s.mu.Unlock()

	err := s.player.Play(playCtx, clip)
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		err = Wrap(ErrPlayback, clip.Key.Text, err)
	}

	s.mu.Lock()
	if s.playing[clip.Key] == pb {
		delete(s.playing, clip.Key)
	}
	s.mu.Unlock()
	pb.err = err
	close(pb.done)
	return err
}

func (s *Sequencer) sentenceLocked(index int) (model.Sentence, error) {
	if index < 0 || index >= len(s.chapter.Sentences) {
		return model.Sentence{}, fmt.Errorf("sentence index %d out of range", index)
	}
	return s.chapter.Sentences[index], nil
}
