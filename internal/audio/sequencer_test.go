package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/dictype/internal/model"
)

type fakeSynth struct {
	mu    sync.Mutex
	calls map[string]int
	gates map[string]chan struct{}
	fail  map[string]error
}

func (s *Sequencer) cached(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache[key]
	return ok
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{
		calls: make(map[string]int),
		gates: make(map[string]chan struct{}),
		fail:  make(map[string]error),
	}
}

func (f *fakeSynth) gate(text string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[text] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeSynth) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	f.mu.Lock()
	f.calls[text]++
	gate := f.gates[text]
	err := f.fail[text]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(voice + ":" + text), nil
}

type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	started chan string
	gate    chan struct{}
	err     error
}

func (p *fakePlayer) Play(ctx context.Context, clip Clip) error {
	p.mu.Lock()
	p.played = append(p.played, clip.Key.Text)
	started, gate, err := p.started, p.gate, p.err
	p.mu.Unlock()
	if started != nil {
		started <- clip.Key.Text
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakePlayer) plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func threeSentences() model.Chapter {
	return model.Chapter{
		ID: "c",
		Sentences: []model.Sentence{
			{ID: "c-1", Content: "One."},
			{ID: "c-2", Content: "Two."},
			{ID: "c-3", Content: "Three."},
		},
	}
}

func TestPresentPrefetchesNext(t *testing.T) {
	synth := newFakeSynth()
	player := &fakePlayer{}
	seq := NewSequencer(synth, player, SequencerOptions{Voice: "Wendy"})
	seq.Load(threeSentences())
	ctx := context.Background()

	require.NoError(t, seq.Present(ctx, 0))
	require.Eventually(t, func() bool {
		return seq.cached(Key{Text: "Two.", Voice: "Wendy"})
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, seq.Present(ctx, 1))
	require.Equal(t, 1, synth.count("Two."), "second sentence should come from the cache")
	require.Equal(t, []string{"One.", "Two."}, player.plays())

	require.NoError(t, seq.Replay(ctx, 1))
	require.Equal(t, 1, synth.count("Two."))
}

func TestPrefetchCoalescesConcurrentRequests(t *testing.T) {
	synth := newFakeSynth()
	gate := synth.gate("One.")
	seq := NewSequencer(synth, nil, SequencerOptions{Voice: "Wendy"})
	seq.Load(threeSentences())

	var wg sync.WaitGroup
	handles := make([]*Handle, 2)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := seq.Prefetch(context.Background(), 0)
			require.NoError(t, err)
			handles[i] = h
		}(i)
	}
	require.Eventually(t, func() bool { return synth.count("One.") == 1 }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, 1, synth.count("One."))
	require.NotNil(t, handles[0])
	require.NotNil(t, handles[1])
	require.Equal(t, []byte("Wendy:One."), handles[0].Clip.PCM)
}

func TestStalePrefetchIsDropped(t *testing.T) {
	synth := newFakeSynth()
	gate := synth.gate("Two.")
	seq := NewSequencer(synth, &fakePlayer{}, SequencerOptions{Voice: "Wendy"})
	seq.Load(threeSentences())
	ctx := context.Background()

	done := make(chan *Handle, 1)
	go func() {
		h, err := seq.Prefetch(ctx, 1)
		require.NoError(t, err)
		done <- h
	}()
	require.Eventually(t, func() bool { return synth.count("Two.") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, seq.Present(ctx, 2))
	close(gate)
	require.Nil(t, <-done)
	require.False(t, seq.cached(Key{Text: "Two.", Voice: "Wendy"}))
}

func TestResetAbandonsPrefetch(t *testing.T) {
	synth := newFakeSynth()
	synth.gate("One.")
	seq := NewSequencer(synth, nil, SequencerOptions{Voice: "Wendy"})
	seq.Load(threeSentences())

	done := make(chan error, 1)
	go func() {
		h, err := seq.Prefetch(context.Background(), 0)
		require.Nil(t, h)
		done <- err
	}()
	require.Eventually(t, func() bool { return synth.count("One.") == 1 }, time.Second, 5*time.Millisecond)

	seq.Load(threeSentences())
	require.NoError(t, <-done)
	require.False(t, seq.cached(Key{Text: "One.", Voice: "Wendy"}))
}

func TestConcurrentPlayJoinsRunningPlayback(t *testing.T) {
	synth := newFakeSynth()
	player := &fakePlayer{started: make(chan string, 2), gate: make(chan struct{})}
	seq := NewSequencer(synth, player, SequencerOptions{Voice: "Wendy"})
	seq.Load(threeSentences())
	ctx := context.Background()

	errs := make(chan error, 2)
	go func() { errs <- seq.Replay(ctx, 0) }()
	<-player.started
	go func() { errs <- seq.Replay(ctx, 0) }()

	require.Eventually(t, func() bool {
		seq.mu.Lock()
		defer seq.mu.Unlock()
		pb := seq.playing[Key{Text: "One.", Voice: "Wendy"}]
		return pb != nil && pb.waiters == 1
	}, time.Second, 5*time.Millisecond)
	close(player.gate)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	require.Equal(t, []string{"One."}, player.plays())
}

func TestFailuresAreTyped(t *testing.T) {
	synth := newFakeSynth()
	synth.fail["One."] = errors.New("bad voice")
	synth.fail["Two."] = &Error{Kind: ErrNetwork, Text: "Two.", Err: errors.New("connection refused")}
	player := &fakePlayer{err: errors.New("device gone")}
	seq := NewSequencer(synth, player, SequencerOptions{Voice: "Wendy"})
	seq.Load(threeSentences())
	ctx := context.Background()

	err := seq.Replay(ctx, 0)
	require.ErrorIs(t, err, ErrSynthesis)
	require.False(t, seq.cached(Key{Text: "One.", Voice: "Wendy"}))

	err = seq.Replay(ctx, 1)
	require.ErrorIs(t, err, ErrNetwork)

	err = seq.Replay(ctx, 2)
	require.ErrorIs(t, err, ErrPlayback)
	var audioErr *Error
	require.True(t, errors.As(err, &audioErr))
	require.Equal(t, "Three.", audioErr.Text)

	_, err = seq.Prefetch(ctx, 7)
	require.Error(t, err)
}

func TestVoiceIsPartOfCacheKey(t *testing.T) {
	synth := newFakeSynth()
	seq := NewSequencer(synth, nil, SequencerOptions{Voice: "Wendy"})
	seq.Load(threeSentences())
	ctx := context.Background()

	_, err := seq.Prefetch(ctx, 0)
	require.NoError(t, err)
	seq.SetVoice("Harry")
	h, err := seq.Prefetch(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("Harry:One."), h.Clip.PCM)
	require.Equal(t, 2, synth.count("One."))
}

func TestFailedPrefetchFallsBackToPlayOnDemand(t *testing.T) {
	synth := newFakeSynth()
	synth.fail["Two."] = &Error{Kind: ErrNetwork, Text: "Two.", Err: errors.New("timeout")}
	player := &fakePlayer{}
	seq := NewSequencer(synth, player, SequencerOptions{Voice: "Wendy"})
	seq.Load(threeSentences())
	ctx := context.Background()

	_, err := seq.Prefetch(ctx, 1)
	require.ErrorIs(t, err, ErrNetwork)

	synth.mu.Lock()
	delete(synth.fail, "Two.")
	synth.mu.Unlock()

	require.NoError(t, seq.Replay(ctx, 1))
	require.Equal(t, []string{"Two."}, player.plays())
	require.Equal(t, 2, synth.count("Two."))
	require.True(t, seq.cached(Key{Text: "Two.", Voice: "Wendy"}))
}
