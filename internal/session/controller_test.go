package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/dictype/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestController(t *testing.T) (*Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	ids := 0
	c := New(Options{
		Clock: clock.Now,
		NewID: func() string {
			ids++
			return "rec-" + string(rune('0'+ids))
		},
	})
	return c, clock
}

func twoSentenceChapter() model.Chapter {
	return model.Chapter{
		ID:   "ch1",
		Name: "Greetings",
		Sentences: []model.Sentence{
			{ID: "1-1", Content: "Hello there.", Translation: "你好。"},
			{ID: "1-2", Content: "Good night.", Translation: "晚安。"},
		},
	}
}

func TestStartRejectsEmptyChapter(t *testing.T) {
	c, _ := newTestController(t)
	err := c.Start(model.Chapter{ID: "empty"})
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, Idle, c.State())

	require.NoError(t, c.Start(twoSentenceChapter()))
	err = c.Start(twoSentenceChapter())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAllCorrectRun(t *testing.T) {
	c, clock := newTestController(t)
	ch := twoSentenceChapter()
	require.NoError(t, c.Start(ch))
	require.True(t, c.Snapshot().StartedAt.IsZero(), "clock must not start before typing")

	clock.Advance(3 * time.Second)
	require.NoError(t, c.Type(""))
	require.True(t, c.Snapshot().StartedAt.IsZero())
	require.NoError(t, c.Type("h"))
	started := c.Snapshot().StartedAt
	require.Equal(t, clock.now, started)

	clock.Advance(5 * time.Second)
	v, err := c.Submit("  hello THERE. ")
	require.NoError(t, err)
	require.True(t, v.Correct)
	require.Equal(t, DefaultFeedbackDelay, v.AdvanceAfter)

	_, err = c.Submit("hello there.")
	require.ErrorIs(t, err, ErrInvalidTransition, "submit while feedback pending")

	done, err := c.Advance()
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, 1, c.Snapshot().Index)

	clock.Advance(7 * time.Second)
	v, err = c.Submit("Good night.")
	require.NoError(t, err)
	require.True(t, v.Correct)
	done, err = c.Advance()
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, Finished, c.State())

	rec, err := c.Finish()
	require.NoError(t, err)
	require.Equal(t, "ch1", rec.ChapterID)
	require.Equal(t, 0, rec.ErrorCount)
	require.Empty(t, rec.Errors)
	require.Equal(t, 12, rec.DurationSeconds)
	require.Equal(t, 100.0, rec.Accuracy)
	// 23 chars over 12 s.
	require.Equal(t, 23, rec.WPM)
}

func TestMismatchThenSkip(t *testing.T) {
	c, clock := newTestController(t)
	require.NoError(t, c.Start(twoSentenceChapter()))

	_, err := c.Skip()
	require.ErrorIs(t, err, ErrInvalidTransition, "skip needs a mismatch first")

	clock.Advance(time.Second)
	v, err := c.Submit("hello ther")
	require.NoError(t, err)
	require.False(t, v.Correct)
	require.NotNil(t, v.Entry)
	require.Equal(t, model.ErrorEntry{Expected: "Hello there.", Actual: "hello ther", SentenceID: "1-1"}, *v.Entry)
	require.Equal(t, 0, c.Snapshot().Index)
	require.True(t, c.CanSkip())

	_, err = c.Submit("")
	require.NoError(t, err)

	done, err := c.Skip()
	require.NoError(t, err)
	require.False(t, done)
	require.False(t, c.CanSkip(), "mismatch flag is per sentence")

	_, err = c.Submit("good nite")
	require.NoError(t, err)
	done, err = c.Skip()
	require.NoError(t, err)
	require.True(t, done)

	rec, err := c.Finish()
	require.NoError(t, err)
	require.Equal(t, 3, rec.ErrorCount)
	require.Len(t, rec.Errors, 3)
	require.Equal(t, "", rec.Errors[1].Actual)
	require.Equal(t, "1-2", rec.Errors[2].SentenceID)
}

func TestFinishIsIdempotent(t *testing.T) {
	c, clock := newTestController(t)
	ch := model.Chapter{ID: "one", Sentences: []model.Sentence{{ID: "a", Content: "Yes."}}}
	require.NoError(t, c.Start(ch))

	_, err := c.Finish()
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, c.Type("y"))
	clock.Advance(2 * time.Second)
	_, err = c.Submit("yes.")
	require.NoError(t, err)
	_, err = c.Advance()
	require.NoError(t, err)

	first, err := c.Finish()
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := c.Finish()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "rec-1", second.ID)

	recorded, ok := c.Record()
	require.True(t, ok)
	require.Equal(t, first.CreatedAt, recorded.CreatedAt)
}

func TestPausedTimeIsExcluded(t *testing.T) {
	c, clock := newTestController(t)
	ch := model.Chapter{ID: "p", Sentences: []model.Sentence{{ID: "p-1", Content: "Wait for me."}}}
	require.NoError(t, c.Start(ch))
	require.NoError(t, c.Type("w"))

	clock.Advance(4 * time.Second)
	require.NoError(t, c.Pause())
	require.Equal(t, Paused, c.State())
	require.ErrorIs(t, c.Type("wa"), ErrInvalidTransition)
	_, err := c.Submit("wait for me.")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, c.Pause(), ErrInvalidTransition)

	clock.Advance(5 * time.Second)
	require.Equal(t, 4*time.Second, c.Elapsed(clock.now))
	require.NoError(t, c.Resume())
	require.ErrorIs(t, c.Resume(), ErrInvalidTransition)

	clock.Advance(6 * time.Second)
	require.Equal(t, 10*time.Second, c.Elapsed(clock.now))
	_, err = c.Submit("Wait for me.")
	require.NoError(t, err)
	_, err = c.Advance()
	require.NoError(t, err)

	rec, err := c.Finish()
	require.NoError(t, err)
	require.Equal(t, 10, rec.DurationSeconds)
	// 12 chars in 10 s.
	require.Equal(t, 14, rec.WPM)
}

func TestAbandonReturnsToIdle(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Start(twoSentenceChapter()))
	_, err := c.Submit("nope")
	require.NoError(t, err)
	require.NoError(t, c.Pause())

	c.Abandon()
	require.Equal(t, Idle, c.State())
	require.Empty(t, c.Snapshot().Errors)
	_, ok := c.Record()
	require.False(t, ok)
	require.NoError(t, c.Start(twoSentenceChapter()))
}

func TestSnapshotIsACopy(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Start(twoSentenceChapter()))
	_, err := c.Submit("wrong")
	require.NoError(t, err)

	snap := c.Snapshot()
	snap.Errors[0].Actual = "mutated"
	require.Equal(t, "wrong", c.Snapshot().Errors[0].Actual)

	cur, ok := snap.Current()
	require.True(t, ok)
	require.Equal(t, "1-1", cur.ID)
}

func TestTransitionErrorMessage(t *testing.T) {
	c, _ := newTestController(t)
	err := c.Pause()
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	require.Equal(t, Idle, te.State)
	require.Equal(t, "pause not allowed while idle", err.Error())
}
