// Package session implements the dictation session state machine.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/stats"
)

// DefaultFeedbackDelay is how long a correct answer stays on screen before
// the cursor advances.
const DefaultFeedbackDelay = 500 * time.Millisecond

var (
	// ErrInvalidTransition is wrapped by every operation rejected in the
	// current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrValidation reports an unplayable chapter.
	ErrValidation = errors.New("invalid chapter")
)

// State is the lifecycle phase of a session.
type State int

const (
	Idle State = iota
	Running
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransitionError describes a rejected operation.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.State)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Chapter        model.Chapter
	Index          int
	Input          string
	Errors         []model.ErrorEntry
	StartedAt      time.Time
	PausedTotal    time.Duration
	PausedAt       time.Time
	State          State
	Mismatched     bool
	PendingAdvance bool
}

// Current returns the sentence under the cursor.
func (s Snapshot) Current() (model.Sentence, bool) {
	if s.Index < 0 || s.Index >= len(s.Chapter.Sentences) {
		return model.Sentence{}, false
	}
	return s.Chapter.Sentences[s.Index], true
}

// Verdict is the result of a submission.
type Verdict struct {
	Correct bool
	// AdvanceAfter is set on a correct answer; call Advance once it elapses.
	AdvanceAfter time.Duration
	Entry        *model.ErrorEntry
}

// Options configure a Controller.
type Options struct {
	Clock         func() time.Time
	FeedbackDelay time.Duration
	NewID         func() string
}

// Controller drives one session at a time. It is not safe for concurrent
// use; the UI calls it from its update loop.
type Controller struct {
	clock         func() time.Time
	feedbackDelay time.Duration
	newID         func() string

	state  Snapshot
	record *model.Record
}

// New returns an idle controller.
func New(opts Options) *Controller {
	c := &Controller{
		clock:         opts.Clock,
		feedbackDelay: opts.FeedbackDelay,
		newID:         opts.NewID,
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.feedbackDelay <= 0 {
		c.feedbackDelay = DefaultFeedbackDelay
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	return c.state.State
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	snap := c.state
	snap.Errors = append([]model.ErrorEntry(nil), c.state.Errors...)
	return snap
}

// Record returns the finished record, if any.
func (c *Controller) Record() (model.Record, bool) {
	if c.record == nil {
		return model.Record{}, false
	}
	return copyRecord(*c.record), true
}

// CanSkip reports whether Skip would be accepted.
func (c *Controller) CanSkip() bool {
	return c.state.State == Running && c.state.Mismatched && !c.state.PendingAdvance
}

// Start begins a session over chapter.
func (c *Controller) Start(chapter model.Chapter) error {
	if c.state.State != Idle {
		return &TransitionError{Op: "start", State: c.state.State}
	}
	if len(chapter.Sentences) == 0 {
		return fmt.Errorf("chapter %q has no sentences: %w", chapter.ID, ErrValidation)
	}
	c.state = Snapshot{Chapter: chapter, State: Running}
	c.record = nil
	return nil
}

// Type stores the in-progress input. The first non-empty input starts the
// clock.
func (c *Controller) Type(text string) error {
	if c.state.State != Running {
		return &TransitionError{Op: "type", State: c.state.State}
	}
	c.state.Input = text
	c.startClock(text)
	return nil
}

// Submit judges text against the current sentence.
func (c *Controller) Submit(text string) (Verdict, error) {
	if c.state.State != Running {
		return Verdict{}, &TransitionError{Op: "submit", State: c.state.State}
	}
	if c.state.PendingAdvance {
		return Verdict{}, &TransitionError{Op: "submit during feedback", State: c.state.State}
	}
	sentence, ok := c.state.Current()
	if !ok {
		return Verdict{}, &TransitionError{Op: "submit past end", State: c.state.State}
	}
	c.state.Input = text
	c.startClock(text)

	if Judge(sentence.Content, text).Correct {
		c.state.PendingAdvance = true
		return Verdict{Correct: true, AdvanceAfter: c.feedbackDelay}, nil
	}
	entry := model.ErrorEntry{Expected: sentence.Content, Actual: text, SentenceID: sentence.ID}
	c.state.Errors = append(c.state.Errors, entry)
	c.state.Mismatched = true
	return Verdict{Entry: &entry}, nil
}

// Advance moves past a correctly answered sentence. It reports whether the
// session finished.
func (c *Controller) Advance() (bool, error) {
	if c.state.State != Running || !c.state.PendingAdvance {
		return false, &TransitionError{Op: "advance", State: c.state.State}
	}
	return c.next(), nil
}

// Skip moves past a sentence that has at least one mismatch. It reports
// whether the session finished.
func (c *Controller) Skip() (bool, error) {
	if !c.CanSkip() {
		return false, &TransitionError{Op: "skip", State: c.state.State}
	}
	return c.next(), nil
}

// Pause stops the clock.
func (c *Controller) Pause() error {
	if c.state.State != Running {
		return &TransitionError{Op: "pause", State: c.state.State}
	}
	c.state.State = Paused
	c.state.PausedAt = c.clock()
	return nil
}

// Resume restarts the clock.
func (c *Controller) Resume() error {
	if c.state.State != Paused {
		return &TransitionError{Op: "resume", State: c.state.State}
	}
	if !c.state.StartedAt.IsZero() {
		c.state.PausedTotal += c.clock().Sub(c.state.PausedAt)
	}
	c.state.PausedAt = time.Time{}
	c.state.State = Running
	return nil
}

// Finish returns the session record. Repeated calls return the same record.
func (c *Controller) Finish() (model.Record, error) {
	if c.record != nil {
		return copyRecord(*c.record), nil
	}
	if c.state.State != Running || c.state.Index != len(c.state.Chapter.Sentences) {
		return model.Record{}, &TransitionError{Op: "finish", State: c.state.State}
	}
	c.finish()
	return copyRecord(*c.record), nil
}

// Abandon discards the session and returns to Idle.
func (c *Controller) Abandon() {
	c.state = Snapshot{}
	c.record = nil
}

// Elapsed is the display time at now, excluding pauses.
func (c *Controller) Elapsed(now time.Time) time.Duration {
	st := c.state
	if st.StartedAt.IsZero() {
		return 0
	}
	if c.record != nil {
		return time.Duration(c.record.DurationSeconds) * time.Second
	}
	end := now
	if st.State == Paused {
		end = st.PausedAt
	}
	d := end.Sub(st.StartedAt) - st.PausedTotal
	if d < 0 {
		return 0
	}
	return d
}

func (c *Controller) startClock(text string) {
	if c.state.StartedAt.IsZero() && text != "" {
		c.state.StartedAt = c.clock()
	}
}

func (c *Controller) next() bool {
	c.state.Index++
	c.state.Input = ""
	c.state.Mismatched = false
	c.state.PendingAdvance = false
	if c.state.Index >= len(c.state.Chapter.Sentences) {
		c.finish()
		return true
	}
	return false
}

func (c *Controller) finish() {
	now := c.clock()
	var effective time.Duration
	if !c.state.StartedAt.IsZero() {
		effective = now.Sub(c.state.StartedAt) - c.state.PausedTotal
		if effective < 0 {
			effective = 0
		}
	}
	errs := append([]model.ErrorEntry(nil), c.state.Errors...)
	wpm, accuracy := stats.ChapterMetrics(c.state.Chapter, len(errs), effective.Milliseconds())
	c.record = &model.Record{
		ID:              c.newID(),
		ChapterID:       c.state.Chapter.ID,
		WPM:             wpm,
		Accuracy:        accuracy,
		DurationSeconds: int(effective.Round(time.Second) / time.Second),
		ErrorCount:      len(errs),
		Errors:          errs,
		CreatedAt:       now,
	}
	c.state.State = Finished
}

func copyRecord(r model.Record) model.Record {
	r.Errors = append([]model.ErrorEntry(nil), r.Errors...)
	return r
}
