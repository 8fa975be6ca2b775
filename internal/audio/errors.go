package audio

import (
	"errors"
	"fmt"
)

// Failure kinds. Callers match them with errors.Is.
var (
	ErrNetwork   = errors.New("network failure")
	ErrSynthesis = errors.New("synthesis failure")
	ErrPlayback  = errors.New("playback failure")
)

// Error is an audio failure for one sentence.
type Error struct {
	Kind error
	Text string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %q", e.Kind, e.Text)
	}
	return fmt.Sprintf("%v: %q: %v", e.Kind, e.Text, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns err as an *Error of the given kind unless it already
// carries a kind.
func Wrap(kind error, text string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrSynthesis) || errors.Is(err, ErrPlayback) {
		return err
	}
	return &Error{Kind: kind, Text: text, Err: err}
}
