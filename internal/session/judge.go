package session

import "strings"

// Judgement is the outcome of comparing typed text with a sentence.
type Judgement struct {
	Correct bool
}

// Judge compares actual against expected ignoring letter case and
// surrounding whitespace. Inner whitespace and punctuation must match
// exactly. Blank input is never correct.
func Judge(expected, actual string) Judgement {
	got := normalize(actual)
	if got == "" {
		return Judgement{}
	}
	return Judgement{Correct: got == normalize(expected)}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
