// Package model defines shared data structures.
package model

import (
	"time"
	"unicode/utf8"
)

// Sentence is a single dictation target.
type Sentence struct {
	ID          string `json:"id" yaml:"id" toml:"id"`
	Content     string `json:"content" yaml:"content" toml:"content"`
	Translation string `json:"translation,omitempty" yaml:"translation" toml:"translation"`
}

// Chapter is an ordered list of sentences.
type Chapter struct {
	ID        string     `json:"id" yaml:"id" toml:"id"`
	Name      string     `json:"name" yaml:"name" toml:"name"`
	Order     int        `json:"order" yaml:"order" toml:"order"`
	Sentences []Sentence `json:"sentences" yaml:"sentences" toml:"sentences"`
}

// CharCount returns the number of runes across all sentence contents.
func (c Chapter) CharCount() int {
	total := 0
	for _, s := range c.Sentences {
		total += utf8.RuneCountInString(s.Content)
	}
	return total
}

// ChapterSummary is a chapter listing entry without sentences.
type ChapterSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Order         int    `json:"order"`
	SentenceCount int    `json:"sentenceCount"`
}

// ErrorEntry records one mismatched submission.
type ErrorEntry struct {
	Expected   string `json:"expected"`
	Actual     string `json:"actual"`
	SentenceID string `json:"sentenceId"`
}

// Record is the result of a finished session.
type Record struct {
	ID              string       `json:"id"`
	ChapterID       string       `json:"chapterId"`
	WPM             int          `json:"wpm"`
	Accuracy        float64      `json:"accuracy"`
	DurationSeconds int          `json:"duration"`
	ErrorCount      int          `json:"errorCount"`
	Errors          []ErrorEntry `json:"errors"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	ChapterID string
	Since     *time.Time
	Last      int
}

// ProgressStatus is the completion state of a chapter.
type ProgressStatus string

// Progress states, in increasing order of completion.
const (
	StatusNotStarted ProgressStatus = "not_started"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
)

func (s ProgressStatus) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s ProgressStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Progress is the per-chapter best-score summary.
type Progress struct {
	ChapterID    string         `json:"chapterId"`
	Status       ProgressStatus `json:"status"`
	BestWPM      *int           `json:"bestWpm,omitempty"`
	BestAccuracy *float64       `json:"bestAccuracy,omitempty"`
	LastPlayedAt *time.Time     `json:"lastPlayedAt,omitempty"`
}

// MergeProgress folds update into existing. Best metrics are replaced only
// by strictly larger values, nil never clears a value, status never moves
// backwards and LastPlayedAt keeps the later time.
func MergeProgress(existing, update Progress) Progress {
	out := existing
	if out.ChapterID == "" {
		out.ChapterID = update.ChapterID
	}
	if out.Status == "" {
		out.Status = StatusNotStarted
	}
	if update.Status.rank() > out.Status.rank() {
		out.Status = update.Status
	}
	if update.BestWPM != nil && (out.BestWPM == nil || *update.BestWPM > *out.BestWPM) {
		v := *update.BestWPM
		out.BestWPM = &v
	}
	if update.BestAccuracy != nil && (out.BestAccuracy == nil || *update.BestAccuracy > *out.BestAccuracy) {
		v := *update.BestAccuracy
		out.BestAccuracy = &v
	}
	if update.LastPlayedAt != nil && (out.LastPlayedAt == nil || update.LastPlayedAt.After(*out.LastPlayedAt)) {
		v := *update.LastPlayedAt
		out.LastPlayedAt = &v
	}
	return out
}

// SentenceMiss aggregates mismatches of a sentence across records.
type SentenceMiss struct {
	SentenceID string
	ChapterID  string
	Content    string
	Misses     int
}

// VocabStatus marks how well a saved sentence is known.
type VocabStatus string

// Vocabulary states.
const (
	VocabNew      VocabStatus = "new"
	VocabMastered VocabStatus = "mastered"
)

// Valid reports whether s is a known vocabulary status.
func (s VocabStatus) Valid() bool {
	return s == VocabNew || s == VocabMastered
}

// VocabEntry is a sentence saved for later review, keyed by sentence id.
type VocabEntry struct {
	SentenceID  string
	ChapterID   string
	Content     string
	Translation string
	Status      VocabStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
