// Package stats contains statistics calculations and reporting.
package stats

import (
	"math"

	"github.com/verte-zerg/dictype/internal/model"
)

// charsPerWord is the conventional word length used for WPM.
const charsPerWord = 5.0

// WPM returns words per minute for totalChars typed over durationMs.
func WPM(totalChars int, durationMs int64) int {
	if durationMs <= 0 || totalChars <= 0 {
		return 0
	}
	minutes := float64(durationMs) / 60000.0
	return int(math.Round((float64(totalChars) / charsPerWord) / minutes))
}

// Accuracy returns the share of target characters not charged to errors,
// as a percentage rounded to one decimal and floored at zero.
func Accuracy(totalChars, errorCount int) float64 {
	if totalChars <= 0 {
		return 0
	}
	pct := float64(totalChars-errorCount) / float64(totalChars) * 100
	if pct <= 0 {
		return 0
	}
	return math.Round(pct*10) / 10
}

// ChapterChars returns the character total WPM and accuracy are based on.
func ChapterChars(chapter model.Chapter) int {
	return chapter.CharCount()
}

// ChapterMetrics computes WPM and accuracy for a finished chapter.
func ChapterMetrics(chapter model.Chapter, errorCount int, durationMs int64) (wpm int, accuracy float64) {
	chars := ChapterChars(chapter)
	return WPM(chars, durationMs), Accuracy(chars, errorCount)
}
