package stats

import (
	"strings"
	"testing"

	"github.com/verte-zerg/dictype/internal/model"
)

func TestWPMZeroGuards(t *testing.T) {
	if got := WPM(0, 60000); got != 0 {
		t.Fatalf("expected 0 wpm for no chars, got %d", got)
	}
	if got := WPM(250, 0); got != 0 {
		t.Fatalf("expected 0 wpm for zero duration, got %d", got)
	}
	if got := WPM(250, -5); got != 0 {
		t.Fatalf("expected 0 wpm for negative duration, got %d", got)
	}
}

func TestAccuracyZeroGuard(t *testing.T) {
	if got := Accuracy(0, 0); got != 0 {
		t.Fatalf("expected 0 accuracy, got %v", got)
	}
}

func TestChapterScenario(t *testing.T) {
	chapter := model.Chapter{ID: "c", Sentences: []model.Sentence{
		{ID: "1", Content: strings.Repeat("a", 100)},
		{ID: "2", Content: strings.Repeat("b", 150)},
	}}
	if chapter.CharCount() != 250 {
		t.Fatalf("expected 250 chars, got %d", chapter.CharCount())
	}
	wpm, acc := ChapterMetrics(chapter, 0, 125000)
	if wpm != 24 {
		t.Fatalf("expected 24 wpm, got %d", wpm)
	}
	if acc != 100.0 {
		t.Fatalf("expected 100 accuracy, got %v", acc)
	}
	_, acc = ChapterMetrics(chapter, 5, 125000)
	if acc != 98.0 {
		t.Fatalf("expected 98.0 accuracy, got %v", acc)
	}
}

func TestAccuracyFlooredAtZero(t *testing.T) {
	if got := Accuracy(10, 25); got != 0 {
		t.Fatalf("expected accuracy floored at 0, got %v", got)
	}
}

func TestAccuracyRoundsToOneDecimal(t *testing.T) {
	if got := Accuracy(3, 1); got != 66.7 {
		t.Fatalf("expected 66.7, got %v", got)
	}
}
