package stats

import (
	"testing"

	"github.com/verte-zerg/dictype/internal/model"
)

func TestTopMissed(t *testing.T) {
	misses := []model.SentenceMiss{
		{SentenceID: "b", Misses: 3},
		{SentenceID: "a", Misses: 3},
		{SentenceID: "c", Misses: 1},
		{SentenceID: "d", Misses: 0},
	}
	top := TopMissed(misses, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(top))
	}
	if top[0].SentenceID != "a" || top[1].SentenceID != "b" {
		t.Fatalf("unexpected order: %v", top)
	}
	if all := TopMissed(misses, 0); len(all) != 3 {
		t.Fatalf("expected zero-miss rows dropped, got %v", all)
	}
}

func TestSelectWeakSentences(t *testing.T) {
	weak := SelectWeakSentences([]model.SentenceMiss{{SentenceID: "x", Misses: 4}, {SentenceID: "y", Misses: 1}}, 1)
	if len(weak) != 1 || weak["x"] != 4 {
		t.Fatalf("unexpected weak set: %v", weak)
	}
}
