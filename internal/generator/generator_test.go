package generator

import (
	"fmt"
	"testing"

	"github.com/verte-zerg/dictype/internal/model"
)

func pool(n int) []model.Sentence {
	out := make([]model.Sentence, n)
	for i := range out {
		out[i] = model.Sentence{ID: fmt.Sprintf("s%d", i), Content: fmt.Sprintf("Sentence %d.", i)}
	}
	return out
}

func TestGenerateDistinct(t *testing.T) {
	g := NewWithSeed(1)
	picked := g.Generate(pool(10), 6)
	if len(picked) != 6 {
		t.Fatalf("expected 6 sentences, got %d", len(picked))
	}
	seen := map[string]bool{}
	for _, s := range picked {
		if seen[s.ID] {
			t.Fatalf("sentence %s picked twice", s.ID)
		}
		seen[s.ID] = true
	}
	if all := g.Generate(pool(3), 10); len(all) != 3 {
		t.Fatalf("count above pool size should return the pool, got %d", len(all))
	}
}

func TestGenerateWeightedFavorsMisses(t *testing.T) {
	g := NewWithSeed(42)
	misses := map[string]int{"s7": 5}
	hits := 0
	for i := 0; i < 200; i++ {
		picked := g.GenerateWeighted(pool(20), 1, misses, 10)
		if picked[0].ID == "s7" {
			hits++
		}
	}
	// s7 weighs 51 of 70, about 73% of draws.
	if hits < 100 {
		t.Fatalf("expected missed sentence to dominate, got %d/200", hits)
	}
}

func TestReviewChapter(t *testing.T) {
	ch := NewWithSeed(3).Review(pool(4), 2, nil, 1)
	if ch.ID != ReviewChapterID || len(ch.Sentences) != 2 {
		t.Fatalf("unexpected review chapter: %+v", ch)
	}
}
