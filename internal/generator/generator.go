// Package generator builds practice chapters from a sentence pool.
package generator

import (
	"math/rand"
	"time"

	"github.com/verte-zerg/dictype/internal/model"
)

// ReviewChapterID is the id of generated review chapters.
const ReviewChapterID = "review"

// Generator picks sentences at random.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewWithSeed(time.Now().UnixNano())
}

// NewWithSeed returns a deterministic Generator.
func NewWithSeed(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate picks up to count distinct sentences uniformly.
func (g *Generator) Generate(pool []model.Sentence, count int) []model.Sentence {
	return g.GenerateWeighted(pool, count, nil, 0)
}

// GenerateWeighted picks up to count distinct sentences with a bias toward
// ones that were missed before. A sentence with n misses weighs 1+n*factor.
func (g *Generator) GenerateWeighted(pool []model.Sentence, count int, misses map[string]int, factor float64) []model.Sentence {
	if count <= 0 || count > len(pool) {
		count = len(pool)
	}
	weights := make([]float64, len(pool))
	total := 0.0
	for i, s := range pool {
		w := 1.0 + float64(misses[s.ID])*factor
		weights[i] = w
		total += w
	}

	result := make([]model.Sentence, 0, count)
	for len(result) < count {
		r := g.rnd.Float64() * total
		acc := 0.0
		idx := -1
		for j, w := range weights {
			if w == 0 {
				continue
			}
			idx = j
			acc += w
			if r <= acc {
				break
			}
		}
		if idx < 0 {
			break
		}
		result = append(result, pool[idx])
		total -= weights[idx]
		weights[idx] = 0
	}
	return result
}

// Review builds a chapter from pool biased toward missed sentences.
func (g *Generator) Review(pool []model.Sentence, count int, misses map[string]int, factor float64) model.Chapter {
	return model.Chapter{
		ID:        ReviewChapterID,
		Name:      "Review",
		Sentences: g.GenerateWeighted(pool, count, misses, factor),
	}
}
