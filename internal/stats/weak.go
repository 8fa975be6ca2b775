package stats

import "github.com/verte-zerg/dictype/internal/model"

// SelectWeakSentences returns the top most-missed sentences mapped to their
// miss counts.
func SelectWeakSentences(misses []model.SentenceMiss, top int) map[string]int {
	weak := map[string]int{}
	for _, m := range TopMissed(misses, top) {
		weak[m.SentenceID] = m.Misses
	}
	return weak
}
