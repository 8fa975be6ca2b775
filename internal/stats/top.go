package stats

import (
	"sort"

	"github.com/verte-zerg/dictype/internal/model"
)

// TopMissed returns the n sentences with the most misses. n <= 0 keeps all.
func TopMissed(misses []model.SentenceMiss, n int) []model.SentenceMiss {
	if len(misses) == 0 {
		return nil
	}
	items := make([]model.SentenceMiss, 0, len(misses))
	for _, m := range misses {
		if m.Misses > 0 {
			items = append(items, m)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Misses == items[j].Misses {
			return items[i].SentenceID < items[j].SentenceID
		}
		return items[i].Misses > items[j].Misses
	})
	if n > 0 && n < len(items) {
		items = items[:n]
	}
	return items
}
