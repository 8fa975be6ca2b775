package content

import (
	"github.com/sahilm/fuzzy"

	"github.com/verte-zerg/dictype/internal/model"
)

type summaries []model.ChapterSummary

func (s summaries) String(i int) string { return s[i].Name + " " + s[i].ID }
func (s summaries) Len() int            { return len(s) }

// Search returns chapters whose name or id fuzzily matches query, best
// match first. An empty query returns chapters unchanged.
func Search(chapters []model.ChapterSummary, query string) []model.ChapterSummary {
	if query == "" {
		return chapters
	}
	matches := fuzzy.FindFrom(query, summaries(chapters))
	out := make([]model.ChapterSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, chapters[m.Index])
	}
	return out
}

// Summaries converts chapters to listing entries.
func Summaries(chapters []model.Chapter) []model.ChapterSummary {
	out := make([]model.ChapterSummary, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, model.ChapterSummary{ID: ch.ID, Name: ch.Name, Order: ch.Order, SentenceCount: len(ch.Sentences)})
	}
	return out
}

type vocabEntries []model.VocabEntry

func (v vocabEntries) String(i int) string { return v[i].Content + " " + v[i].Translation }
func (v vocabEntries) Len() int            { return len(v) }

// SearchVocab returns entries whose content or translation fuzzily matches
// query, best match first. An empty query returns entries unchanged.
func SearchVocab(entries []model.VocabEntry, query string) []model.VocabEntry {
	if query == "" {
		return entries
	}
	matches := fuzzy.FindFrom(query, vocabEntries(entries))
	out := make([]model.VocabEntry, 0, len(matches))
	for _, m := range matches {
		out = append(out, entries[m.Index])
	}
	return out
}
