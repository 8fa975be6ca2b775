package content

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/tts"
)

// Validate normalizes ch in place. Missing sentence ids become
// "<chapter>-<n>".
func Validate(ch *model.Chapter) error {
	ch.ID = strings.TrimSpace(ch.ID)
	ch.Name = strings.TrimSpace(ch.Name)
	if ch.ID == "" {
		ch.ID = slug(ch.Name)
	}
	if ch.ID == "" {
		return fmt.Errorf("chapter needs an id or a name")
	}
	if ch.Name == "" {
		ch.Name = ch.ID
	}
	if len(ch.Sentences) == 0 {
		return fmt.Errorf("chapter %q has no sentences", ch.ID)
	}
	seen := make(map[string]bool, len(ch.Sentences))
	for i := range ch.Sentences {
		s := &ch.Sentences[i]
		s.Content = strings.TrimSpace(s.Content)
		s.Translation = strings.TrimSpace(s.Translation)
		if s.Content == "" {
			return fmt.Errorf("chapter %q sentence %d is empty", ch.ID, i+1)
		}
		if n := utf8.RuneCountInString(s.Content); n > tts.MaxTextRunes {
			return fmt.Errorf("chapter %q sentence %d has %d characters, limit is %d", ch.ID, i+1, n, tts.MaxTextRunes)
		}
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			s.ID = ch.ID + "-" + strconv.Itoa(i+1)
		}
		if seen[s.ID] {
			return fmt.Errorf("chapter %q has duplicate sentence id %q", ch.ID, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func validateAll(chapters []model.Chapter) error {
	ids := make(map[string]bool, len(chapters))
	for i := range chapters {
		if err := Validate(&chapters[i]); err != nil {
			return err
		}
		if ids[chapters[i].ID] {
			return fmt.Errorf("duplicate chapter id %q", chapters[i].ID)
		}
		ids[chapters[i].ID] = true
	}
	return nil
}
