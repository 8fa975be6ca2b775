// Package content loads chapters from the embedded set and from files.
package content

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/dictype/internal/model"
)

//go:embed data/builtin.yaml
var builtinYAML []byte

// Builtin returns the chapters shipped with the binary, ordered.
func Builtin() ([]model.Chapter, error) {
	var chapters []model.Chapter
	if err := yaml.Unmarshal(builtinYAML, &chapters); err != nil {
		return nil, fmt.Errorf("failed to parse builtin chapters: %w", err)
	}
	if err := validateAll(chapters); err != nil {
		return nil, err
	}
	sortChapters(chapters)
	return chapters, nil
}

func sortChapters(chapters []model.Chapter) {
	sort.SliceStable(chapters, func(i, j int) bool {
		if chapters[i].Order != chapters[j].Order {
			return chapters[i].Order < chapters[j].Order
		}
		return chapters[i].ID < chapters[j].ID
	})
}
