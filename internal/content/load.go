package content

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/dictype/internal/model"
)

// LoadFile reads chapters from a .yaml, .yml, .toml or .txt file.
//
// YAML files hold a list of chapters or a single chapter. TOML files use
// [[chapters]] tables. A text file is one chapter named after the file, one
// sentence per line with an optional tab separated translation; blank lines
// and lines starting with # are skipped.
func LoadFile(path string) ([]model.Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chapters []model.Chapter
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		chapters, err = parseYAML(data)
	case ".toml":
		chapters, err = parseTOML(data)
	case ".txt":
		chapters, err = parseText(data, filepath.Base(path))
	default:
		return nil, fmt.Errorf("unsupported chapter file type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("%s contains no chapters", path)
	}
	if err := validateAll(chapters); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sortChapters(chapters)
	return chapters, nil
}

func parseYAML(data []byte) ([]model.Chapter, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		var ch model.Chapter
		if err := root.Decode(&ch); err != nil {
			return nil, err
		}
		return []model.Chapter{ch}, nil
	}
	var chapters []model.Chapter
	if err := root.Decode(&chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}

func parseTOML(data []byte) ([]model.Chapter, error) {
	var doc struct {
		Chapters []model.Chapter `toml:"chapters"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, err
	}
	return doc.Chapters, nil
}

func parseText(data []byte, filename string) ([]model.Chapter, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ch := model.Chapter{ID: slug(base), Name: base}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		content, translation, _ := strings.Cut(line, "\t")
		ch.Sentences = append(ch.Sentences, model.Sentence{
			Content:     strings.TrimSpace(content),
			Translation: strings.TrimSpace(translation),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return []model.Chapter{ch}, nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
