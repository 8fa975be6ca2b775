package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const minSlotWidth = 3

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// buildAnswerRunes colors the expected sentence against what was typed,
// rune by rune and ignoring case.
func buildAnswerRunes(targetRunes, inputRunes []rune) []styledRune {
	out := make([]styledRune, 0, len(targetRunes))
	for i, target := range targetRunes {
		style := pendingStyle
		if i < len(inputRunes) {
			if unicode.ToLower(inputRunes[i]) == unicode.ToLower(target) {
				style = correctStyle
			} else {
				style = incorrectStyle
			}
		}
		out = append(out, styledRune{
			s:       style.Render(string(target)),
			width:   runewidth.RuneWidth(target),
			isSpace: target == ' ',
		})
	}
	return out
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}

// slot is one word position: the typed word above an underline sized to
// the expected word.
type slot struct {
	typed string
	line  string
	width int
}

type feedback int

const (
	feedbackNone feedback = iota
	feedbackCorrect
	feedbackWrong
)

// buildSlots lays input over the words of expected. Typed words are
// matched to expected words by position; extra typed words are dropped.
func buildSlots(expected, input string, fb feedback) []slot {
	words := strings.Fields(expected)
	typed := strings.Fields(input)
	out := make([]slot, 0, len(words))
	for i, word := range words {
		width := max(runewidth.StringWidth(word), minSlotWidth)
		t := ""
		if i < len(typed) {
			t = typed[i]
		}
		out = append(out, slot{
			typed: runewidth.FillRight(runewidth.Truncate(t, width, "…"), width),
			line:  underlineStyle(word, t, fb).Render(strings.Repeat("─", width)),
			width: width,
		})
	}
	return out
}

func underlineStyle(word, typed string, fb feedback) lipgloss.Style {
	switch fb {
	case feedbackCorrect:
		return slotCorrectStyle
	case feedbackWrong:
		if strings.EqualFold(word, typed) {
			return slotCorrectStyle
		}
		return slotWrongStyle
	}
	if typed != "" {
		return slotTypedStyle
	}
	return slotPendingStyle
}

// wrapSlots renders slots as pairs of rows, breaking between slots so that
// no row exceeds width.
func wrapSlots(slots []slot, width int) string {
	var rows []string
	var top, bottom []string
	lineWidth := 0
	flush := func() {
		if len(top) == 0 {
			return
		}
		rows = append(rows, strings.Join(top, " "), strings.Join(bottom, " "))
		top, bottom = nil, nil
		lineWidth = 0
	}
	for _, s := range slots {
		need := s.width
		if len(top) > 0 {
			need++
		}
		if width > 0 && lineWidth+need > width && len(top) > 0 {
			flush()
			need = s.width
		}
		top = append(top, s.typed)
		bottom = append(bottom, s.line)
		lineWidth += need
	}
	flush()
	return strings.Join(rows, "\n")
}
