package stats

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// column describes one column of a plain text table. Cells wider than max
// are cut with an ellipsis; a zero max leaves the column unbounded.
type column struct {
	title string
	right bool
	max   int
}

type textTable struct {
	cols []column
	rows [][]string
}

func newTable(cols ...column) *textTable {
	return &textTable{cols: cols}
}

func (t *textTable) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

// lines lays the table out. Widths are measured in terminal cells so wide
// runes stay aligned.
func (t *textTable) lines() []string {
	if len(t.cols) == 0 {
		return nil
	}
	cells := make([][]string, 0, len(t.rows)+1)
	header := make([]string, len(t.cols))
	for i, c := range t.cols {
		header[i] = c.title
	}
	cells = append(cells, header)
	for _, row := range t.rows {
		fitted := make([]string, len(t.cols))
		for i, c := range t.cols {
			if i < len(row) {
				fitted[i] = c.fit(row[i])
			}
		}
		cells = append(cells, fitted)
	}

	widths := make([]int, len(t.cols))
	for _, row := range cells {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	out := make([]string, 0, len(cells))
	for _, row := range cells {
		parts := make([]string, len(row))
		for i, cell := range row {
			parts[i] = t.cols[i].pad(cell, widths[i])
		}
		out = append(out, strings.TrimRight(strings.Join(parts, " "), " "))
	}
	return out
}

func (c column) fit(cell string) string {
	if c.max <= 0 {
		return cell
	}
	return runewidth.Truncate(cell, c.max, ellipsis)
}

func (c column) pad(cell string, width int) string {
	if c.right {
		return runewidth.FillLeft(cell, width)
	}
	return runewidth.FillRight(cell, width)
}
