package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/dictype/internal/model"
)

const (
	sparkChars   = " .:-=+*#%@"
	maxNameWidth = 28
	maxTextWidth = 48
)

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Summary aggregates a set of records.
type Summary struct {
	Sessions    int
	AvgWPM      float64
	BestWPM     int
	AvgAccuracy float64
	Practice    time.Duration
	Errors      int
	LastAt      time.Time
}

// Summarize computes totals over records.
func Summarize(records []model.Record) Summary {
	var s Summary
	if len(records) == 0 {
		return s
	}
	var wpm, acc float64
	for _, r := range records {
		wpm += float64(r.WPM)
		acc += r.Accuracy
		s.BestWPM = max(s.BestWPM, r.WPM)
		s.Practice += time.Duration(r.DurationSeconds) * time.Second
		s.Errors += r.ErrorCount
		if r.CreatedAt.After(s.LastAt) {
			s.LastAt = r.CreatedAt
		}
	}
	s.Sessions = len(records)
	s.AvgWPM = wpm / float64(len(records))
	s.AvgAccuracy = acc / float64(len(records))
	return s
}

// RenderSummary prints a summary block for records.
func RenderSummary(w io.Writer, records []model.Record, now time.Time) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No records found.")
		return err
	}
	s := Summarize(records)
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", s.Sessions),
		fmt.Sprintf("Avg WPM: %.1f", s.AvgWPM),
		fmt.Sprintf("Best WPM: %d", s.BestWPM),
		fmt.Sprintf("Avg Accuracy: %.1f%%", s.AvgAccuracy),
		fmt.Sprintf("Mistakes: %d", s.Errors),
		fmt.Sprintf("Practice time: %s", FormatDuration(int(s.Practice/time.Second))),
		fmt.Sprintf("Last practiced: %s", RelTime(s.LastAt, now)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves prints WPM and accuracy sparklines, keeping the most recent
// points that fit in width. width <= 0 keeps all points.
func RenderCurves(w io.Writer, records []model.Record, window, width int) error {
	if len(records) == 0 {
		return nil
	}
	wpms := make([]float64, len(records))
	accs := make([]float64, len(records))
	for i, r := range records {
		wpms[i] = float64(r.WPM)
		accs[i] = r.Accuracy
	}
	wpms = MovingAverage(wpms, window)
	accs = MovingAverage(accs, window)

	const label = "Accuracy  "
	if width > len(label) {
		if keep := width - len(label); len(wpms) > keep {
			wpms = wpms[len(wpms)-keep:]
			accs = accs[len(accs)-keep:]
		}
	}
	lines := []string{
		"Learning Curves",
		fmt.Sprintf("%-*s%s", len(label), "WPM", Sparkline(wpms)),
		fmt.Sprintf("%-*s%s", len(label), "Accuracy", Sparkline(accs)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RecordRows formats records as table rows, newest first.
func RecordRows(records []model.Record, names map[string]string, now time.Time) [][]string {
	rows := make([][]string, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		name := names[r.ChapterID]
		if name == "" {
			name = r.ChapterID
		}
		rows = append(rows, []string{
			RelTime(r.CreatedAt, now),
			name,
			fmt.Sprintf("%d", r.WPM),
			fmt.Sprintf("%.1f%%", r.Accuracy),
			FormatDuration(r.DurationSeconds),
			fmt.Sprintf("%d", r.ErrorCount),
		})
	}
	return rows
}

// RecordHeaders are the column titles for RecordRows.
var RecordHeaders = []string{"When", "Chapter", "WPM", "Accuracy", "Time", "Errors"}

// RenderRecordTable prints records newest first.
func RenderRecordTable(w io.Writer, records []model.Record, names map[string]string, now time.Time) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Records"); err != nil {
		return err
	}
	tbl := newTable(
		column{title: RecordHeaders[0]},
		column{title: RecordHeaders[1], max: maxNameWidth},
		column{title: RecordHeaders[2], right: true},
		column{title: RecordHeaders[3], right: true},
		column{title: RecordHeaders[4], right: true},
		column{title: RecordHeaders[5], right: true},
	)
	tbl.rows = RecordRows(records, names, now)
	return writeLines(w, tbl.lines())
}

// RenderMissTable prints the most missed sentences.
func RenderMissTable(w io.Writer, misses []model.SentenceMiss, top int) error {
	misses = TopMissed(misses, top)
	if len(misses) == 0 {
		_, err := fmt.Fprintln(w, "No mistakes recorded.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Most Missed Sentences"); err != nil {
		return err
	}
	tbl := newTable(column{title: "Sentence"}, column{title: "Misses", right: true}, column{title: "Text", max: maxTextWidth})
	for _, m := range misses {
		tbl.add(m.SentenceID, fmt.Sprintf("%d", m.Misses), m.Content)
	}
	return writeLines(w, tbl.lines())
}

// ProgressRows formats chapter progress as table rows.
func ProgressRows(chapters []model.ChapterSummary, progress map[string]model.Progress) [][]string {
	rows := make([][]string, 0, len(chapters))
	for _, ch := range chapters {
		p, ok := progress[ch.ID]
		if !ok {
			p = model.Progress{ChapterID: ch.ID, Status: model.StatusNotStarted}
		}
		wpm, acc := "-", "-"
		if p.BestWPM != nil {
			wpm = fmt.Sprintf("%d", *p.BestWPM)
		}
		if p.BestAccuracy != nil {
			acc = fmt.Sprintf("%.1f%%", *p.BestAccuracy)
		}
		rows = append(rows, []string{ch.Name, StatusLabel(p.Status), wpm, acc})
	}
	return rows
}

// ProgressHeaders are the column titles for ProgressRows.
var ProgressHeaders = []string{"Chapter", "Status", "Best WPM", "Best Acc"}

// RenderProgressTable prints per-chapter progress.
func RenderProgressTable(w io.Writer, chapters []model.ChapterSummary, progress map[string]model.Progress) error {
	if len(chapters) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Progress"); err != nil {
		return err
	}
	tbl := newTable(
		column{title: ProgressHeaders[0], max: maxNameWidth},
		column{title: ProgressHeaders[1]},
		column{title: ProgressHeaders[2], right: true},
		column{title: ProgressHeaders[3], right: true},
	)
	tbl.rows = ProgressRows(chapters, progress)
	return writeLines(w, tbl.lines())
}

// RenderVocabTable prints vocabulary entries in the given order.
func RenderVocabTable(w io.Writer, entries []model.VocabEntry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No vocabulary entries.")
		return err
	}
	tbl := newTable(
		column{title: "Sentence", max: maxTextWidth},
		column{title: "Translation", max: maxTextWidth},
		column{title: "Status"},
		column{title: "Added"},
	)
	for _, e := range entries {
		tbl.add(e.Content, e.Translation, string(e.Status), RelTime(e.CreatedAt, now))
	}
	return writeLines(w, tbl.lines())
}

// StatusLabel returns a display label for a progress status.
func StatusLabel(s model.ProgressStatus) string {
	switch s {
	case model.StatusCompleted:
		return "completed"
	case model.StatusInProgress:
		return "in progress"
	default:
		return "not started"
	}
}

// RelTime renders at relative to now, e.g. "3 hours ago".
func RelTime(at, now time.Time) string {
	return humanize.RelTime(at, now, "ago", "from now")
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past an hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds/60)%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
