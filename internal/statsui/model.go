// Package statsui provides the Bubble Tea records interface.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/stats"
	"github.com/verte-zerg/dictype/internal/store"
)

const (
	tabOverview = iota
	tabRecords
	tabProgress
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	expectedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	actualStyle     = errorStyle
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// Model implements the Bubble Tea records UI.
type Model struct {
	store *store.Store
	cfg   stats.ReportConfig
	now   func() time.Time

	report stats.Report
	errMsg string

	tabs      []string
	activeTab int
	overview  viewport.Model
	tables    map[int]*table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string

	detail *model.Record
}

// NewModel constructs a records UI model.
func NewModel(st *store.Store, cfg stats.ReportConfig, now func() time.Time) *Model {
	if now == nil {
		now = time.Now
	}
	if cfg.CurveWindow < 1 {
		cfg.CurveWindow = 1
	}
	m := &Model{
		store:    st,
		cfg:      cfg,
		now:      now,
		tabs:     []string{"Overview", "Records", "Progress"},
		overview: viewport.New(0, 0),
	}
	records := newTable(recordColumns(), nil)
	progress := newTable(progressColumns(), nil)
	m.tables = map[int]*table.Model{tabRecords: &records, tabProgress: &progress}
	m.initInputs()
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderOverview()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (msg.String() == "q" && !m.filterMode) {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if m.detail != nil {
			if msg.Type == tea.KeyEsc || msg.Type == tea.KeyEnter {
				m.detail = nil
			}
			return m, nil
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
			m.renderOverview()
			return m, nil
		case "-":
			m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
			m.renderOverview()
			return m, nil
		case "/":
			return m.startFilter()
		case "enter":
			if m.activeTab == tabRecords {
				m.openDetail()
			}
			return m, nil
		case "g", "home":
			if t, ok := m.tables[m.activeTab]; ok {
				t.GotoTop()
			} else {
				m.overview.GotoTop()
			}
			return m, nil
		case "G", "end":
			if t, ok := m.tables[m.activeTab]; ok {
				t.GotoBottom()
			} else {
				m.overview.GotoBottom()
			}
			return m, nil
		default:
			var cmd tea.Cmd
			if t, ok := m.tables[m.activeTab]; ok {
				*t, cmd = t.Update(msg)
				return m, cmd
			}
			m.overview, cmd = m.overview.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.detail != nil {
		return fitLines(m.renderDetail(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Chapter: "),
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Last: "),
		newFilterInput("Curve window: "),
	}
	m.setInputsFromConfig()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	f := m.cfg.Filter
	m.filterInputs[0].SetValue(f.ChapterID)
	if f.Since != nil {
		m.filterInputs[1].SetValue(f.Since.Format("2006-01-02"))
	} else {
		m.filterInputs[1].SetValue("")
	}
	if f.Last > 0 {
		m.filterInputs[2].SetValue(strconv.Itoa(f.Last))
	} else {
		m.filterInputs[2].SetValue("")
	}
	m.filterInputs[3].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(lipgloss.Height(activeNavStyle.Render("X")), 1)
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.overview.Width = m.width
	m.overview.Height = bodyHeight
	for _, t := range m.tables {
		t.SetWidth(m.width)
		t.SetHeight(max(bodyHeight-1, 1))
	}
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = max(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	for i, t := range m.tables {
		if i == next {
			t.Focus()
		} else {
			t.Blur()
		}
	}
	m.activeTab = next
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	return padLines(m.renderTabs(), m.width) + "\n" + padLines(m.renderFilterSummary(), m.width)
}

func (m *Model) renderFilterSummary() string {
	f := m.cfg.Filter
	chapter := f.ChapterID
	if chapter == "" {
		chapter = "any"
	}
	since := "any"
	if f.Since != nil {
		since = f.Since.Format("2006-01-02")
	}
	last := "all"
	if f.Last > 0 {
		last = strconv.Itoa(f.Last)
	}
	summary := fmt.Sprintf("Settings: chapter=%s  since=%s  last=%s  window=%d", chapter, since, last, m.cfg.CurveWindow)
	return headerStyle.Render(runewidth.Truncate(summary, max(m.width, 0), "..."))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabRecords {
		help = "Nav: left/right  Scroll: up/down  Details: enter  Settings: /  Quit: q"
	}
	return headerStyle.Render(help)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	}
	return m.renderHelp()
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	switch m.activeTab {
	case tabRecords:
		if len(m.report.Records) == 0 {
			return fitLines("No records found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.tables[tabRecords].View()), m.width, height)
	case tabProgress:
		if len(m.report.Chapters) == 0 {
			return fitLines("No chapters found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.tables[tabProgress].View()), m.width, height)
	}
	return fitLines(m.overview.View(), m.width, height)
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		m.overview.SetContent("Failed to load records.")
		return
	}
	m.errMsg = ""
	m.report = report
	now := m.now()
	m.tables[tabRecords].SetRows(toRows(stats.RecordRows(report.Records, report.Names, now)))
	m.tables[tabRecords].GotoTop()
	m.tables[tabProgress].SetRows(toRows(stats.ProgressRows(report.Chapters, report.Progress)))
	m.renderOverview()
}

func (m *Model) renderOverview() {
	if m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.overview.SetContent(renderOverview(m.report, m.cfg, width, m.now()))
}

func renderOverview(report stats.Report, cfg stats.ReportConfig, width int, now time.Time) string {
	if len(report.Records) == 0 {
		return "No records found."
	}
	var buf bytes.Buffer
	if err := stats.RenderCurves(&buf, report.Records, cfg.CurveWindow, width); err != nil {
		return fmt.Sprintf("Failed to render curves: %v", err)
	}
	if err := stats.RenderMissTable(&buf, report.Misses, cfg.TopMisses); err != nil {
		return fmt.Sprintf("Failed to render mistakes: %v", err)
	}
	summary := renderSummaryCards(report.Records, width, now)
	return strings.TrimRight(summary+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(records []model.Record, width int, now time.Time) string {
	s := stats.Summarize(records)
	cards := []string{
		metricCard("Sessions", fmt.Sprintf("%d", s.Sessions)),
		metricCard("Avg WPM", fmt.Sprintf("%.1f", s.AvgWPM)),
		metricCard("Best WPM", fmt.Sprintf("%d", s.BestWPM)),
		metricCard("Avg Acc", fmt.Sprintf("%.1f%%", s.AvgAccuracy)),
		metricCard("Practice", stats.FormatDuration(int(s.Practice/time.Second))),
		metricCard("Last", lastPracticed(s.LastAt, now)),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4], cards[5])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func lastPracticed(at, now time.Time) string {
	if at.IsZero() {
		return "never"
	}
	return stats.RelTime(at, now)
}

func recordColumns() []table.Column {
	return []table.Column{
		{Title: stats.RecordHeaders[0], Width: 16},
		{Title: stats.RecordHeaders[1], Width: 28},
		{Title: stats.RecordHeaders[2], Width: 5},
		{Title: stats.RecordHeaders[3], Width: 9},
		{Title: stats.RecordHeaders[4], Width: 8},
		{Title: stats.RecordHeaders[5], Width: 6},
	}
}

func progressColumns() []table.Column {
	return []table.Column{
		{Title: stats.ProgressHeaders[0], Width: 28},
		{Title: stats.ProgressHeaders[1], Width: 12},
		{Title: stats.ProgressHeaders[2], Width: 9},
		{Title: stats.ProgressHeaders[3], Width: 9},
	}
}

func newTable(columns []table.Column, rows []table.Row) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(1),
	)
	t.SetStyles(tableStyles())
	return t
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func toRows(rows [][]string) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row(r)
	}
	return out
}

// openDetail shows the record under the cursor. Rows are newest first.
func (m *Model) openDetail() {
	records := m.report.Records
	cursor := m.tables[tabRecords].Cursor()
	if cursor < 0 || cursor >= len(records) {
		return
	}
	rec := records[len(records)-1-cursor]
	m.detail = &rec
}

func (m *Model) renderDetail() string {
	rec := *m.detail
	name := m.report.Names[rec.ChapterID]
	if name == "" {
		name = rec.ChapterID
	}
	body := []string{
		cardValueStyle.Render(name),
		headerStyle.Render(rec.CreatedAt.Local().Format("2006-01-02 15:04")),
		"",
		fmt.Sprintf("%d WPM · %.1f%% · %s · %d errors", rec.WPM, rec.Accuracy, stats.FormatDuration(rec.DurationSeconds), rec.ErrorCount),
	}
	if len(rec.Errors) > 0 {
		body = append(body, "")
	}
	inner := modalInnerWidth(m.width)
	for _, e := range rec.Errors {
		actual := e.Actual
		if strings.TrimSpace(actual) == "" {
			actual = "(empty)"
		}
		body = append(body,
			expectedStyle.Render(runewidth.Truncate(e.Expected, inner, "...")),
			actualStyle.Render(runewidth.Truncate("  "+actual, inner, "...")),
		)
	}
	body = append(body, "", headerStyle.Render("Enter/Esc to close"))
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refreshReport()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	chapter := strings.TrimSpace(m.filterInputs[0].Value())
	sinceInput := strings.TrimSpace(m.filterInputs[1].Value())
	var since *time.Time
	if sinceInput != "" {
		parsed, err := time.ParseInLocation("2006-01-02", sinceInput, time.Local)
		if err != nil {
			return fmt.Errorf("invalid since date (expected YYYY-MM-DD)")
		}
		since = &parsed
	}

	lastInput := strings.TrimSpace(m.filterInputs[2].Value())
	last := 0
	if lastInput != "" {
		parsed, err := strconv.Atoi(lastInput)
		if err != nil || parsed < 0 {
			return fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		last = parsed
	}

	window := 1
	if windowInput := strings.TrimSpace(m.filterInputs[3].Value()); windowInput != "" {
		parsed, err := strconv.Atoi(windowInput)
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid curve window (use integer >= 1)")
		}
		window = parsed
	}

	m.cfg.Filter = model.RecordFilter{ChapterID: chapter, Since: since, Last: last}
	m.cfg.CurveWindow = window
	return nil
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	return (n/5 + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func modalWidth(width int) int {
	return max(40, min(width-4, 80))
}

func modalInnerWidth(width int) int {
	// 2 border + 4 padding
	return max(modalWidth(width)-6, 10)
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}
