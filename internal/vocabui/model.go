// Package vocabui provides the Bubble Tea vocabulary browser.
package vocabui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/dictype/internal/audio"
	"github.com/verte-zerg/dictype/internal/content"
	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/stats"
)

const (
	tabNew = iota
	tabMastered
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
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A040"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Store is the vocabulary persistence the browser needs.
type Store interface {
	ListVocab(ctx context.Context, status model.VocabStatus) ([]model.VocabEntry, error)
	SetVocabStatus(ctx context.Context, sentenceID string, status model.VocabStatus, at time.Time) error
	DeleteVocab(ctx context.Context, sentenceID string) error
}

// Options tune the browser. Sequencer and Logger may be nil.
type Options struct {
	Query     string
	Mastered  bool
	Sequencer *audio.Sequencer
	Logger    *log.Logger
	Clock     func() time.Time
}

type audioDoneMsg struct {
	sentenceID string
	err        error
}

// Model implements the vocabulary browser.
type Model struct {
	store  Store
	seq    *audio.Sequencer
	logger *log.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	entries []model.VocabEntry
	index   map[string]int
	visible []model.VocabEntry

	activeTab int
	table     table.Model
	search    textinput.Model
	searching bool
	confirm   *model.VocabEntry

	notice string
	errMsg string

	width  int
	height int
}

// NewModel loads the vocabulary and opens the New tab, or the Mastered tab
// when opts.Mastered is set.
func NewModel(st Store, opts Options) (*Model, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "content or translation"
	search.SetValue(opts.Query)

	t := table.New(table.WithColumns(columns(80)), table.WithHeight(1), table.WithFocused(true))
	t.SetStyles(tableStyles())

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		store:  st,
		seq:    opts.Sequencer,
		logger: logger.WithPrefix("vocab"),
		now:    opts.Clock,
		ctx:    ctx,
		cancel: cancel,
		table:  t,
		search: search,
	}
	if opts.Mastered {
		m.activeTab = tabMastered
	}
	if err := m.reload(); err != nil {
		cancel()
		return nil, err
	}
	return m, nil
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
		return m, nil
	case audioDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.logger.Warn("audio failed", "sentence", msg.sentenceID, "err", msg.err)
			m.notice = "audio unavailable"
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, m.quit()
		}
		if m.confirm != nil {
			m.handleConfirm(msg)
			return m, nil
		}
		if m.searching {
			return m, m.updateSearch(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "esc":
		return m.quit()
	case "left", "h", "right", "l":
		m.activeTab = 1 - m.activeTab
		m.notice = ""
		m.filter()
		return tea.ClearScreen
	case "/":
		m.searching = true
		return m.search.Focus()
	case "m":
		m.toggle()
		return nil
	case "d":
		if entry, ok := m.selected(); ok {
			m.confirm = &entry
		}
		return nil
	case "enter", "p":
		return m.play()
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return cmd
}

func (m *Model) updateSearch(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		if msg.Type == tea.KeyEsc {
			m.search.SetValue("")
			m.filter()
		}
		return nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.filter()
	return cmd
}

func (m *Model) handleConfirm(msg tea.KeyMsg) {
	entry := *m.confirm
	m.confirm = nil
	if msg.String() != "y" {
		return
	}
	if err := m.store.DeleteVocab(context.Background(), entry.SentenceID); err != nil {
		m.fail("delete", err)
		return
	}
	m.notice = "deleted " + quote(entry.Content)
	m.refresh()
}

func (m *Model) toggle() {
	entry, ok := m.selected()
	if !ok {
		return
	}
	next, label := model.VocabMastered, "mastered"
	if entry.Status == model.VocabMastered {
		next, label = model.VocabNew, "new"
	}
	if err := m.store.SetVocabStatus(context.Background(), entry.SentenceID, next, m.now()); err != nil {
		m.fail("update", err)
		return
	}
	m.notice = fmt.Sprintf("moved %s to %s", quote(entry.Content), label)
	m.refresh()
}

func (m *Model) play() tea.Cmd {
	entry, ok := m.selected()
	if !ok || m.seq == nil {
		return nil
	}
	i, ok := m.index[entry.SentenceID]
	if !ok {
		return nil
	}
	m.notice = ""
	seq, ctx, id := m.seq, m.ctx, entry.SentenceID
	return func() tea.Msg {
		return audioDoneMsg{sentenceID: id, err: seq.Replay(ctx, i)}
	}
}

func (m *Model) quit() tea.Cmd {
	m.cancel()
	if m.seq != nil {
		m.seq.Reset()
	}
	return tea.Quit
}

func (m *Model) fail(op string, err error) {
	m.logger.Error("vocabulary "+op+" failed", "err", err)
	m.errMsg = fmt.Sprintf("failed to %s entry: %v", op, err)
}

func (m *Model) refresh() {
	if err := m.reload(); err != nil {
		m.fail("load", err)
	}
}

// reload reads every entry and rebuilds the playback chapter so sentence
// indexes stay aligned with the sequencer.
func (m *Model) reload() error {
	entries, err := m.store.ListVocab(context.Background(), "")
	if err != nil {
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}
	m.entries = entries
	m.index = make(map[string]int, len(entries))
	chapter := model.Chapter{ID: "vocabulary", Name: "Vocabulary", Sentences: make([]model.Sentence, 0, len(entries))}
	for i, e := range entries {
		m.index[e.SentenceID] = i
		chapter.Sentences = append(chapter.Sentences, model.Sentence{ID: e.SentenceID, Content: e.Content, Translation: e.Translation})
	}
	if m.seq != nil {
		m.seq.Load(chapter)
	}
	m.errMsg = ""
	m.filter()
	return nil
}

// filter applies the active tab and the search query.
func (m *Model) filter() {
	status := model.VocabNew
	if m.activeTab == tabMastered {
		status = model.VocabMastered
	}
	var tabbed []model.VocabEntry
	for _, e := range m.entries {
		if e.Status == status {
			tabbed = append(tabbed, e)
		}
	}
	m.visible = content.SearchVocab(tabbed, strings.TrimSpace(m.search.Value()))
	rows := make([]table.Row, 0, len(m.visible))
	now := m.now()
	for _, e := range m.visible {
		rows = append(rows, table.Row{e.Content, e.Translation, e.ChapterID, stats.RelTime(e.CreatedAt, now)})
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

func (m *Model) selected() (model.VocabEntry, bool) {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.visible) {
		return model.VocabEntry{}, false
	}
	return m.visible[cursor], true
}

func (m *Model) counts() (fresh, mastered int) {
	for _, e := range m.entries {
		if e.Status == model.VocabMastered {
			mastered++
		} else {
			fresh++
		}
	}
	return fresh, mastered
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.table.SetColumns(columns(m.width))
	m.table.SetWidth(m.width)
	m.table.SetHeight(max(m.height-m.chromeHeight()-1, 1))
	m.search.Width = max(m.width-4, 10)
}

func (m *Model) chromeHeight() int {
	return lipgloss.Height(activeNavStyle.Render("X")) + 3
}

func columns(width int) []table.Column {
	rest := max(width-12-10-6, 20)
	contentWidth := rest * 3 / 5
	return []table.Column{
		{Title: "Sentence", Width: contentWidth},
		{Title: "Translation", Width: rest - contentWidth},
		{Title: "Chapter", Width: 10},
		{Title: "Added", Width: 12},
	}
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

// View implements tea.Model.
func (m *Model) View() string {
	fresh, mastered := m.counts()
	tabs := []string{fmt.Sprintf("New (%d)", fresh), fmt.Sprintf("Mastered (%d)", mastered)}
	parts := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	lines := []string{lipgloss.JoinHorizontal(lipgloss.Top, parts...)}

	if m.searching || m.search.Value() != "" {
		lines = append(lines, m.search.View())
	} else {
		lines = append(lines, "")
	}
	if len(m.visible) == 0 {
		lines = append(lines, "No entries.")
	} else {
		lines = append(lines, mutedStyle.Render(m.table.View()))
	}

	switch {
	case m.confirm != nil:
		lines = append(lines, noticeStyle.Render(fmt.Sprintf("Delete %s? y/n", quote(m.confirm.Content))))
	case m.errMsg != "":
		lines = append(lines, errorStyle.Render(m.errMsg))
	case m.notice != "":
		lines = append(lines, noticeStyle.Render(m.notice))
	}
	lines = append(lines, headerStyle.Render(m.help()))
	return strings.Join(lines, "\n")
}

func (m *Model) help() string {
	if m.searching {
		return "enter: keep filter  esc: clear"
	}
	help := "Tabs: left/right  Search: /  Toggle: m  Delete: d  Quit: q"
	if m.seq != nil {
		help = "Tabs: left/right  Play: enter  Search: /  Toggle: m  Delete: d  Quit: q"
	}
	return help
}

func quote(s string) string {
	return "\"" + runewidth.Truncate(s, 40, "...") + "\""
}
