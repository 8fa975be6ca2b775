// Package tui provides the Bubble Tea dictation interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/verte-zerg/dictype/internal/audio"
	"github.com/verte-zerg/dictype/internal/ledger"
	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/session"
	statsPkg "github.com/verte-zerg/dictype/internal/stats"
)

const maxListedErrors = 5

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	promptStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	titleStyle       = lipgloss.NewStyle().Bold(true)
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	noticeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A040"))
	slotCorrectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	slotWrongStyle   = incorrectStyle
	slotTypedStyle   = correctStyle
	slotPendingStyle = footerStyle
)

// Vocabulary stores sentences marked during practice.
type Vocabulary interface {
	SaveVocab(ctx context.Context, entry model.VocabEntry) (model.VocabEntry, error)
	ListVocab(ctx context.Context, status model.VocabStatus) ([]model.VocabEntry, error)
}

// Deps are the collaborators of a play screen. Sequencer, Effects, Ledger
// and Vocab may be nil.
type Deps struct {
	Controller *session.Controller
	Sequencer  *audio.Sequencer
	Effects    *audio.Effects
	Ledger     *ledger.Ledger
	Vocab      Vocabulary
	Logger     *log.Logger
}

// Options tune the play screen.
type Options struct {
	ShowAnswer bool
	Autoplay   bool
	Clock      func() time.Time
}

type (
	tickMsg      time.Time
	advanceMsg   struct{ index int }
	audioDoneMsg struct {
		index int
		err   error
	}
	commitDoneMsg struct {
		progress model.Progress
		err      error
	}
	vocabDoneMsg struct {
		entry model.VocabEntry
		err   error
	}
)

// Model implements the Bubble Tea play screen for one chapter.
type Model struct {
	ctrl    *session.Controller
	seq     *audio.Sequencer
	effects *audio.Effects
	ledger  *ledger.Ledger
	vocab   Vocabulary
	logger  *log.Logger
	opts    Options

	marks map[string]model.VocabStatus

	chapter  model.Chapter
	progress model.Progress
	input    textinput.Model

	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int
	now    time.Time

	feedback      feedback
	submitted     string
	revealed      bool
	resumeAdvance bool
	notice        string

	record          *model.Record
	committed       bool
	quitAfterCommit bool
	quitting        bool
}

// NewModel starts a session on chapter. progress is the chapter's stored
// progress and feeds the best-score footer.
func NewModel(chapter model.Chapter, progress model.Progress, deps Deps, opts Options) (*Model, error) {
	ctrl := deps.Controller
	if ctrl == nil {
		ctrl = session.New(session.Options{Clock: opts.Clock})
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	if err := ctrl.Start(chapter); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	if deps.Sequencer != nil {
		deps.Sequencer.Load(chapter)
	}

	input := textinput.New()
	input.Prompt = "› "
	input.Placeholder = "type what you hear"
	input.Focus()

	marks := make(map[string]model.VocabStatus)
	if deps.Vocab != nil {
		entries, err := deps.Vocab.ListVocab(context.Background(), "")
		if err != nil {
			return nil, fmt.Errorf("failed to load vocabulary: %w", err)
		}
		for _, e := range entries {
			marks[e.SentenceID] = e.Status
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Model{
		ctrl:     ctrl,
		seq:      deps.Sequencer,
		effects:  deps.Effects,
		ledger:   deps.Ledger,
		vocab:    deps.Vocab,
		marks:    marks,
		logger:   logger.WithPrefix("play"),
		opts:     opts,
		chapter:  chapter,
		progress: progress,
		input:    input,
		ctx:      ctx,
		cancel:   cancel,
		now:      opts.Clock(),
	}, nil
}

// Record returns the finished session record, if any.
func (m *Model) Record() (model.Record, bool) {
	if m.record == nil {
		return model.Record{}, false
	}
	return *m.record, true
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, tick()}
	if m.opts.Autoplay {
		cmds = append(cmds, m.present(0))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(contentWidth(m.width)-2, 10)
		return m, nil
	case tickMsg:
		if m.quitting {
			return m, nil
		}
		m.now = m.opts.Clock()
		return m, tick()
	case advanceMsg:
		return m, m.handleAdvance(msg)
	case audioDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.logger.Warn("audio failed", "index", msg.index, "err", msg.err)
			m.notice = audioNotice(msg.err)
		}
		return m, nil
	case commitDoneMsg:
		return m, m.handleCommit(msg)
	case vocabDoneMsg:
		m.handleVocab(msg)
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}
	switch m.ctrl.State() {
	case session.Finished:
		switch {
		case msg.Type == tea.KeyEnter, msg.Type == tea.KeyEsc, msg.String() == "q":
			return m.quit()
		case msg.String() == "r":
			return m.restart()
		}
		return nil
	case session.Paused:
		if msg.Type == tea.KeyEsc || msg.Type == tea.KeyCtrlP {
			return m.resume()
		}
		return nil
	case session.Idle:
		return nil
	}

	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlP:
		m.pause()
		return nil
	case tea.KeyEnter:
		return m.submit()
	case tea.KeyTab:
		return m.skip()
	case tea.KeyCtrlR:
		return m.replay()
	case tea.KeyCtrlS:
		m.opts.ShowAnswer = !m.opts.ShowAnswer
		return nil
	case tea.KeyCtrlN:
		return m.mark(model.VocabNew)
	case tea.KeyCtrlO:
		return m.mark(model.VocabMastered)
	}
	if m.feedback == feedbackCorrect {
		return nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		if err := m.ctrl.Type(value); err != nil {
			m.logger.Debug("input ignored", "err", err)
		}
		m.feedback = feedbackNone
	}
	return cmd
}

func (m *Model) submit() tea.Cmd {
	text := m.input.Value()
	verdict, err := m.ctrl.Submit(text)
	if err != nil {
		m.logger.Debug("submit ignored", "err", err)
		return nil
	}
	m.submitted = text
	if !verdict.Correct {
		m.feedback = feedbackWrong
		m.revealed = true
		m.playEffect(audio.KeyError)
		return nil
	}
	m.feedback = feedbackCorrect
	m.playEffect(audio.KeyPress)
	index := m.ctrl.Snapshot().Index
	return tea.Tick(verdict.AdvanceAfter, func(time.Time) tea.Msg {
		return advanceMsg{index: index}
	})
}

func (m *Model) handleAdvance(msg advanceMsg) tea.Cmd {
	snap := m.ctrl.Snapshot()
	if !snap.PendingAdvance || snap.Index != msg.index {
		return nil
	}
	if snap.State == session.Paused {
		m.resumeAdvance = true
		return nil
	}
	done, err := m.ctrl.Advance()
	if err != nil {
		m.logger.Debug("advance ignored", "err", err)
		return nil
	}
	return m.moved(done, true)
}

func (m *Model) skip() tea.Cmd {
	if !m.ctrl.CanSkip() {
		return nil
	}
	done, err := m.ctrl.Skip()
	if err != nil {
		m.logger.Debug("skip ignored", "err", err)
		return nil
	}
	return m.moved(done, false)
}

// moved resets the per-sentence view after the cursor advanced.
func (m *Model) moved(done, matched bool) tea.Cmd {
	m.feedback = feedbackNone
	m.revealed = false
	m.submitted = ""
	m.input.Reset()
	if done {
		m.playEffect(audio.ChapterComplete)
		return m.finish()
	}
	if matched {
		m.playEffect(audio.SentenceComplete)
	}
	if m.opts.Autoplay {
		return m.present(m.ctrl.Snapshot().Index)
	}
	return nil
}

func (m *Model) finish() tea.Cmd {
	rec, err := m.ctrl.Finish()
	if err != nil {
		m.logger.Error("failed to finish session", "err", err)
		return nil
	}
	m.record = &rec
	m.input.Blur()
	if m.ledger == nil {
		m.committed = true
		return nil
	}
	led := m.ledger
	return func() tea.Msg {
		progress, err := led.Commit(context.Background(), rec)
		return commitDoneMsg{progress: progress, err: err}
	}
}

func (m *Model) handleCommit(msg commitDoneMsg) tea.Cmd {
	m.committed = true
	if msg.progress.ChapterID != "" {
		m.progress = msg.progress
	}
	switch {
	case msg.err == nil:
	case errors.Is(msg.err, ledger.ErrPersistence):
		m.notice = "saved locally, will sync later"
	default:
		m.logger.Error("failed to save record", "err", msg.err)
		m.notice = "could not save record: " + msg.err.Error()
	}
	if m.quitAfterCommit {
		return tea.Quit
	}
	return nil
}

// mark saves the current sentence to the vocabulary with status.
func (m *Model) mark(status model.VocabStatus) tea.Cmd {
	if m.vocab == nil {
		return nil
	}
	sentence, ok := m.ctrl.Snapshot().Current()
	if !ok {
		return nil
	}
	entry := model.VocabEntry{
		SentenceID:  sentence.ID,
		ChapterID:   m.chapter.ID,
		Content:     sentence.Content,
		Translation: sentence.Translation,
		Status:      status,
		UpdatedAt:   m.opts.Clock(),
	}
	vocab := m.vocab
	return func() tea.Msg {
		saved, err := vocab.SaveVocab(context.Background(), entry)
		return vocabDoneMsg{entry: saved, err: err}
	}
}

func (m *Model) handleVocab(msg vocabDoneMsg) {
	if msg.err != nil {
		m.logger.Warn("failed to save vocabulary", "err", msg.err)
		m.notice = "could not save to vocabulary"
		return
	}
	m.marks[msg.entry.SentenceID] = msg.entry.Status
	if msg.entry.Status == model.VocabMastered {
		m.notice = "marked as mastered"
	} else {
		m.notice = "added to vocabulary"
	}
}

func (m *Model) pause() {
	if err := m.ctrl.Pause(); err != nil {
		m.logger.Debug("pause ignored", "err", err)
		return
	}
	m.input.Blur()
}

func (m *Model) resume() tea.Cmd {
	if err := m.ctrl.Resume(); err != nil {
		m.logger.Debug("resume ignored", "err", err)
		return nil
	}
	m.input.Focus()
	if m.resumeAdvance {
		m.resumeAdvance = false
		return m.handleAdvance(advanceMsg{index: m.ctrl.Snapshot().Index})
	}
	return nil
}

func (m *Model) restart() tea.Cmd {
	m.ctrl.Abandon()
	if err := m.ctrl.Start(m.chapter); err != nil {
		m.logger.Error("failed to restart session", "err", err)
		return nil
	}
	if m.seq != nil {
		m.seq.Load(m.chapter)
	}
	m.record = nil
	m.committed = false
	m.notice = ""
	m.input.Reset()
	m.input.Focus()
	if m.opts.Autoplay {
		return m.present(0)
	}
	return nil
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.cancel()
	if m.seq != nil {
		m.seq.Reset()
	}
	if m.effects != nil {
		m.effects.StopAll()
	}
	if m.ctrl.State() == session.Finished {
		if !m.committed {
			m.quitAfterCommit = true
			return nil
		}
		return tea.Quit
	}
	m.ctrl.Abandon()
	if m.ledger == nil {
		return tea.Quit
	}
	led, chapterID, logger := m.ledger, m.chapter.ID, m.logger
	touch := func() tea.Msg {
		if _, err := led.Touch(context.Background(), chapterID); err != nil {
			logger.Warn("failed to record progress", "chapter", chapterID, "err", err)
		}
		return nil
	}
	return tea.Sequence(touch, tea.Quit)
}

func (m *Model) present(index int) tea.Cmd {
	if m.seq == nil {
		return nil
	}
	seq, ctx := m.seq, m.ctx
	return func() tea.Msg {
		return audioDoneMsg{index: index, err: seq.Present(ctx, index)}
	}
}

func (m *Model) replay() tea.Cmd {
	if m.seq == nil {
		return nil
	}
	m.notice = ""
	seq, ctx, index := m.seq, m.ctx, m.ctrl.Snapshot().Index
	return func() tea.Msg {
		return audioDoneMsg{index: index, err: seq.Replay(ctx, index)}
	}
}

func (m *Model) playEffect(sound audio.Sound) {
	if m.effects != nil {
		m.effects.Play(sound)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func audioNotice(err error) string {
	switch {
	case errors.Is(err, audio.ErrNetwork):
		return "audio unavailable: network error (ctrl+r to retry)"
	case errors.Is(err, audio.ErrSynthesis):
		return "audio unavailable for this sentence"
	case errors.Is(err, audio.ErrPlayback):
		return "playback failed (ctrl+r to retry)"
	}
	return "audio unavailable"
}

func contentWidth(width int) int {
	return max(int(float64(width)*0.70), 1)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var content string
	if m.ctrl.State() == session.Finished && m.record != nil {
		content = m.renderResult()
	} else {
		content = m.renderPlay()
	}
	if m.width == 0 || m.height == 0 {
		return content + "\n" + m.renderFooter()
	}
	content = lipgloss.NewStyle().Width(contentWidth(m.width)).Render(content)
	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	bodyHeight := m.height - 1
	body := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderPlay() string {
	snap := m.ctrl.Snapshot()
	sentence, ok := snap.Current()
	if !ok {
		return ""
	}
	width := 0
	if m.width > 0 {
		width = contentWidth(m.width)
	}

	typed := m.input.Value()
	if m.feedback != feedbackNone {
		typed = m.submitted
	}
	title := titleStyle.Render(m.chapter.Name)
	if status, ok := m.marks[sentence.ID]; ok {
		title += "  " + footerStyle.Render("["+string(status)+"]")
	}
	lines := []string{title, ""}
	if sentence.Translation != "" {
		lines = append(lines, promptStyle.Render(sentence.Translation), "")
	}
	lines = append(lines, wrapSlots(buildSlots(sentence.Content, typed, m.feedback), width), "")
	lines = append(lines, m.input.View())
	if m.revealed || m.opts.ShowAnswer {
		answer := buildAnswerRunes([]rune(sentence.Content), []rune(strings.TrimSpace(typed)))
		lines = append(lines, "", wrapStyledRunes(answer, width))
	}
	if snap.State == session.Paused {
		lines = append(lines, "", noticeStyle.Render("Paused · esc to resume"))
	}
	if m.notice != "" {
		lines = append(lines, "", noticeStyle.Render(m.notice))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderResult() string {
	rec := *m.record
	lines := []string{
		titleStyle.Render("Chapter complete"),
		m.chapter.Name,
		"",
		fmt.Sprintf("%d WPM  ·  %.1f%% accuracy  ·  %s  ·  %d errors",
			rec.WPM, rec.Accuracy, statsPkg.FormatDuration(rec.DurationSeconds), rec.ErrorCount),
	}
	if best := bestLine(m.progress); best != "" {
		lines = append(lines, footerStyle.Render(best))
	}
	if len(rec.Errors) > 0 {
		lines = append(lines, "", "Mistakes:")
		for i, e := range rec.Errors {
			if i == maxListedErrors {
				lines = append(lines, footerStyle.Render(fmt.Sprintf("  … and %d more", len(rec.Errors)-i)))
				break
			}
			actual := e.Actual
			if strings.TrimSpace(actual) == "" {
				actual = "(empty)"
			}
			lines = append(lines, fmt.Sprintf("  %s  %s", correctStyle.Render(e.Expected), incorrectStyle.Render(actual)))
		}
	}
	if m.notice != "" {
		lines = append(lines, "", noticeStyle.Render(m.notice))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	snap := m.ctrl.Snapshot()
	if len(snap.Chapter.Sentences) == 0 {
		return ""
	}
	var segments []string
	if snap.State == session.Finished {
		segments = append(segments, "r again", "enter quit")
	} else {
		current := min(snap.Index+1, len(snap.Chapter.Sentences))
		segments = append(segments,
			fmt.Sprintf("Sentence %d/%d", current, len(snap.Chapter.Sentences)),
			"Time "+statsPkg.FormatDuration(int(m.ctrl.Elapsed(m.now).Seconds())),
			fmt.Sprintf("Errors %d", len(snap.Errors)),
		)
		if best := bestLine(m.progress); best != "" {
			segments = append(segments, best)
		}
		keys := "enter submit · ctrl+r replay · ctrl+s answer · esc pause"
		if m.ctrl.CanSkip() {
			keys = "tab skip · " + keys
		}
		if m.vocab != nil {
			keys += " · ctrl+n/ctrl+o new/mastered"
		}
		segments = append(segments, keys)
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func bestLine(p model.Progress) string {
	if p.BestWPM == nil {
		return ""
	}
	line := fmt.Sprintf("Best %d WPM", *p.BestWPM)
	if p.BestAccuracy != nil {
		line += fmt.Sprintf(" · %.1f%%", *p.BestAccuracy)
	}
	return line
}
