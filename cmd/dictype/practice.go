package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/dictype/internal/audio"
	"github.com/verte-zerg/dictype/internal/config"
	"github.com/verte-zerg/dictype/internal/content"
	"github.com/verte-zerg/dictype/internal/generator"
	"github.com/verte-zerg/dictype/internal/ledger"
	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/remote"
	"github.com/verte-zerg/dictype/internal/session"
	"github.com/verte-zerg/dictype/internal/stats"
	"github.com/verte-zerg/dictype/internal/store"
	"github.com/verte-zerg/dictype/internal/tts"
	"github.com/verte-zerg/dictype/internal/tui"
)

const (
	providerAliyun  = "aliyun"
	providerBackend = "backend"
	providerNone    = "none"
)

func runPracticeCmd(cmd *cobra.Command, args []string) error {
	fileCfg, env, err := loadSettings()
	if err != nil {
		return err
	}
	p := fileCfg.Practice
	applyStringConfig(cmd, "voice", &practiceVoice, p.Voice)
	applyIntConfig(cmd, "feedback-delay-ms", &practiceFeedbackMs, p.FeedbackDelayMs)
	applyBoolConfig(cmd, "show-answer", &practiceShowAnswer, p.ShowAnswer)
	applyBoolConfig(cmd, "autoplay", &practiceAutoplay, p.Autoplay)
	applyBoolConfig(cmd, "effects", &practiceEffects, p.Effects)
	applyFloatConfig(cmd, "volume", &practiceVolume, p.Volume)
	applyBoolConfig(cmd, "focus-weak", &practiceFocusWeak, p.FocusWeak)
	applyIntConfig(cmd, "weak-top", &practiceWeakTop, p.WeakTop)
	applyFloatConfig(cmd, "weak-factor", &practiceWeakFactor, p.WeakFactor)
	applyIntConfig(cmd, "weak-window", &practiceWeakWindow, p.WeakWindow)
	applyIntConfig(cmd, "review-size", &practiceReviewSize, p.ReviewSize)
	applyTTSConfig(cmd, fileCfg, env)
	if err := validatePractice(); err != nil {
		return err
	}

	logger, closeLog, err := openLogFile()
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	chapter, err := pickChapter(ctx, st, args, logger)
	if err != nil {
		return err
	}
	progress, err := st.GetProgress(ctx, chapter.ID)
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}

	synth, closeSynth, err := newSynthesizer(env, logger)
	if err != nil {
		return err
	}
	defer closeSynth()

	player := newPlayer(logger)
	var seq *audio.Sequencer
	if synth != nil {
		seq = audio.NewSequencer(synth, player, audio.SequencerOptions{Voice: practiceVoice, Logger: logger})
	}
	var effects *audio.Effects
	if practiceEffects && !practiceNoAudio {
		effects = audio.NewEffects(player, practiceVolume, logger)
	}

	ctrl := session.New(session.Options{FeedbackDelay: time.Duration(practiceFeedbackMs) * time.Millisecond})
	m, err := tui.NewModel(chapter, progress, tui.Deps{
		Controller: ctrl,
		Sequencer:  seq,
		Effects:    effects,
		Ledger:     newLedger(st, env, logger),
		Vocab:      st,
		Logger:     logger,
	}, tui.Options{
		ShowAnswer: practiceShowAnswer,
		Autoplay:   practiceAutoplay && seq != nil,
	})
	if err != nil {
		return err
	}
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	if rec, ok := m.Record(); ok {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %d WPM · %.1f%% · %s · %d errors\n",
			chapter.Name, rec.WPM, rec.Accuracy, stats.FormatDuration(rec.DurationSeconds), rec.ErrorCount)
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// openStore opens the database and seeds the built-in chapters that are
// not stored yet.
func openStore(logger *log.Logger) (*store.Store, error) {
	st, err := store.Open(dbPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := seedBuiltin(context.Background(), st, logger); err != nil {
		// Best-effort close.
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func seedBuiltin(ctx context.Context, st *store.Store, logger *log.Logger) error {
	builtin, err := content.Builtin()
	if err != nil {
		return fmt.Errorf("failed to load built-in chapters: %w", err)
	}
	existing, err := st.ListChapters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chapters: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, ch := range existing {
		have[ch.ID] = struct{}{}
	}
	for _, ch := range builtin {
		if _, ok := have[ch.ID]; ok {
			continue
		}
		if err := st.UpsertChapter(ctx, ch); err != nil {
			return fmt.Errorf("failed to seed chapter %s: %w", ch.ID, err)
		}
		logger.Debug("seeded chapter", "chapter", ch.ID)
	}
	return nil
}

// pickChapter resolves the chapter argument by id or fuzzy name, the review
// chapter with --focus-weak, or the first chapter by order.
func pickChapter(ctx context.Context, st *store.Store, args []string, logger *log.Logger) (model.Chapter, error) {
	if practiceFocusWeak {
		review, ok, err := reviewChapter(ctx, st)
		if err != nil {
			return model.Chapter{}, err
		}
		if ok {
			return review, nil
		}
		logErrf("no mistakes recorded yet; practicing a regular chapter\n")
		logger.Info("review chapter unavailable, no misses recorded")
	}

	summaries, err := st.ListChapters(ctx)
	if err != nil {
		return model.Chapter{}, fmt.Errorf("failed to list chapters: %w", err)
	}
	if len(summaries) == 0 {
		return model.Chapter{}, fmt.Errorf("no chapters available; import some with: dictype import <file>")
	}
	id := summaries[0].ID
	if len(args) > 0 {
		chapter, err := st.GetChapter(ctx, args[0])
		if err == nil {
			return chapter, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.Chapter{}, fmt.Errorf("failed to load chapter: %w", err)
		}
		matches := content.Search(summaries, args[0])
		if len(matches) == 0 {
			return model.Chapter{}, fmt.Errorf("no chapter matches %q (see: dictype chapters)", args[0])
		}
		id = matches[0].ID
	}
	chapter, err := st.GetChapter(ctx, id)
	if err != nil {
		return model.Chapter{}, fmt.Errorf("failed to load chapter: %w", err)
	}
	return chapter, nil
}

func reviewChapter(ctx context.Context, st *store.Store) (model.Chapter, bool, error) {
	misses, err := st.MissedSentences(ctx, practiceWeakWindow, "")
	if err != nil {
		return model.Chapter{}, false, fmt.Errorf("failed to load missed sentences: %w", err)
	}
	weak := stats.SelectWeakSentences(misses, practiceWeakTop)
	if len(weak) == 0 {
		return model.Chapter{}, false, nil
	}
	summaries, err := st.ListChapters(ctx)
	if err != nil {
		return model.Chapter{}, false, fmt.Errorf("failed to list chapters: %w", err)
	}
	var pool []model.Sentence
	for _, s := range summaries {
		ch, err := st.GetChapter(ctx, s.ID)
		if err != nil {
			return model.Chapter{}, false, fmt.Errorf("failed to load chapter: %w", err)
		}
		pool = append(pool, ch.Sentences...)
	}
	review := generator.New().Review(pool, practiceReviewSize, weak, practiceWeakFactor)
	return review, len(review.Sentences) > 0, nil
}

// newSynthesizer picks the speech provider. An empty provider means aliyun
// when credentials are set, else the backend when a URL is set, else none.
// A nil synthesizer disables sentence audio.
func newSynthesizer(env config.Env, logger *log.Logger) (audio.Synthesizer, func(), error) {
	noop := func() {}
	if practiceNoAudio {
		return nil, noop, nil
	}
	provider := practiceProvider
	if provider == "" {
		switch {
		case env.HasAliyun():
			provider = providerAliyun
		case practiceRemoteURL != "":
			provider = providerBackend
		default:
			provider = providerNone
		}
	}

	var synth audio.Synthesizer
	switch provider {
	case providerAliyun:
		a, err := tts.NewAliyun(tts.AliyunConfig{
			AccessKeyID:       env.AliyunAccessKeyID,
			AccessKeySecret:   env.AliyunAccessKeySecret,
			AppKey:            env.AliyunAppKey,
			RequestsPerMinute: practiceRPM,
			Logger:            logger,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to configure aliyun: %w", err)
		}
		synth = a
	case providerBackend:
		b, err := tts.NewBackend(tts.BackendConfig{
			BaseURL:           practiceRemoteURL,
			Token:             env.Token,
			RequestsPerMinute: practiceRPM,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to configure backend speech: %w", err)
		}
		synth = b
	default:
		logger.Info("speech disabled", "provider", provider)
		return nil, noop, nil
	}
	logger.Debug("speech provider", "provider", provider, "voice", practiceVoice)

	if !practiceDiskCache {
		return synth, noop, nil
	}
	cache, err := tts.NewDiskCache(config.DefaultAudioCacheDir(), synth, logger)
	if err != nil {
		logger.Warn("audio disk cache disabled", "err", err)
		return synth, noop, nil
	}
	return cache, func() {
		if err := cache.Close(); err != nil {
			logger.Warn("failed to close audio cache", "err", err)
		}
	}, nil
}

func newPlayer(logger *log.Logger) audio.Player {
	if practiceNoAudio {
		return audio.NopPlayer{}
	}
	player, err := audio.NewOtoPlayer()
	if err != nil {
		logger.Warn("audio device unavailable, continuing silently", "err", err)
		return audio.NopPlayer{}
	}
	return player
}

// newLedger returns a signed-in ledger when a remote URL and token are set,
// else a guest one.
func newLedger(st *store.Store, env config.Env, logger *log.Logger) *ledger.Ledger {
	var rem ledger.Remote
	if practiceRemoteURL != "" && env.Token != "" {
		rem = remote.New(practiceRemoteURL, env.Token, nil)
	}
	return ledger.New(st, rem, ledger.Options{Logger: logger})
}
