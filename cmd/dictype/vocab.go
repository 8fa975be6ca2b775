package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/dictype/internal/audio"
	"github.com/verte-zerg/dictype/internal/content"
	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/stats"
	"github.com/verte-zerg/dictype/internal/vocabui"
)

func newVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab [query]",
		Short: "Browse, replay and manage saved sentences",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runVocabCmd,
	}
	cmd.Flags().BoolVar(&vocabMastered, "mastered", false, "show mastered entries")
	cmd.Flags().BoolVar(&vocabPlain, "plain", false, "print a text table instead of the TUI")
	cmd.Flags().BoolVar(&practiceNoAudio, "no-audio", false, "disable sentence audio")
	return cmd
}

func runVocabCmd(cmd *cobra.Command, args []string) error {
	fileCfg, env, err := loadSettings()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "voice", &practiceVoice, fileCfg.Practice.Voice)
	applyTTSConfig(cmd, fileCfg, env)
	if err := validatePractice(); err != nil {
		return err
	}
	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	if vocabPlain {
		st, err := openStore(newLogger(os.Stderr))
		if err != nil {
			return err
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close db: %v\n", cerr)
			}
		}()
		status := model.VocabNew
		if vocabMastered {
			status = model.VocabMastered
		}
		entries, err := st.ListVocab(context.Background(), status)
		if err != nil {
			return fmt.Errorf("failed to list vocabulary: %w", err)
		}
		return stats.RenderVocabTable(cmd.OutOrStdout(), content.SearchVocab(entries, query), time.Now())
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

	synth, closeSynth, err := newSynthesizer(env, logger)
	if err != nil {
		return err
	}
	defer closeSynth()
	var seq *audio.Sequencer
	if synth != nil {
		seq = audio.NewSequencer(synth, newPlayer(logger), audio.SequencerOptions{Voice: practiceVoice, Logger: logger})
	}

	m, err := vocabui.NewModel(st, vocabui.Options{
		Query:     query,
		Mastered:  vocabMastered,
		Sequencer: seq,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run vocabulary TUI: %w", err)
	}
	return nil
}
