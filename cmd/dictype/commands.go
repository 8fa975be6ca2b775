package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/dictype/internal/content"
	"github.com/verte-zerg/dictype/internal/ledger"
	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/remote"
	"github.com/verte-zerg/dictype/internal/stats"
	"github.com/verte-zerg/dictype/internal/statsui"
	"github.com/verte-zerg/dictype/internal/store"
)

func newChaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chapters [query]",
		Short: "List chapters with progress",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runChaptersCmd,
	}
}

func runChaptersCmd(cmd *cobra.Command, args []string) error {
	if _, _, err := loadSettings(); err != nil {
		return err
	}
	st, err := openStore(newLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	chapters, err := st.ListChapters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chapters: %w", err)
	}
	if len(args) > 0 {
		chapters = content.Search(chapters, args[0])
		if len(chapters) == 0 {
			return fmt.Errorf("no chapter matches %q", args[0])
		}
	}
	list, err := st.ListProgress(ctx)
	if err != nil {
		return fmt.Errorf("failed to list progress: %w", err)
	}
	progress := make(map[string]model.Progress, len(list))
	for _, p := range list {
		progress[p.ChapterID] = p
	}
	if err := stats.RenderProgressTable(cmd.OutOrStdout(), chapters, progress); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import chapters from a YAML, TOML or text file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCmd,
	}
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	if _, _, err := loadSettings(); err != nil {
		return err
	}
	chapters, err := content.LoadFile(args[0])
	if err != nil {
		return err
	}
	st, err := openStore(newLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	for _, ch := range chapters {
		if err := st.UpsertChapter(ctx, ch); err != nil {
			return fmt.Errorf("failed to import chapter %s: %w", ch.ID, err)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s, %d sentences)\n", ch.Name, ch.ID, len(ch.Sentences)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Show records and progress",
		Args:  cobra.NoArgs,
		RunE:  runRecordsCmd,
	}
	cmd.Flags().StringVar(&recordsChapter, "chapter", "", "chapter id filter")
	cmd.Flags().StringVar(&recordsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&recordsLast, "last", 0, "limit to last N records")
	cmd.Flags().IntVar(&recordsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().IntVar(&recordsTop, "top", defaultTopMisses, "number of most missed sentences")
	cmd.Flags().IntVar(&recordsMissWindow, "miss-window", defaultWeakWindow, "number of recent records to compute misses")
	cmd.Flags().BoolVar(&recordsPlain, "plain", false, "print a text report instead of the TUI")
	return cmd
}

func runRecordsCmd(cmd *cobra.Command, _ []string) error {
	if _, _, err := loadSettings(); err != nil {
		return err
	}
	var sinceTime *time.Time
	if recordsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", recordsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if recordsCurveWindow < 1 {
		return fmt.Errorf("--curve-window must be >= 1")
	}

	cfg := stats.ReportConfig{
		Filter:      model.RecordFilter{ChapterID: recordsChapter, Since: sinceTime, Last: recordsLast},
		MissWindow:  recordsMissWindow,
		TopMisses:   recordsTop,
		CurveWindow: recordsCurveWindow,
	}

	st, err := openStore(newLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	if recordsPlain {
		report, err := stats.BuildReport(context.Background(), st, cfg)
		if err != nil {
			return err
		}
		return report.Render(cmd.OutOrStdout(), cfg, terminalWidth(), time.Now())
	}

	m := statsui.NewModel(st, cfg, time.Now)
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run records TUI: %w", err)
	}
	return nil
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending records and progress, then pull remote chapters",
		Args:  cobra.NoArgs,
		RunE:  runSyncCmd,
	}
}

func runSyncCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, env, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)
	practiceRemoteURL = resolveRemoteURL(fileCfg, env)

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
	res, err := newLedger(st, env, logger).Sync(ctx)
	if errors.Is(err, ledger.ErrGuest) {
		return fmt.Errorf("not signed in: set DICTYPE_REMOTE_URL (or [remote] url) and DICTYPE_TOKEN")
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "Pushed %d records and %d progress entries\n", res.RecordsSynced, res.ProgressSynced); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if _, err := fmt.Fprintf(out, "Downloaded %d records, merged %d progress entries\n", res.RecordsPulled, res.ProgressMerged); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	pulled, err := pullChapters(ctx, st, remote.New(practiceRemoteURL, env.Token, nil), logger)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "Pulled %d chapters\n", pulled); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// pullChapters stores remote chapters that are missing locally. Invalid
// chapters are skipped with a warning.
func pullChapters(ctx context.Context, st *store.Store, client *remote.Client, logger *log.Logger) (int, error) {
	summaries, err := client.ListChapters(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list remote chapters: %w", err)
	}
	pulled := 0
	for _, s := range summaries {
		if _, err := st.GetChapter(ctx, s.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return pulled, fmt.Errorf("failed to load chapter: %w", err)
		}
		ch, err := client.GetChapter(ctx, s.ID)
		if err != nil {
			return pulled, fmt.Errorf("failed to fetch chapter %s: %w", s.ID, err)
		}
		if err := content.Validate(&ch); err != nil {
			logger.Warn("skipping remote chapter", "chapter", s.ID, "err", err)
			continue
		}
		if err := st.UpsertChapter(ctx, ch); err != nil {
			return pulled, fmt.Errorf("failed to store chapter %s: %w", s.ID, err)
		}
		pulled++
	}
	return pulled, nil
}
