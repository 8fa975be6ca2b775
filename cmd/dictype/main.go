// Package main provides the CLI entrypoint for dictype.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/dictype/internal/config"
	"github.com/verte-zerg/dictype/internal/tts"
)

const (
	defaultFeedbackDelayMs = 500
	defaultVolume          = 0.5
	defaultWeakTop         = 10
	defaultWeakFactor      = 2.0
	defaultWeakWindow      = 20
	defaultReviewSize      = 10
	defaultCurveWindow     = 5
	defaultTopMisses       = 10
	defaultRPM             = 60
)

var (
	rootDBPath     string
	rootConfigPath string
	rootDebug      bool

	practiceVoice        string
	practiceFeedbackMs   int
	practiceShowAnswer   bool
	practiceAutoplay     bool
	practiceEffects      bool
	practiceVolume       float64
	practiceNoAudio      bool
	practiceFocusWeak    bool
	practiceWeakTop      int
	practiceWeakFactor   float64
	practiceWeakWindow   int
	practiceReviewSize   int
	practiceProvider     string
	practiceRPM          int
	practiceDiskCache    bool
	practiceRemoteURL    string
	recordsChapter       string
	recordsSince         string
	recordsLast          int
	recordsCurveWindow   int
	recordsTop           int
	recordsMissWindow    int
	recordsPlain         bool
	vocabMastered        bool
	vocabPlain           bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dictype [chapter]",
		Short:         "TUI dictation trainer",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&rootDBPath, "db", "", "database path (default: XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "config path (default: XDG config dir)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "verbose logging")

	rootCmd.Flags().StringVar(&practiceVoice, "voice", tts.DefaultVoice, "speech voice (Wendy, William, Olivia, Harry)")
	rootCmd.Flags().IntVar(&practiceFeedbackMs, "feedback-delay-ms", defaultFeedbackDelayMs, "pause after a correct sentence")
	rootCmd.Flags().BoolVar(&practiceShowAnswer, "show-answer", false, "always show the expected sentence")
	rootCmd.Flags().BoolVar(&practiceAutoplay, "autoplay", true, "play each sentence when it appears")
	rootCmd.Flags().BoolVar(&practiceEffects, "effects", true, "play sound effects")
	rootCmd.Flags().Float64Var(&practiceVolume, "volume", defaultVolume, "sound effect volume (0-1)")
	rootCmd.Flags().BoolVar(&practiceNoAudio, "no-audio", false, "disable all audio output")
	rootCmd.Flags().BoolVar(&practiceFocusWeak, "focus-weak", false, "practice a review of often missed sentences")
	rootCmd.Flags().IntVar(&practiceWeakTop, "weak-top", defaultWeakTop, "number of missed sentences to focus on")
	rootCmd.Flags().Float64Var(&practiceWeakFactor, "weak-factor", defaultWeakFactor, "weight factor for missed sentences")
	rootCmd.Flags().IntVar(&practiceWeakWindow, "weak-window", defaultWeakWindow, "number of recent records to compute misses")
	rootCmd.Flags().IntVar(&practiceReviewSize, "review-size", defaultReviewSize, "sentences per review chapter")
	rootCmd.Flags().StringVar(&practiceProvider, "tts", "", "speech provider (aliyun, backend, none; default: auto)")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newChaptersCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newRecordsCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newVocabCmd())

	return rootCmd
}

func configPath() string {
	if rootConfigPath != "" {
		return rootConfigPath
	}
	return config.DefaultConfigPath()
}

func dbPath() string {
	if rootDBPath != "" {
		return rootDBPath
	}
	return config.DefaultDBPath()
}

// loadSettings reads the config file and environment.
func loadSettings() (config.FileConfig, config.Env, error) {
	fileCfg, err := config.LoadConfig(configPath())
	if err != nil {
		return config.FileConfig{}, config.Env{}, fmt.Errorf("failed to load config: %w", err)
	}
	env, err := config.LoadEnv()
	if err != nil {
		return config.FileConfig{}, config.Env{}, err
	}
	if env.Debug {
		rootDebug = true
	}
	return fileCfg, env, nil
}

func newLogger(w io.Writer) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{ReportTimestamp: true})
	if rootDebug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// openLogFile returns a logger writing to the state dir while the TUI owns
// the terminal.
func openLogFile() (*log.Logger, func(), error) {
	path := config.DefaultLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	closeFn := func() {
		// Best-effort close.
		_ = f.Close()
	}
	return newLogger(f), closeFn, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

// applyTTSConfig merges speech and backend settings that have no practice
// flag of their own.
func applyTTSConfig(cmd *cobra.Command, fileCfg config.FileConfig, env config.Env) {
	applyStringConfig(cmd, "tts", &practiceProvider, fileCfg.TTS.Provider)
	practiceRPM = defaultRPM
	if fileCfg.TTS.RequestsPerMinute != nil {
		practiceRPM = *fileCfg.TTS.RequestsPerMinute
	}
	practiceDiskCache = true
	if fileCfg.TTS.DiskCache != nil {
		practiceDiskCache = *fileCfg.TTS.DiskCache
	}
	practiceRemoteURL = resolveRemoteURL(fileCfg, env)
}

// resolveRemoteURL prefers the environment over the config file.
func resolveRemoteURL(fileCfg config.FileConfig, env config.Env) string {
	if env.RemoteURL != "" {
		return env.RemoteURL
	}
	if fileCfg.Remote.URL != nil {
		return *fileCfg.Remote.URL
	}
	return ""
}

func validatePractice() error {
	if !tts.ValidVoice(practiceVoice) {
		return fmt.Errorf("--voice must be one of %s", strings.Join(voiceNames(), ", "))
	}
	if practiceFeedbackMs < 0 {
		return fmt.Errorf("--feedback-delay-ms must be >= 0")
	}
	if practiceVolume < 0 || practiceVolume > 1 {
		return fmt.Errorf("--volume must be between 0 and 1")
	}
	if practiceWeakTop < 0 {
		return fmt.Errorf("--weak-top must be >= 0")
	}
	if practiceWeakFactor < 0 {
		return fmt.Errorf("--weak-factor must be >= 0")
	}
	if practiceWeakWindow < 0 {
		return fmt.Errorf("--weak-window must be >= 0")
	}
	if practiceReviewSize <= 0 {
		return fmt.Errorf("--review-size must be > 0")
	}
	switch practiceProvider {
	case "", providerAliyun, providerBackend, providerNone:
	default:
		return fmt.Errorf("--tts must be aliyun, backend or none")
	}
	if practiceRPM < 0 {
		return fmt.Errorf("tts requests-per-minute must be >= 0")
	}
	return nil
}

func voiceNames() []string {
	names := make([]string, 0, len(tts.Voices))
	for _, v := range tts.Voices {
		names = append(names, v.Name)
	}
	return names
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
