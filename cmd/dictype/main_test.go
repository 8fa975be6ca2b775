package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/verte-zerg/dictype/internal/config"
	"github.com/verte-zerg/dictype/internal/model"
)

func TestApplyConfigKeepsChangedFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Set("voice", "Harry"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	voice := "Olivia"
	delay := 900
	applyStringConfig(cmd, "voice", &practiceVoice, &voice)
	applyIntConfig(cmd, "feedback-delay-ms", &practiceFeedbackMs, &delay)
	if practiceVoice != "Harry" {
		t.Fatalf("expected flag value to win, got %q", practiceVoice)
	}
	if practiceFeedbackMs != 900 {
		t.Fatalf("expected config value, got %d", practiceFeedbackMs)
	}
	applyIntConfig(cmd, "feedback-delay-ms", &practiceFeedbackMs, nil)
	if practiceFeedbackMs != 900 {
		t.Fatalf("nil config value must not override, got %d", practiceFeedbackMs)
	}
}

func TestResolveRemoteURL(t *testing.T) {
	fileURL := "https://file.example"
	fileCfg := config.FileConfig{Remote: config.RemoteConfig{URL: &fileURL}}
	if got := resolveRemoteURL(fileCfg, config.Env{}); got != fileURL {
		t.Fatalf("expected file url, got %q", got)
	}
	if got := resolveRemoteURL(fileCfg, config.Env{RemoteURL: "https://env.example"}); got != "https://env.example" {
		t.Fatalf("expected env url, got %q", got)
	}
	if got := resolveRemoteURL(config.FileConfig{}, config.Env{}); got != "" {
		t.Fatalf("expected empty url, got %q", got)
	}
}

func TestValidatePractice(t *testing.T) {
	newRootCmd()
	if err := validatePractice(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	practiceProvider = "espeak"
	err := validatePractice()
	practiceProvider = ""
	if err == nil || !strings.Contains(err.Error(), "--tts") {
		t.Fatalf("expected provider error, got %v", err)
	}
	practiceVolume = 2
	err = validatePractice()
	practiceVolume = defaultVolume
	if err == nil {
		t.Fatalf("expected volume error")
	}
}

func TestPickChapter(t *testing.T) {
	newRootCmd()
	rootDBPath = filepath.Join(t.TempDir(), "dictype.db")
	t.Cleanup(func() { rootDBPath = "" })
	logger := log.New(io.Discard)

	st, err := openStore(logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	ctx := context.Background()

	ch, err := pickChapter(ctx, st, nil, logger)
	if err != nil || ch.ID != "ch1" {
		t.Fatalf("expected first chapter, got %q (%v)", ch.ID, err)
	}
	ch, err = pickChapter(ctx, st, []string{"ch3"}, logger)
	if err != nil || ch.ID != "ch3" {
		t.Fatalf("expected chapter by id, got %q (%v)", ch.ID, err)
	}
	ch, err = pickChapter(ctx, st, []string{"weather"}, logger)
	if err != nil || ch.ID != "ch5" {
		t.Fatalf("expected fuzzy match, got %q (%v)", ch.ID, err)
	}
	if _, err := pickChapter(ctx, st, []string{"zzzz"}, logger); err == nil {
		t.Fatalf("expected no match error")
	}
}

func TestSeedBuiltinIsIdempotent(t *testing.T) {
	newRootCmd()
	rootDBPath = filepath.Join(t.TempDir(), "dictype.db")
	t.Cleanup(func() { rootDBPath = "" })

	for i := 0; i < 2; i++ {
		st, err := openStore(log.New(io.Discard))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		chapters, err := st.ListChapters(context.Background())
		if err != nil {
			t.Fatalf("list chapters: %v", err)
		}
		if len(chapters) != 5 {
			t.Fatalf("expected 5 chapters, got %d", len(chapters))
		}
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	}
}

func TestChaptersCommandFilters(t *testing.T) {
	cmd := newRootCmd()
	dir := t.TempDir()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"chapters", "food", "--db", filepath.Join(dir, "dictype.db"), "--config", filepath.Join(dir, "config.toml")})
	t.Cleanup(func() { rootDBPath, rootConfigPath = "", "" })
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "Food") || strings.Contains(out.String(), "Weather") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestVocabPlainListsEntries(t *testing.T) {
	cmd := newRootCmd()
	dir := t.TempDir()
	dbFile := filepath.Join(dir, "dictype.db")
	rootDBPath = dbFile
	st, err := openStore(log.New(io.Discard))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	for _, e := range []model.VocabEntry{
		{SentenceID: "5-2", ChapterID: "ch5", Content: "It looks like rain.", Status: model.VocabNew},
		{SentenceID: "1-1", ChapterID: "ch1", Content: "Hello there.", Status: model.VocabNew},
		{SentenceID: "2-1", ChapterID: "ch2", Content: "Thank you.", Status: model.VocabMastered},
	} {
		if _, err := st.SaveVocab(ctx, e); err != nil {
			t.Fatalf("save vocab: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"vocab", "rain", "--plain", "--db", dbFile, "--config", filepath.Join(dir, "config.toml")})
	t.Cleanup(func() { rootDBPath, rootConfigPath, vocabPlain = "", "", false })
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "It looks like rain.") || strings.Contains(got, "Hello there.") || strings.Contains(got, "Thank you.") {
		t.Fatalf("unexpected output:\n%s", got)
	}
}
