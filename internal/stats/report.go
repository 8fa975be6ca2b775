package stats

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/verte-zerg/dictype/internal/model"
	"github.com/verte-zerg/dictype/internal/store"
)

// ReportConfig selects what a report covers.
type ReportConfig struct {
	Filter      model.RecordFilter
	MissWindow  int
	TopMisses   int
	CurveWindow int
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Records  []model.Record
	Misses   []model.SentenceMiss
	Chapters []model.ChapterSummary
	Progress map[string]model.Progress
	Names    map[string]string
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, st *store.Store, cfg ReportConfig) (Report, error) {
	records, err := st.ListRecords(ctx, cfg.Filter)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list records: %w", err)
	}
	misses, err := st.MissedSentences(ctx, cfg.MissWindow, cfg.Filter.ChapterID)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load missed sentences: %w", err)
	}
	chapters, err := st.ListChapters(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list chapters: %w", err)
	}
	progress, err := st.ListProgress(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list progress: %w", err)
	}

	report := Report{
		Records:  records,
		Misses:   misses,
		Chapters: chapters,
		Progress: make(map[string]model.Progress, len(progress)),
		Names:    make(map[string]string, len(chapters)),
	}
	for _, p := range progress {
		report.Progress[p.ChapterID] = p
	}
	for _, ch := range chapters {
		report.Names[ch.ID] = ch.Name
	}
	return report, nil
}

// Render writes the full plain-text report.
func (r Report) Render(w io.Writer, cfg ReportConfig, width int, now time.Time) error {
	if err := RenderSummary(w, r.Records, now); err != nil {
		return err
	}
	if err := RenderCurves(w, r.Records, cfg.CurveWindow, width); err != nil {
		return err
	}
	if err := RenderRecordTable(w, r.Records, r.Names, now); err != nil {
		return err
	}
	if err := RenderMissTable(w, r.Misses, cfg.TopMisses); err != nil {
		return err
	}
	return RenderProgressTable(w, r.Chapters, r.Progress)
}
