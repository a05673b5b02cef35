package sequencer

import (
	"context"
	"time"

	"github.com/valpere/chaptran/internal/engine"
	"github.com/valpere/chaptran/internal/glossary"
)

// Chapter outcomes.
const (
	StatusTranslated = "translated"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

// RunInfo describes a run when it starts.
type RunInfo struct {
	Backend         string
	Model           string
	Strict          bool
	Parallel        int
	Chapters        int
	GlossaryEntries int
}

// ChapterRecord is the audit record of one chapter.
type ChapterRecord struct {
	Chapter   string
	Status    string
	Model     string
	Attempts  int
	Duration  time.Duration
	Accepted  int
	Error     string
	Decisions []glossary.Decision
}

// Recorder receives run events. Recorder errors are logged and never fail
// the run.
type Recorder interface {
	StartRun(ctx context.Context, info RunInfo) (string, error)
	RecordChapter(ctx context.Context, runID string, rec ChapterRecord) error
	FinishRun(ctx context.Context, runID string, report *Report) error
}

type nopRecorder struct{}

func (nopRecorder) StartRun(context.Context, RunInfo) (string, error) { return "", nil }

func (nopRecorder) RecordChapter(context.Context, string, ChapterRecord) error { return nil }

func (nopRecorder) FinishRun(context.Context, string, *Report) error { return nil }

func translatedRecord(name string, res *engine.Result) ChapterRecord {
	return ChapterRecord{
		Chapter:   name,
		Status:    StatusTranslated,
		Model:     res.Model,
		Attempts:  res.Attempts,
		Duration:  res.Duration,
		Accepted:  res.Accepted,
		Decisions: res.Decisions,
	}
}
