// Package sequencer drives the engine over a novel's chapters in natural
// order, one at a time, so each chapter sees the glossary left by the one
// before it.
package sequencer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/chaptran/internal/chapter"
	"github.com/valpere/chaptran/internal/chunker"
	"github.com/valpere/chaptran/internal/engine"
	"github.com/valpere/chaptran/internal/glossary"
)

// Processor is the per-chapter engine.
type Processor interface {
	Process(ctx context.Context, ch engine.Chapter, store *glossary.Store, strict bool) (*engine.Result, error)
	Translate(ctx context.Context, ch engine.Chapter, snap engine.Snapshot, strict bool) (*engine.Result, error)
}

// Config controls a run.
type Config struct {
	OutDir       string
	GlossaryPath string
	Strict       bool
	// Parallel > 1 selects frozen mode: the glossary is read once and
	// chapters are translated concurrently without growing it.
	Parallel int
	// ContextWords is the number of closing words of a translated chapter
	// passed to the next one. Negative disables continuity context.
	ContextWords int
	// Backend and Model are recorded with the run.
	Backend string
	Model   string
}

// Failure is a chapter that produced no output.
type Failure struct {
	Chapter string
	Err     error
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.Chapter, f.Err) }

// Report summarises a run.
type Report struct {
	RunID         string
	Total         int
	Translated    int
	Skipped       int
	Failed        int
	TermsAccepted int
	Failures      []Failure
	Frozen        bool
	Interrupted   bool
	Duration      time.Duration
}

// Sequencer runs chapters through a Processor.
type Sequencer struct {
	proc     Processor
	cfg      Config
	logger   *zap.Logger
	recorder Recorder
}

func New(proc Processor, cfg Config, logger *zap.Logger, recorder Recorder) *Sequencer {
	if cfg.ContextWords == 0 {
		cfg.ContextWords = chunker.DefaultContextWords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Sequencer{proc: proc, cfg: cfg, logger: logger, recorder: recorder}
}

// Run translates every unit that has no output yet. Chapter failures are
// recorded in the report and never stop the run. When ctx is cancelled the
// run stops before the next chapter, saves the glossary and returns the
// partial report with the context error.
func (s *Sequencer) Run(ctx context.Context, units []chapter.Unit, store *glossary.Store) (*Report, error) {
	units = append([]chapter.Unit(nil), units...)
	chapter.Sort(units)

	report := &Report{Total: len(units), Frozen: s.cfg.Parallel > 1}
	start := time.Now()

	runID, err := s.recorder.StartRun(ctx, RunInfo{
		Backend:         s.cfg.Backend,
		Model:           s.cfg.Model,
		Strict:          s.cfg.Strict,
		Parallel:        s.cfg.Parallel,
		Chapters:        len(units),
		GlossaryEntries: store.Len(),
	})
	if err != nil {
		s.logger.Warn("Failed to record run start", zap.Error(err))
	}
	report.RunID = runID

	if report.Frozen {
		err = s.runFrozen(ctx, units, store, report)
	} else {
		err = s.runSequential(ctx, units, store, report)
	}
	report.Duration = time.Since(start)
	report.Interrupted = err != nil

	// The ledger outlives an interrupted run.
	if rerr := s.recorder.FinishRun(context.WithoutCancel(ctx), runID, report); rerr != nil {
		s.logger.Warn("Failed to record run end", zap.Error(rerr))
	}

	s.logger.Info("Run finished",
		zap.Int("total", report.Total),
		zap.Int("translated", report.Translated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("terms_accepted", report.TermsAccepted),
		zap.Duration("duration", report.Duration))
	return report, err
}

func (s *Sequencer) runSequential(ctx context.Context, units []chapter.Unit, store *glossary.Store, report *Report) error {
	var prevContext string
	for i, u := range units {
		if chapter.Exists(s.cfg.OutDir, u) {
			report.Skipped++
			s.logger.Info("Skipping translated chapter", zap.String("chapter", u.Name))
			s.record(ctx, report.RunID, ChapterRecord{Chapter: u.Name, Status: StatusSkipped})
			prevContext = s.contextFromOutput(u)
			continue
		}

		if err := ctx.Err(); err != nil {
			s.logger.Warn("Interrupted, stopping before next chapter",
				zap.String("chapter", u.Name),
				zap.Int("remaining", len(units)-i))
			s.saveGlossary(store)
			return err
		}

		text, err := chapter.Read(u)
		if err != nil {
			s.fail(ctx, report, u.Name, err, nil)
			prevContext = ""
			continue
		}

		s.logger.Info("Translating chapter",
			zap.String("chapter", u.Name),
			zap.Int("index", i+1),
			zap.Int("total", len(units)),
			zap.Int("glossary_entries", store.Len()))

		res, err := s.proc.Process(ctx, engine.Chapter{Name: u.Name, Text: text, PreviousContext: prevContext}, store, s.cfg.Strict)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Warn("Interrupted during chapter", zap.String("chapter", u.Name))
				s.saveGlossary(store)
				return ctx.Err()
			}
			s.fail(ctx, report, u.Name, err, nil)
			prevContext = ""
			continue
		}

		if err := chapter.Write(s.cfg.OutDir, u, res.Translation); err != nil {
			s.fail(ctx, report, u.Name, err, res)
			prevContext = ""
			continue
		}

		report.Translated++
		report.TermsAccepted += res.Accepted
		s.logger.Info("Chapter translated",
			zap.String("chapter", u.Name),
			zap.Int("attempts", res.Attempts),
			zap.Int("proposed", res.Proposed),
			zap.Int("accepted", res.Accepted),
			zap.Duration("duration", res.Duration))
		s.record(ctx, report.RunID, translatedRecord(u.Name, res))
		prevContext = s.extractContext(res.Translation)
	}

	s.saveGlossary(store)
	return nil
}

// runFrozen translates chapters concurrently against one glossary snapshot.
func (s *Sequencer) runFrozen(ctx context.Context, units []chapter.Unit, store *glossary.Store, report *Report) error {
	s.logger.Warn("Frozen parallel mode: the glossary will not grow during this run and cross-chapter consistency is lower",
		zap.Int("parallel", s.cfg.Parallel),
		zap.Int("glossary_entries", store.Len()))
	snap := engine.TakeSnapshot(store)

	var (
		mu       sync.Mutex
		failures = make(map[int]Failure)
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Parallel)

	for i, u := range units {
		if chapter.Exists(s.cfg.OutDir, u) {
			report.Skipped++
			s.logger.Info("Skipping translated chapter", zap.String("chapter", u.Name))
			s.record(ctx, report.RunID, ChapterRecord{Chapter: u.Name, Status: StatusSkipped})
			continue
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := s.translateFrozen(ctx, u, snap)
			if err != nil && ctx.Err() != nil {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = Failure{Chapter: u.Name, Err: err}
				s.fail(ctx, report, u.Name, err, res)
				return nil
			}
			report.Translated++
			s.logger.Info("Chapter translated",
				zap.String("chapter", u.Name),
				zap.Int("attempts", res.Attempts),
				zap.Duration("duration", res.Duration))
			s.record(ctx, report.RunID, translatedRecord(u.Name, res))
			return nil
		})
	}
	_ = g.Wait()

	// Report failures in chapter order regardless of completion order.
	idx := make([]int, 0, len(failures))
	for i := range failures {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	report.Failures = report.Failures[:0]
	for _, i := range idx {
		report.Failures = append(report.Failures, failures[i])
	}

	if err := ctx.Err(); err != nil {
		s.logger.Warn("Interrupted, frozen run stopped")
		return err
	}
	return nil
}

func (s *Sequencer) translateFrozen(ctx context.Context, u chapter.Unit, snap engine.Snapshot) (*engine.Result, error) {
	text, err := chapter.Read(u)
	if err != nil {
		return nil, err
	}
	res, err := s.proc.Translate(ctx, engine.Chapter{Name: u.Name, Text: text}, snap, s.cfg.Strict)
	if err != nil {
		return nil, err
	}
	if err := chapter.Write(s.cfg.OutDir, u, res.Translation); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Sequencer) fail(ctx context.Context, report *Report, name string, err error, res *engine.Result) {
	report.Failed++
	report.Failures = append(report.Failures, Failure{Chapter: name, Err: err})
	s.logger.Error("Chapter failed", zap.String("chapter", name), zap.Error(err))

	rec := ChapterRecord{Chapter: name, Status: StatusFailed, Error: err.Error()}
	if res != nil {
		rec.Attempts = res.Attempts
		rec.Duration = res.Duration
	}
	s.record(ctx, report.RunID, rec)
}

func (s *Sequencer) record(ctx context.Context, runID string, rec ChapterRecord) {
	if err := s.recorder.RecordChapter(context.WithoutCancel(ctx), runID, rec); err != nil {
		s.logger.Warn("Failed to record chapter", zap.String("chapter", rec.Chapter), zap.Error(err))
	}
}

func (s *Sequencer) saveGlossary(store *glossary.Store) {
	if s.cfg.GlossaryPath == "" {
		return
	}
	if err := store.Save(s.cfg.GlossaryPath); err != nil {
		s.logger.Warn("Failed to save glossary", zap.String("path", s.cfg.GlossaryPath), zap.Error(err))
		return
	}
	s.logger.Debug("Saved glossary", zap.Int("entries", store.Len()))
}

func (s *Sequencer) extractContext(text string) string {
	if s.cfg.ContextWords < 0 {
		return ""
	}
	return chunker.ExtractContext(text, s.cfg.ContextWords)
}

// contextFromOutput recovers continuity context from an existing
// translation so resumed runs keep it.
func (s *Sequencer) contextFromOutput(u chapter.Unit) string {
	data, err := os.ReadFile(chapter.OutputPath(s.cfg.OutDir, u))
	if err != nil {
		return ""
	}
	return s.extractContext(string(data))
}
