/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/chaptran/internal/bootstrap"
	"github.com/valpere/chaptran/internal/chapter"
	"github.com/valpere/chaptran/internal/config"
	"github.com/valpere/chaptran/internal/detector"
	"github.com/valpere/chaptran/internal/engine"
	"github.com/valpere/chaptran/internal/glossary"
	"github.com/valpere/chaptran/internal/sequencer"
	"github.com/valpere/chaptran/internal/store"
	"github.com/valpere/chaptran/internal/validator"
)

var noHistory bool

var translateCmd = &cobra.Command{
	Use:   "translate <novel-dir>",
	Short: "Translate every chapter of a novel",
	Long: `Translate the chapters in <novel-dir>/raw into <novel-dir>/translated, in natural
order, feeding a glossary of names and terms into every request.

Chapters whose output already exists are skipped, so an interrupted run resumes
where it stopped. An empty glossary is seeded from the first chapters and shown
for review before translation starts.

Settings are read from flags, CHAPTRAN_* variables, <novel-dir>/config.json and
.env files, in that order.

Strict mode (--strict) admits at most one new term per chapter.
Frozen mode (--parallel N, N > 1) translates concurrently with the glossary
read once and never grown.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	fs := translateCmd.Flags()
	addBackendFlags(fs)
	addGlossaryFlags(fs)
	fs.String("translated-folder", "translated", "Output folder, relative to the novel directory")
	fs.String("base-prompt", "", "Translation instructions (default built in)")
	fs.Bool("strict", false, "Admit at most one new glossary term per chapter")
	fs.Int("parallel", 1, "Concurrent chapters; above 1 the glossary is frozen")
	fs.Bool("validate-output", false, "Reject translations not detected as English")
	fs.Int("context-words", 60, "Closing words of the previous chapter passed as context (negative disables)")
	fs.BoolVar(&noHistory, "no-history", false, "Do not record the run in the history database")

	rootCmd.AddCommand(translateCmd)
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(args[0], cmd.Flags())
	if err != nil {
		return err
	}
	if noHistory {
		cfg.History = false
	}

	units, err := chapter.List(cfg.RawDir())
	if err != nil {
		return &config.Error{Code: config.CodeMissingSource, Key: "raw_folder", Err: err}
	}
	if len(units) == 0 {
		return &config.Error{Code: config.CodeMissingSource, Key: "raw_folder", Err: fmt.Errorf("no chapters in %s", cfg.RawDir())}
	}
	logger.Info("Found chapters", zap.Int("count", len(units)), zap.String("dir", cfg.RawDir()))

	var det *detector.Detector
	if cfg.AutoDetect() || cfg.ValidateOutput {
		det = detector.New()
	}
	sourceLang := sourceLanguage(cfg, units, det, logger)

	backend, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	filter := glossary.NewFilter(cfg.Stopwords...)
	// An unreadable glossary is left alone for the whole session.
	savePath := cfg.GlossaryPath()
	gl, err := glossary.Load(cfg.GlossaryPath(), cfg.StoreOptions()...)
	if err != nil {
		logger.Warn("Continuing without glossary; the file will not be modified", zap.Error(err))
		savePath = ""
	}
	logger.Info("Loaded glossary",
		zap.String("path", cfg.GlossaryPath()),
		zap.Int("entries", gl.Len()),
		zap.Int("capacity", gl.MaxEntries()))

	bcfg := cfg.Bootstrap(sourceLang)
	if !cfg.SkipReview {
		bcfg.Confirmer = bootstrap.PromptConfirmer{Out: os.Stderr, In: os.Stdin}
	}
	gl, _, err = bootstrap.New(backend, filter, bcfg, logger).Run(ctx, units, gl, cfg.GlossaryPath())
	if err != nil {
		if errors.Is(err, bootstrap.ErrAborted) {
			fmt.Fprintf(os.Stderr, "Aborted. Edit %s and run again.\n", cfg.GlossaryPath())
		}
		return err
	}

	ecfg := engine.Config{
		Instructions: cfg.BasePrompt,
		SourceLang:   sourceLang,
		GlossaryPath: savePath,
		Retry:        cfg.Retry(),
	}
	if cfg.ValidateOutput {
		ecfg.Validator = validator.NewWithDetector(det)
	}
	eng := engine.New(backend, filter, ecfg, logger)

	var recorder sequencer.Recorder
	if cfg.History {
		db, err := store.New(cfg.HistoryPath())
		if err != nil {
			logger.Warn("History disabled", zap.String("path", cfg.HistoryPath()), zap.Error(err))
		} else {
			defer db.Close()
			recorder = db
		}
	}

	seq := sequencer.New(eng, sequencer.Config{
		OutDir:       cfg.TranslatedDir(),
		GlossaryPath: savePath,
		Strict:       cfg.Strict,
		Parallel:     cfg.Parallel,
		ContextWords: cfg.ContextWords,
		Backend:      cfg.Backend,
		Model:        modelName(cfg),
	}, logger, recorder)

	report, err := seq.Run(ctx, units, gl)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted. Progress is saved; run the same command to resume.")
			return nil
		}
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%s failed", plural(report.Failed, "chapter"))
	}
	return nil
}

func printReport(r *sequencer.Report) {
	mode := "sequential"
	if r.Frozen {
		mode = "frozen"
	}
	fmt.Fprintf(os.Stderr, "\nTranslated: %d  Skipped: %d  Failed: %d  of %d (%s, %s)\n",
		r.Translated, r.Skipped, r.Failed, r.Total, mode, r.Duration.Round(time.Second))
	if r.TermsAccepted > 0 {
		fmt.Fprintf(os.Stderr, "Glossary grew by %s\n", plural(r.TermsAccepted, "term"))
	}
	for _, f := range r.Failures {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Chapter, f.Err)
	}
	if r.RunID != "" {
		fmt.Fprintf(os.Stderr, "Run %s recorded; see \"chaptran history chapters\"\n", r.RunID)
	}
}
