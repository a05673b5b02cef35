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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/chaptran/internal/bootstrap"
	"github.com/valpere/chaptran/internal/chapter"
	"github.com/valpere/chaptran/internal/config"
	"github.com/valpere/chaptran/internal/detector"
	"github.com/valpere/chaptran/internal/glossary"
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the glossary of a novel",
	Long: `List, add, delete and clean the entries of a novel's glossary file.

The glossary is a plain text file with one "term: definition" line per entry.
It keeps names, places and invented words translated the same way in every
chapter, and may be edited by hand between runs.`,
}

var glossaryListCmd = &cobra.Command{
	Use:   "list <novel-dir>",
	Short: "List the glossary entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, gl, err := openGlossary(cmd, args[0])
		if err != nil {
			return err
		}

		if gl.Len() == 0 {
			fmt.Printf("Glossary %s is empty.\n", cfg.GlossaryPath())
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTERM\tDEFINITION")
		for i, e := range gl.Entries() {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, e.Term, e.Definition)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d/%d entries\n", gl.Len(), gl.MaxEntries())
		return nil
	},
}

var glossaryAddCmd = &cobra.Command{
	Use:   "add <novel-dir> <term> <definition>",
	Short: "Add a glossary entry",
	Long: `Add an entry to the glossary. The term goes through the same checks as terms
proposed during translation: stopwords, duplicates (ignoring case and an origin
bracket) and terms contained in an existing entry are refused.

Example:
  chaptran glossary add ./my-novel "Mira (米拉)" "protagonist, a young mage"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, gl, err := openGlossary(cmd, args[0])
		if err != nil {
			return err
		}

		d := gl.Add(glossary.Candidate{Term: args[1], Definition: args[2]}, glossary.NewFilter(cfg.Stopwords...))
		if !d.Accepted() {
			if d.Conflict != "" {
				return fmt.Errorf("term %q refused (%s of %q)", args[1], d.Reason, d.Conflict)
			}
			return fmt.Errorf("term %q refused (%s)", args[1], d.Reason)
		}
		if err := gl.Save(cfg.GlossaryPath()); err != nil {
			return err
		}
		fmt.Printf("Added: %s: %s\n", args[1], args[2])
		return nil
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <novel-dir> <term>",
	Short: "Delete a glossary entry",
	Long: `Delete the entry for a term. Matching ignores case and an origin bracket,
so "mira" deletes "Mira (米拉)".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, gl, err := openGlossary(cmd, args[0])
		if err != nil {
			return err
		}

		if !gl.Remove(args[1]) {
			return fmt.Errorf("term %q not found in %s", args[1], cfg.GlossaryPath())
		}
		if err := gl.Save(cfg.GlossaryPath()); err != nil {
			return err
		}
		fmt.Printf("Deleted glossary entry: %s\n", args[1])
		return nil
	},
}

var (
	cleanDryRun   bool
	cleanNoBackup bool
	cleanYes      bool
)

var glossaryCleanCmd = &cobra.Command{
	Use:   "clean <novel-dir>",
	Short: "Remove generic entries from the glossary",
	Long: `Remove entries that are stopwords or whose definition reads as generic
("common noun", "minor character", ...). Entries carrying an origin-language
bracket are always kept. The previous file is kept as <glossary>.backup.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, gl, err := openGlossary(cmd, args[0])
		if err != nil {
			return err
		}

		before := gl.Len()
		removed := glossary.NewFilter(cfg.Stopwords...).Clean(gl)
		if len(removed) == 0 {
			fmt.Println("Glossary is already clean.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TERM\tDEFINITION\tREASON")
		for _, r := range removed {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Entry.Term, r.Entry.Definition, r.Reason)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%s of %d to remove, %d kept\n", plural(len(removed), "entry"), before, gl.Len())

		if cleanDryRun {
			fmt.Println("Dry run, nothing changed.")
			return nil
		}
		if !cleanYes && !confirm(os.Stdout, os.Stdin, "Remove these entries?") {
			fmt.Println("Nothing changed.")
			return nil
		}

		if !cleanNoBackup {
			backup := cfg.GlossaryPath() + ".backup"
			if err := copyFile(cfg.GlossaryPath(), backup); err != nil {
				return fmt.Errorf("failed to back up glossary: %w", err)
			}
			fmt.Printf("Backup: %s\n", backup)
		}
		if err := gl.Save(cfg.GlossaryPath()); err != nil {
			return err
		}
		fmt.Printf("Removed %s.\n", plural(len(removed), "entry"))
		return nil
	},
}

var glossaryInitCmd = &cobra.Command{
	Use:   "init <novel-dir>",
	Short: "Seed an empty glossary from the first chapters",
	Long: `Ask the backend for the recurring names and terms of the first chapters and
write them to the glossary, without translating anything. Does nothing when
the glossary already has entries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(args[0], cmd.Flags())
		if err != nil {
			return err
		}
		gl, err := glossary.Load(cfg.GlossaryPath(), cfg.StoreOptions()...)
		if err != nil {
			return err
		}
		if gl.Len() > 0 {
			fmt.Printf("Glossary %s already has %s; nothing to do.\n", cfg.GlossaryPath(), plural(gl.Len(), "entry"))
			return nil
		}
		if cfg.InitChapters == 0 {
			return &config.Error{Code: config.CodeInvalid, Key: "glossary_init_chapters", Err: errors.New("must be positive for init")}
		}

		units, err := chapter.List(cfg.RawDir())
		if err != nil {
			return &config.Error{Code: config.CodeMissingSource, Key: "raw_folder", Err: err}
		}
		if len(units) == 0 {
			return &config.Error{Code: config.CodeMissingSource, Key: "raw_folder", Err: fmt.Errorf("no chapters in %s", cfg.RawDir())}
		}

		var det *detector.Detector
		if cfg.AutoDetect() {
			det = detector.New()
		}
		backend, err := buildBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}

		bcfg := cfg.Bootstrap(sourceLanguage(cfg, units, det, logger))
		if !cfg.SkipReview {
			bcfg.Confirmer = bootstrap.PromptConfirmer{Out: os.Stderr, In: os.Stdin}
		}
		gl, res, err := bootstrap.New(backend, glossary.NewFilter(cfg.Stopwords...), bcfg, logger).Run(ctx, units, gl, cfg.GlossaryPath())
		if err != nil {
			return err
		}
		logger.Debug("Bootstrap finished", zap.Int("sampled", res.Sampled), zap.Int("candidates", len(res.Candidates)))
		fmt.Printf("Glossary %s seeded with %s from %s.\n", cfg.GlossaryPath(), plural(gl.Len(), "entry"), plural(res.Sampled, "chapter"))
		return nil
	},
}

// openGlossary resolves the glossary location of a novel and loads it.
func openGlossary(cmd *cobra.Command, novelDir string) (*config.Config, *glossary.Store, error) {
	cfg, err := config.Read(novelDir, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	gl, err := glossary.Load(cfg.GlossaryPath(), cfg.StoreOptions()...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gl, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	addGlossaryFlags(glossaryCmd.PersistentFlags())

	glossaryCleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "Show what would be removed without changing the file")
	glossaryCleanCmd.Flags().BoolVar(&cleanNoBackup, "no-backup", false, "Do not keep a .backup copy")
	glossaryCleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "Do not ask for confirmation")

	addBackendFlags(glossaryInitCmd.Flags())

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
	glossaryCmd.AddCommand(glossaryCleanCmd)
	glossaryCmd.AddCommand(glossaryInitCmd)
}
