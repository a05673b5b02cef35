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
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/chaptran/internal/config"
	"github.com/valpere/chaptran/internal/store"
)

var (
	historyDBPath   string
	historyRunID    string
	historyLimit    int
	historyAccepted bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the run history of a novel",
	Long: `List and clear the SQLite record of past runs: chapter outcomes and every
glossary term proposed, accepted or rejected.

The database is <novel-dir>/chaptran.db unless history_file or --db says otherwise.`,
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs <novel-dir>",
	Short: "List recorded runs, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tBACKEND\tMODEL\tMODE\tSTATUS\tDONE\tSKIPPED\tFAILED\tTERMS")
		for _, r := range runs {
			mode := "sequential"
			switch {
			case r.Parallel > 1:
				mode = fmt.Sprintf("frozen x%d", r.Parallel)
			case r.Strict:
				mode = "strict"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Backend, r.Model, mode,
				r.Status, r.Translated, r.Skipped, r.Failed, r.TermsAccepted)
		}
		return w.Flush()
	},
}

var historyChaptersCmd = &cobra.Command{
	Use:   "chapters <novel-dir>",
	Short: "List the chapter outcomes of a run (latest by default)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		runID, err := resolveRun(ctx, db)
		if err != nil {
			return err
		}
		if runID == "" {
			fmt.Println("No runs recorded.")
			return nil
		}

		results, err := db.ListChapters(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to list chapters: %w", err)
		}
		fmt.Printf("Run %s\n\n", runID)
		if len(results) == 0 {
			fmt.Println("No chapters recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHAPTER\tSTATUS\tATTEMPTS\tDURATION\tTERMS\tERROR")
		for _, r := range results {
			errText := r.Error
			if len(errText) > 60 {
				errText = errText[:57] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
				r.Chapter, r.Status, r.Attempts, r.Duration.Round(100*time.Millisecond), r.Accepted, errText)
		}
		return w.Flush()
	},
}

var historyTermsCmd = &cobra.Command{
	Use:   "terms <novel-dir>",
	Short: "List glossary decisions",
	Long: `List the glossary terms proposed during translation and what became of them.
Without --run every recorded run is covered.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		terms, err := db.ListTerms(context.Background(), historyRunID, historyAccepted)
		if err != nil {
			return fmt.Errorf("failed to list terms: %w", err)
		}
		if len(terms) == 0 {
			fmt.Println("No terms recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHAPTER\tTERM\tDECISION\tCONFLICT\tDEFINITION")
		for _, t := range terms {
			def := t.Definition
			if len(def) > 50 {
				def = def[:47] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Chapter, t.Term, t.Decision, t.Conflict, def)
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats <novel-dir>",
	Short: "Show run history statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Runs:                %d\n", stats.Runs)
		fmt.Printf("Chapters translated: %d\n", stats.ChaptersTranslated)
		fmt.Printf("Chapters failed:     %d\n", stats.ChaptersFailed)
		fmt.Printf("Terms proposed:      %d\n", stats.TermsProposed)
		fmt.Printf("Terms accepted:      %d\n", stats.TermsAccepted)

		reasons := make([]string, 0, len(stats.Rejections))
		for r := range stats.Rejections {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("  rejected (%s): %d\n", r, stats.Rejections[r])
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <novel-dir> <run-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteRun(context.Background(), args[1]); err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		fmt.Printf("Deleted run: %s\n", args[1])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <novel-dir>",
	Short: "Remove every recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Clear(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Cleared %s from history.\n", plural(int(n), "run"))
		return nil
	},
}

func openHistory(cmd *cobra.Command, novelDir string) (*store.Store, error) {
	path := historyDBPath
	if path == "" {
		cfg, err := config.Read(novelDir, cmd.Flags())
		if err != nil {
			return nil, err
		}
		path = cfg.HistoryPath()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no history at %s: %w", path, err)
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func resolveRun(ctx context.Context, db *store.Store) (string, error) {
	if historyRunID != "" {
		return historyRunID, nil
	}
	id, err := db.LatestRunID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find latest run: %w", err)
	}
	return id, nil
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.PersistentFlags().StringVar(&historyDBPath, "db", "", "Database path (overrides history_file)")

	historyRunsCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	historyChaptersCmd.Flags().StringVar(&historyRunID, "run", "", "Run ID (default latest)")
	historyTermsCmd.Flags().StringVar(&historyRunID, "run", "", "Limit to one run")
	historyTermsCmd.Flags().BoolVar(&historyAccepted, "accepted", false, "Only terms that entered the glossary")

	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historyChaptersCmd)
	historyCmd.AddCommand(historyTermsCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}
