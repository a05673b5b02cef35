// Package store keeps the run history of a novel in SQLite: one row per run,
// per chapter outcome and per glossary decision.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/valpere/chaptran/internal/glossary"
	"github.com/valpere/chaptran/internal/sequencer"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers from frozen-mode workers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		backend TEXT NOT NULL,
		model TEXT NOT NULL,
		strict BOOLEAN DEFAULT FALSE,
		parallel INTEGER DEFAULT 0,
		chapters INTEGER DEFAULT 0,
		glossary_entries INTEGER DEFAULT 0,
		status TEXT DEFAULT 'running',
		translated INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		terms_accepted INTEGER DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chapter_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		chapter TEXT NOT NULL,
		status TEXT NOT NULL,
		model TEXT,
		attempts INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		accepted INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- term_decisions keeps every proposed term and what the filter did with it
	CREATE TABLE IF NOT EXISTS term_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		chapter TEXT NOT NULL,
		term TEXT NOT NULL,
		definition TEXT,
		decision TEXT NOT NULL,
		conflict TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON chapter_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_chapter ON chapter_results(chapter);
	CREATE INDEX IF NOT EXISTS idx_decisions_run ON term_decisions(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StartRun opens a run and returns its ID.
func (s *Store) StartRun(ctx context.Context, info sequencer.RunInfo) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, backend, model, strict, parallel, chapters, glossary_entries, started_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, info.Backend, info.Model, info.Strict, info.Parallel, info.Chapters, info.GlossaryEntries, s.now())
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordChapter stores a chapter outcome together with its term decisions.
func (s *Store) RecordChapter(ctx context.Context, runID string, rec sequencer.ChapterRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chapter_results (run_id, chapter, status, model, attempts, duration_ms, accepted, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Chapter, rec.Status, rec.Model, rec.Attempts, rec.Duration.Milliseconds(), rec.Accepted, rec.Error, now); err != nil {
		return err
	}

	for _, d := range rec.Decisions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO term_decisions (run_id, chapter, term, definition, decision, conflict, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, rec.Chapter, d.Candidate.Term, d.Candidate.Definition, d.Reason.String(), d.Conflict, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FinishRun closes a run with its final counts.
func (s *Store) FinishRun(ctx context.Context, runID string, report *sequencer.Report) error {
	status := "completed"
	if report.Interrupted {
		status = "interrupted"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, translated = ?, skipped = ?, failed = ?, terms_accepted = ?, finished_at = ? WHERE id = ?`,
		status, report.Translated, report.Skipped, report.Failed, report.TermsAccepted, s.now(), runID)
	return err
}

// Run is a row from the runs table.
type Run struct {
	ID              string
	Backend         string
	Model           string
	Strict          bool
	Parallel        int
	Chapters        int
	GlossaryEntries int
	Status          string
	Translated      int
	Skipped         int
	Failed          int
	TermsAccepted   int
	StartedAt       time.Time
	FinishedAt      sql.NullTime
}

// ListRuns returns the most recent runs first. limit ≤ 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, backend, model, strict, parallel, chapters, glossary_entries, status, translated, skipped, failed, terms_accepted, started_at, finished_at FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Backend, &r.Model, &r.Strict, &r.Parallel, &r.Chapters, &r.GlossaryEntries,
			&r.Status, &r.Translated, &r.Skipped, &r.Failed, &r.TermsAccepted, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRunID returns the ID of the most recent run, or "" when there is none.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// ChapterResult is a row from the chapter_results table.
type ChapterResult struct {
	RunID     string
	Chapter   string
	Status    string
	Model     string
	Attempts  int
	Duration  time.Duration
	Accepted  int
	Error     string
	CreatedAt time.Time
}

// ListChapters returns the chapter outcomes of a run in recording order.
func (s *Store) ListChapters(ctx context.Context, runID string) ([]ChapterResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, chapter, status, COALESCE(model, ''), attempts, duration_ms, accepted, COALESCE(error, ''), created_at FROM chapter_results WHERE run_id = ? ORDER BY id`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChapterResult
	for rows.Next() {
		var r ChapterResult
		var ms int64
		if err := rows.Scan(&r.RunID, &r.Chapter, &r.Status, &r.Model, &r.Attempts, &ms, &r.Accepted, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}

// TermDecision is a row from the term_decisions table.
type TermDecision struct {
	RunID      string
	Chapter    string
	Term       string
	Definition string
	Decision   string
	Conflict   string
	CreatedAt  time.Time
}

// ListTerms returns term decisions in recording order. An empty runID covers
// every run; acceptedOnly limits the result to terms that entered the
// glossary.
func (s *Store) ListTerms(ctx context.Context, runID string, acceptedOnly bool) ([]TermDecision, error) {
	query := `SELECT run_id, chapter, term, COALESCE(definition, ''), decision, COALESCE(conflict, ''), created_at FROM term_decisions`
	var (
		where []string
		args  []interface{}
	)
	if runID != "" {
		where = append(where, `run_id = ?`)
		args = append(args, runID)
	}
	if acceptedOnly {
		where = append(where, `decision = ?`)
		args = append(args, glossary.Accepted.String())
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TermDecision
	for rows.Next() {
		var d TermDecision
		if err := rows.Scan(&d.RunID, &d.Chapter, &d.Term, &d.Definition, &d.Decision, &d.Conflict, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats summarises the whole ledger.
type Stats struct {
	Runs               int
	ChaptersTranslated int
	ChaptersFailed     int
	TermsProposed      int
	TermsAccepted      int
	// Rejections counts rejected terms by reason.
	Rejections map[string]int
}

// Stats returns summary statistics for the ledger.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Rejections: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM runs),
			(SELECT COUNT(*) FROM chapter_results WHERE status = ?),
			(SELECT COUNT(*) FROM chapter_results WHERE status = ?),
			(SELECT COUNT(*) FROM term_decisions),
			(SELECT COUNT(*) FROM term_decisions WHERE decision = ?)`,
		sequencer.StatusTranslated, sequencer.StatusFailed, glossary.Accepted.String()).Scan(
		&stats.Runs,
		&stats.ChaptersTranslated,
		&stats.ChaptersFailed,
		&stats.TermsProposed,
		&stats.TermsAccepted,
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT decision, COUNT(*) FROM term_decisions WHERE decision != ? GROUP BY decision`,
		glossary.Accepted.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		stats.Rejections[reason] = n
	}
	return stats, rows.Err()
}

// DeleteRun permanently removes a run and its records.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM term_decisions WHERE run_id = ?`,
		`DELETE FROM chapter_results WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, runID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Clear removes every run and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM term_decisions`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chapter_results`); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
