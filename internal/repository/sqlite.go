package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/streamer/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Hooks write concurrently with readers.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			user_id TEXT,
			account_id TEXT,
			status TEXT NOT NULL,
			interrupt TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_thread ON runs(thread_id, started_at)`,
		// No foreign key on run_id: tool hooks may land before the run row.
		`CREATE TABLE IF NOT EXISTS tool_activities (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			label TEXT,
			agent TEXT,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			UNIQUE (run_id, tool_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_activities_run ON tool_activities(run_id, started_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Columns added after the first release.
	if err := s.ensureColumn("runs", "resumed_by", "ALTER TABLE runs ADD COLUMN resumed_by TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Run operations

// CreateRun creates a run unless it already exists.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, thread_id, user_id, account_id, status, started_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO NOTHING`,
		run.RunID, run.ThreadID, run.UserID, run.AccountID, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

const runColumns = `run_id, thread_id, user_id, account_id, status, interrupt, resumed_by, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var userID, accountID, interrupt, resumedBy sql.NullString
	var endedAt sql.NullTime
	if err := row.Scan(&run.RunID, &run.ThreadID, &userID, &accountID, &run.Status, &interrupt, &resumedBy, &run.StartedAt, &endedAt); err != nil {
		return nil, err
	}
	run.UserID = userID.String
	run.AccountID = accountID.String
	run.ResumedBy = resumedBy.String
	if interrupt.Valid && interrupt.String != "" {
		run.Interrupt = json.RawMessage(interrupt.String)
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return &run, nil
}

// GetRun retrieves a run by ID. It returns nil when the run does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRunsByThread returns the runs of a thread, oldest first.
func (s *SQLiteStore) ListRunsByThread(ctx context.Context, threadID string) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE thread_id = ? ORDER BY started_at ASC, rowid ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SetRunInterrupt stores the pending interrupt and marks the run interrupted.
func (s *SQLiteStore) SetRunInterrupt(ctx context.Context, runID string, payload json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, interrupt = ? WHERE run_id = ? AND status NOT IN (?, ?)`,
		domain.RunStatusInterrupted, string(payload), runID, domain.RunStatusComplete, domain.RunStatusError)
	if err != nil {
		return fmt.Errorf("failed to set run interrupt: %w", err)
	}
	return nil
}

// FinalizeRun records the end of a run and returns the stored status. A run
// that ended normally while interrupted stays interrupted so it can be
// resumed. Terminal runs are left untouched.
func (s *SQLiteStore) FinalizeRun(ctx context.Context, runID string, status domain.RunStatus) (domain.RunStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current domain.RunStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, runID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read run status: %w", err)
	}

	if current.IsTerminal() {
		return current, tx.Commit()
	}

	final := status
	if current == domain.RunStatusInterrupted && status == domain.RunStatusComplete {
		final = domain.RunStatusInterrupted
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status = ?, ended_at = ? WHERE run_id = ?`, final, time.Now(), runID); err != nil {
		return "", fmt.Errorf("failed to finalize run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return final, nil
}

// MarkRunResumed closes an interrupted run that was continued by another run.
func (s *SQLiteStore) MarkRunResumed(ctx context.Context, runID, resumedBy string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, resumed_by = ? WHERE run_id = ? AND status = ?`,
		domain.RunStatusComplete, resumedBy, runID, domain.RunStatusInterrupted)
	if err != nil {
		return fmt.Errorf("failed to mark run resumed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestInterruptedRun returns the most recent interrupted run of a thread,
// or nil when there is none.
func (s *SQLiteStore) LatestInterruptedRun(ctx context.Context, threadID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE thread_id = ? AND status = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		threadID, domain.RunStatusInterrupted)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interrupted run: %w", err)
	}
	return run, nil
}

// Tool activity operations

// StartToolActivity inserts a running activity unless one already exists for
// (run_id, tool_name). It reports whether a row was inserted.
func (s *SQLiteStore) StartToolActivity(ctx context.Context, a *domain.ToolActivity) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_activities (id, run_id, tool_name, label, agent, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, tool_name) DO NOTHING`,
		a.ID, a.RunID, a.ToolName, a.Label, a.Agent, domain.ActivityStatusRunning, a.StartedAt)
	if err != nil {
		return false, fmt.Errorf("failed to start tool activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// CompleteToolActivity marks the activity complete, inserting a completed row
// when the start was never recorded.
func (s *SQLiteStore) CompleteToolActivity(ctx context.Context, a *domain.ToolActivity) error {
	completedAt := a.StartedAt
	if a.CompletedAt != nil {
		completedAt = *a.CompletedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_activities (id, run_id, tool_name, label, agent, status, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, tool_name) DO UPDATE SET status = excluded.status, completed_at = excluded.completed_at`,
		a.ID, a.RunID, a.ToolName, a.Label, a.Agent, domain.ActivityStatusComplete, a.StartedAt, completedAt)
	if err != nil {
		return fmt.Errorf("failed to complete tool activity: %w", err)
	}
	return nil
}

const activityColumns = `a.id, a.run_id, a.tool_name, a.label, a.agent, a.status, a.started_at, a.completed_at`

// ListToolActivitiesByRun returns a run's activities in insertion order.
func (s *SQLiteStore) ListToolActivitiesByRun(ctx context.Context, runID string) ([]domain.ToolActivity, error) {
	return s.queryActivities(ctx,
		`SELECT `+activityColumns+` FROM tool_activities a WHERE a.run_id = ? ORDER BY a.rowid ASC`, runID)
}

// ListToolActivitiesByThread returns the activities of every run of a thread,
// grouped by run start time.
func (s *SQLiteStore) ListToolActivitiesByThread(ctx context.Context, threadID string) ([]domain.ToolActivity, error) {
	return s.queryActivities(ctx,
		`SELECT `+activityColumns+` FROM tool_activities a
		 JOIN runs r ON r.run_id = a.run_id
		 WHERE r.thread_id = ?
		 ORDER BY r.started_at ASC, r.rowid ASC, a.rowid ASC`, threadID)
}

func (s *SQLiteStore) queryActivities(ctx context.Context, query string, args ...any) ([]domain.ToolActivity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool activities: %w", err)
	}
	defer rows.Close()

	activities := []domain.ToolActivity{}
	for rows.Next() {
		var a domain.ToolActivity
		var label, agent sql.NullString
		var completedAt sql.NullInt64
		if err := rows.Scan(&a.ID, &a.RunID, &a.ToolName, &label, &agent, &a.Status, &a.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool activity: %w", err)
		}
		a.Label = label.String
		a.Agent = agent.String
		if completedAt.Valid {
			v := completedAt.Int64
			a.CompletedAt = &v
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}
