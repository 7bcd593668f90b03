package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tuannvm/jira-dashboard/internal/models"
)

// ErrNoSnapshot is returned by LoadSnapshot before any snapshot was saved
var ErrNoSnapshot = errors.New("store: no snapshot saved")

// Snapshot is a committed issue set together with its refresh metadata
type Snapshot struct {
	Issues      []models.Issue
	Total       int
	CycleID     string
	RefreshedAt time.Time
}

// SQLiteStore persists the last committed snapshot in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jira_issues (
			id              TEXT PRIMARY KEY,
			key             TEXT NOT NULL DEFAULT '',
			position        INTEGER NOT NULL,
			summary         TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT '',
			priority        TEXT NOT NULL DEFAULT '',
			issue_type      TEXT NOT NULL DEFAULT '',
			project         TEXT NOT NULL DEFAULT '',
			assignee        TEXT NOT NULL DEFAULT '',
			reporter        TEXT NOT NULL DEFAULT '',
			created         TEXT,
			updated         TEXT,
			resolution_date TEXT,
			time_spent      INTEGER NOT NULL DEFAULT 0,
			time_estimate   INTEGER NOT NULL DEFAULT 0,
			raw             TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS snapshot_meta (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			total        INTEGER NOT NULL,
			cycle_id     TEXT NOT NULL,
			refreshed_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_issues_position ON jira_issues(position);
		CREATE INDEX IF NOT EXISTS idx_issues_key ON jira_issues(key);
	`)
	if err != nil {
		return fmt.Errorf("snapshot store: migrate: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored issue set in a single transaction
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jira_issues`); err != nil {
		return fmt.Errorf("snapshot store: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jira_issues (id, key, position, summary, status, priority, issue_type, project,
			assignee, reporter, created, updated, resolution_date, time_spent, time_estimate, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("snapshot store: prepare: %w", err)
	}
	defer stmt.Close()

	for i, issue := range snap.Issues {
		_, err := stmt.ExecContext(ctx, issue.ID, issue.Key, i, issue.Summary, issue.Status, issue.Priority,
			issue.IssueType, issue.Project, issue.Assignee, issue.Reporter,
			formatTime(issue.Created), formatTime(issue.Updated), formatTime(issue.ResolutionDate),
			issue.TimeSpentSeconds, issue.TimeEstimateSeconds, string(issue.Raw))
		if err != nil {
			return fmt.Errorf("snapshot store: insert %s: %w", issue.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, total, cycle_id, refreshed_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total=excluded.total, cycle_id=excluded.cycle_id, refreshed_at=excluded.refreshed_at
	`, snap.Total, snap.CycleID, snap.RefreshedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("snapshot store: meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot store: commit: %w", err)
	}
	return nil
}

// LoadSnapshot restores the last saved snapshot with issues in their original order
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snap        Snapshot
		refreshedAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT total, cycle_id, refreshed_at FROM snapshot_meta WHERE id = 1`).
		Scan(&snap.Total, &snap.CycleID, &refreshedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("snapshot store: meta: %w", err)
	}
	snap.RefreshedAt, _ = time.Parse(time.RFC3339Nano, refreshedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, summary, status, priority, issue_type, project, assignee, reporter,
			created, updated, resolution_date, time_spent, time_estimate, raw
		FROM jira_issues ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: query: %w", err)
	}
	defer rows.Close()

	snap.Issues = []models.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("snapshot store: scan: %w", err)
		}
		snap.Issues = append(snap.Issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot store: rows: %w", err)
	}
	return &snap, nil
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanIssue(rows *sql.Rows) (models.Issue, error) {
	var (
		issue                      models.Issue
		created, updated, resolved sql.NullString
		raw                        string
	)
	err := rows.Scan(&issue.ID, &issue.Key, &issue.Summary, &issue.Status, &issue.Priority,
		&issue.IssueType, &issue.Project, &issue.Assignee, &issue.Reporter,
		&created, &updated, &resolved, &issue.TimeSpentSeconds, &issue.TimeEstimateSeconds, &raw)
	if err != nil {
		return issue, err
	}
	issue.Created = parseTime(created)
	issue.Updated = parseTime(updated)
	issue.ResolutionDate = parseTime(resolved)
	if raw != "" {
		issue.Raw = []byte(raw)
	}
	return issue, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(time.RFC3339Nano)
	return &v
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
