package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/llmgate/pkg/models"
)

// Tracker records and queries completed inference attempts.
type Tracker interface {
	// Record stores one attempt.
	Record(ctx context.Context, rec models.AttemptRecord) error
	// Recent returns the newest attempts first, optionally filtered by username.
	Recent(ctx context.Context, username string, limit int) ([]models.AttemptRecord, error)
	// QueryByUser returns a user's attempts since a given time.
	QueryByUser(ctx context.Context, username string, since time.Time) ([]models.AttemptRecord, error)
	// Summary returns per-user aggregates, optionally filtered by username.
	Summary(ctx context.Context, username string) ([]models.AttemptSummary, error)
	// Cleanup deletes attempts created before cutoff.
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db        *sql.DB
	retention time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
}

const createTable = `
CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL DEFAULT '',
	username TEXT NOT NULL,
	prompt_length INTEGER NOT NULL,
	response_length INTEGER NOT NULL,
	latency_ms REAL NOT NULL,
	outcome TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_attempts_user_time ON attempts(username, created_at);
`

// New opens the history database at dbPath and runs auto-migration. When
// retentionDays is positive, attempts older than that are deleted hourly.
func New(dbPath string, retentionDays int) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	t := &SQLiteTracker{db: db, done: make(chan struct{})}
	if retentionDays > 0 {
		t.retention = time.Duration(retentionDays) * 24 * time.Hour
		t.wg.Add(1)
		go t.retentionLoop()
	}
	return t, nil
}

// Record stores an attempt.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.AttemptRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO attempts (request_id, username, prompt_length, response_length, latency_ms, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Username, rec.PromptLength, rec.ResponseLength, rec.LatencyMs, string(rec.Outcome), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

const selectAttempts = `SELECT id, request_id, username, prompt_length, response_length, latency_ms, outcome, created_at FROM attempts`

// Recent returns up to limit attempts, newest first.
func (t *SQLiteTracker) Recent(ctx context.Context, username string, limit int) ([]models.AttemptRecord, error) {
	query := selectAttempts
	var args []any
	if username != "" {
		query += ` WHERE username = ?`
		args = append(args, username)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	return scanAttempts(rows)
}

// QueryByUser returns a user's attempts since a given time, newest first.
func (t *SQLiteTracker) QueryByUser(ctx context.Context, username string, since time.Time) ([]models.AttemptRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		selectAttempts+` WHERE username = ? AND created_at >= ? ORDER BY created_at DESC, id DESC`,
		username, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]models.AttemptRecord, error) {
	defer rows.Close()

	var records []models.AttemptRecord
	for rows.Next() {
		var r models.AttemptRecord
		var outcome string
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Username, &r.PromptLength, &r.ResponseLength, &r.LatencyMs, &outcome, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		r.Outcome = models.Outcome(outcome)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns aggregated attempts grouped by username.
func (t *SQLiteTracker) Summary(ctx context.Context, username string) ([]models.AttemptSummary, error) {
	query := `SELECT username, COUNT(*),
		SUM(CASE WHEN outcome != 'failure' THEN 1 ELSE 0 END),
		SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END),
		SUM(CASE WHEN outcome = 'cache_hit' THEN 1 ELSE 0 END),
		AVG(latency_ms)
		FROM attempts`
	var args []any
	if username != "" {
		query += ` WHERE username = ?`
		args = append(args, username)
	}
	query += ` GROUP BY username ORDER BY username`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.AttemptSummary
	for rows.Next() {
		var s models.AttemptSummary
		if err := rows.Scan(&s.Username, &s.RequestCount, &s.Successful, &s.Failed, &s.CacheHits, &s.AverageLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Cleanup deletes attempts created before cutoff.
func (t *SQLiteTracker) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM attempts WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("history cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (t *SQLiteTracker) Close() error {
	close(t.done)
	t.wg.Wait()
	return t.db.Close()
}

func (t *SQLiteTracker) retentionLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			_, _ = t.Cleanup(context.Background(), time.Now().Add(-t.retention))
		}
	}
}
