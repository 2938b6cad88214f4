package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
)

// Plan outcome statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusDenied    = "denied"
	StatusPlanError = "plan_error"
	StatusDryRun    = "dry_run"
)

// Entry is one journaled instruction and what became of it.
type Entry struct {
	RunID       string
	ChatID      string
	Instruction string
	Source      string
	Summary     string
	Actions     string
	Truncated   bool
	Status      string
	Error       string
	CreatedAt   time.Time
	FinishedAt  time.Time
}

// Journal records plans and their outcomes in SQLite.
type Journal struct {
	DB  *sql.DB
	now func() time.Time
}

func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			run_id TEXT PRIMARY KEY,
			chat_id TEXT,
			instruction TEXT,
			source TEXT,
			summary TEXT,
			actions TEXT,
			truncated INTEGER DEFAULT 0,
			status TEXT,
			error TEXT DEFAULT '',
			created_at INTEGER,
			finished_at INTEGER DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS plans_chat ON plans (chat_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			created_at INTEGER
		);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Journal{DB: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	return j.DB.Close()
}

// RecordPlan inserts e and returns its run ID, generating one if e has none.
func (j *Journal) RecordPlan(ctx context.Context, e Entry) (string, error) {
	if e.RunID == "" {
		e.RunID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusRunning
	}
	query := `INSERT INTO plans (run_id, chat_id, instruction, source, summary, actions, truncated, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := j.DB.ExecContext(ctx, query, e.RunID, e.ChatID, e.Instruction, e.Source, e.Summary,
		e.Actions, e.Truncated, e.Status, e.Error, j.now().UnixMilli())
	if err != nil {
		return "", err
	}
	return e.RunID, nil
}

// MarkOutcome sets the final status of a run.
func (j *Journal) MarkOutcome(ctx context.Context, runID, status string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	query := `UPDATE plans SET status = ?, error = ?, finished_at = ? WHERE run_id = ?`
	_, err := j.DB.ExecContext(ctx, query, status, msg, j.now().UnixMilli(), runID)
	return err
}

// LastFailure returns the most recent failed or unplannable instruction for
// chatID.
func (j *Journal) LastFailure(ctx context.Context, chatID string) (Entry, bool, error) {
	query := selectEntry + ` WHERE chat_id = ? AND status IN (?, ?) ORDER BY created_at DESC, rowid DESC LIMIT 1`
	rows, err := j.DB.QueryContext(ctx, query, chatID, StatusFailed, StatusPlanError)
	if err != nil {
		return Entry{}, false, err
	}
	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[0], true, nil
}

// Recent returns up to limit entries for chatID, newest first.
func (j *Journal) Recent(ctx context.Context, chatID string, limit int) ([]Entry, error) {
	query := selectEntry + ` WHERE chat_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := j.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Get looks up one run.
func (j *Journal) Get(ctx context.Context, runID string) (Entry, error) {
	rows, err := j.DB.QueryContext(ctx, selectEntry+` WHERE run_id = ?`, runID)
	if err != nil {
		return Entry{}, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, sql.ErrNoRows
	}
	return entries[0], nil
}

func (j *Journal) AddMessage(ctx context.Context, chatID, role, content string) error {
	query := `INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	_, err := j.DB.ExecContext(ctx, query, chatID, role, content, j.now().UnixMilli())
	return err
}

// Message is one line of a chat transcript.
type Message struct {
	Role    string
	Content string
}

// History returns the last limit messages for chatID in chronological order.
func (j *Journal) History(ctx context.Context, chatID string, limit int) ([]Message, error) {
	query := `SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := j.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, k := 0, len(history)-1; i < k; i, k = i+1, k-1 {
		history[i], history[k] = history[k], history[i]
	}
	return history, nil
}

const selectEntry = `SELECT run_id, chat_id, instruction, source, summary, actions, truncated, status, error,
	created_at, finished_at FROM plans`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			truncated         int
			created, finished int64
		)
		if err := rows.Scan(&e.RunID, &e.ChatID, &e.Instruction, &e.Source, &e.Summary, &e.Actions,
			&truncated, &e.Status, &e.Error, &created, &finished); err != nil {
			return nil, err
		}
		e.Truncated = truncated != 0
		e.CreatedAt = time.UnixMilli(created)
		if finished > 0 {
			e.FinishedAt = time.UnixMilli(finished)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
