// Package activity keeps an append-only log of task changes in SQLite.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GoCodeAlone/taskmaster/task"
)

// Kind classifies an entry.
type Kind string

const (
	KindStatusChanged Kind = "status_changed"
	KindAssigned      Kind = "assigned"
	KindCreated       Kind = "created"
	KindUpdated       Kind = "updated"
	KindDeleted       Kind = "deleted"
	KindSprint        Kind = "sprint"
)

const schema = `
CREATE TABLE IF NOT EXISTS activity (
	id          TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	task_id     TEXT NOT NULL DEFAULT '',
	old_status  TEXT NOT NULL DEFAULT '',
	new_status  TEXT NOT NULL DEFAULT '',
	agent       TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS activity_task ON activity(task_id);
`

// Entry is one logged event.
type Entry struct {
	ID        string      `json:"id"`
	Kind      Kind        `json:"kind"`
	TaskID    string      `json:"taskId,omitempty"`
	OldStatus task.Status `json:"oldStatus,omitempty"`
	NewStatus task.Status `json:"newStatus,omitempty"`
	Agent     string      `json:"agent,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	Message   string      `json:"message,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Query narrows List.
type Query struct {
	TaskID string
	Kind   Kind
	Limit  int
}

// Log is the activity sink used by the tracker.
type Log interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, q Query) ([]*Entry, error)
	Close() error
}

// SQLiteLog persists entries in a SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the activity database at dbPath. The caller
// is responsible for calling Close.
func OpenSQLite(dbPath string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

// Close releases the underlying database connection.
func (l *SQLiteLog) Close() error { return l.db.Close() }

// Record stores e, filling ID and CreatedAt when unset.
func (l *SQLiteLog) Record(ctx context.Context, e *Entry) error {
	if e.Kind == "" {
		return fmt.Errorf("activity entry has no kind")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO activity
			(id, seq, kind, task_id, old_status, new_status, agent, user_id, message, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM activity), ?,?,?,?,?,?,?,?)`,
		e.ID, string(e.Kind), e.TaskID, string(e.OldStatus), string(e.NewStatus),
		e.Agent, e.UserID, e.Message, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// List returns entries matching q, newest first.
func (l *SQLiteLog) List(ctx context.Context, q Query) ([]*Entry, error) {
	b := strings.Builder{}
	b.WriteString(`SELECT id, kind, task_id, old_status, new_status, agent, user_id, message, created_at
		FROM activity WHERE 1=1`)
	args := []any{}
	if q.TaskID != "" {
		// a task's history includes its subtasks ("3" matches "3" and "3.x")
		b.WriteString(" AND (task_id=? OR task_id LIKE ?)")
		args = append(args, q.TaskID, q.TaskID+".%")
	}
	if q.Kind != "" {
		b.WriteString(" AND kind=?")
		args = append(args, string(q.Kind))
	}
	b.WriteString(" ORDER BY seq DESC")
	if q.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}

	rows, err := l.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var kind, oldStatus, newStatus string
	err := s.Scan(&e.ID, &kind, &e.TaskID, &oldStatus, &newStatus,
		&e.Agent, &e.UserID, &e.Message, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)
	e.OldStatus = task.Status(oldStatus)
	e.NewStatus = task.Status(newStatus)
	return &e, nil
}

// LogStatusChanges records one entry per change.
func LogStatusChanges(ctx context.Context, l Log, userID string, changes []task.Change) error {
	for _, c := range changes {
		msg := ""
		if c.Cascaded {
			msg = "cascaded from parent"
		}
		err := l.Record(ctx, &Entry{
			Kind:      KindStatusChanged,
			TaskID:    c.TaskID,
			OldStatus: c.OldStatus,
			NewStatus: c.NewStatus,
			UserID:    userID,
			Message:   msg,
			CreatedAt: c.At,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// LogAssigned records an agent placed on a task.
func LogAssigned(ctx context.Context, l Log, userID string, taskID int, agent string) error {
	return l.Record(ctx, &Entry{
		Kind:   KindAssigned,
		TaskID: fmt.Sprint(taskID),
		Agent:  agent,
		UserID: userID,
	})
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, *Entry) error { return nil }

func (Nop) List(context.Context, Query) ([]*Entry, error) { return []*Entry{}, nil }

func (Nop) Close() error { return nil }
