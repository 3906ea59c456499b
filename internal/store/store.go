// Package store provides persistence for the runner snapshot, the database
// task source and the decision records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fentz26/missionctl/internal/models"
)

// ErrNotFound is returned when a task row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides access to the missionctl SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets the read-only API query while the runner writes.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runner_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		snapshot TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		assignees TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_pdr_task_id ON pdr(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Snapshot Operations ---

// ReadSnapshot returns the raw persisted snapshot, or nil when none was saved.
func (s *Store) ReadSnapshot(ctx context.Context) ([]byte, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM runner_state WHERE id = 1`).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return []byte(snapshot), nil
}

// WriteSnapshot replaces the persisted snapshot. The last write wins.
func (s *Store) WriteSnapshot(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runner_state (id, snapshot, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// --- Task Operations ---

// CreateTask inserts a new task row. The external task ID is lower-cased.
func (s *Store) CreateTask(ctx context.Context, taskID, title, status string, assignees []models.Role) (*models.Task, error) {
	taskID = strings.ToLower(strings.TrimSpace(taskID))
	if taskID == "" {
		return nil, fmt.Errorf("insert task: empty task id")
	}
	now := time.Now().UTC()
	task := &models.Task{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Title:     title,
		Status:    status,
		Assignees: assignees,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, task_id, title, status, assignees, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.TaskID, task.Title, task.Status, joinRoles(task.Assignees), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// GetTask retrieves a task by its external task ID.
func (s *Store) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, title, status, assignees, created_at, updated_at FROM tasks WHERE task_id = ?`,
		strings.ToLower(taskID),
	)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListTasks returns all task rows ordered by task ID.
func (s *Store) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, title, status, assignees, created_at, updated_at FROM tasks ORDER BY task_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus sets the free-text status of a task and bumps updated_at.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`,
		status, time.Now().UTC(), strings.ToLower(taskID),
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var assignees string
	if err := row.Scan(&task.ID, &task.TaskID, &task.Title, &task.Status, &assignees, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	task.Assignees = splitRoles(assignees)
	return &task, nil
}

func joinRoles(roles []models.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func splitRoles(s string) []models.Role {
	var out []models.Role
	for _, part := range strings.Split(s, ",") {
		if r, ok := models.ParseRole(part); ok {
			out = append(out, r)
		}
	}
	return out
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error) {
	now := time.Now().UTC()
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  now,
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.TaskID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDRs returns decision records, newest first, optionally for one task.
func (s *Store) ListPDRs(taskID string, limit int) ([]models.PDREntry, error) {
	query := `SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM pdr`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var task, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &task, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.TaskID = task.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
