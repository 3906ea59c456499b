package models

import "time"

// Task is a task row owned by the database task source.
type Task struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Assignees []Role    `json:"assignees"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta converts the row into the form the reconciler consumes.
func (t Task) Meta(source, sourcePath string) TaskMeta {
	return TaskMeta{
		TaskID:     t.TaskID,
		Title:      t.Title,
		Assignees:  t.Assignees,
		Status:     t.Status,
		SourcePath: sourcePath,
		Source:     source,
		UpdatedAt:  t.UpdatedAt,
	}
}

// PDREntry is a Process Decision Record: one audited mutation of an
// external task record.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id"`
	Details    string    `json:"details"`
	Timestamp  time.Time `json:"timestamp"`
}
