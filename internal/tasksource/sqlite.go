package tasksource

import (
	"context"
	"fmt"
	"strings"

	"github.com/fentz26/missionctl/internal/models"
)

// TaskStore is the task table API the database source needs. *store.Store
// satisfies it.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID, status string) error
}

// DBSource exposes the rows of the tasks table. Source paths have the form
// "<name>:<taskId>".
type DBSource struct {
	name  string
	store TaskStore
}

// NewDBSource creates a database-backed source.
func NewDBSource(name string, store TaskStore) *DBSource {
	return &DBSource{name: name, store: store}
}

func (d *DBSource) Name() string { return d.name }

func (d *DBSource) List(ctx context.Context) ([]models.TaskMeta, error) {
	rows, err := d.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list db tasks: %w", err)
	}
	tasks := make([]models.TaskMeta, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.Meta(d.name, d.prefix()+row.TaskID))
	}
	return tasks, nil
}

func (d *DBSource) prefix() string {
	return d.name + ":"
}

func (d *DBSource) Owns(sourcePath string) bool {
	return strings.HasPrefix(sourcePath, d.prefix())
}

func (d *DBSource) SetStatus(ctx context.Context, sourcePath, status string) error {
	taskID := strings.TrimPrefix(sourcePath, d.prefix())
	row, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if row.Status == status {
		return nil
	}
	return d.store.UpdateTaskStatus(ctx, taskID, status)
}
