// Package tasksource reads task records from the workspace and writes status
// changes back to the record that owns them.
package tasksource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fentz26/missionctl/internal/models"
)

// ErrUnknownSource is returned when no source owns a sourcePath.
var ErrUnknownSource = errors.New("no task source owns path")

// Source supplies task records. Records may be partial; the Repository
// merges records sharing a task ID.
type Source interface {
	Name() string
	List(ctx context.Context) ([]models.TaskMeta, error)
	// Owns reports whether sourcePath refers to a record of this source.
	Owns(sourcePath string) bool
	// SetStatus rewrites the status of the record at sourcePath. Writing
	// the current status again is a no-op.
	SetStatus(ctx context.Context, sourcePath, status string) error
}

// Watcher is implemented by sources backed by files that can be watched.
type Watcher interface {
	WatchPaths() []string
}

var taskIDPattern = regexp.MustCompile(`(?i)[a-z0-9]+-\d{3}(?:-\d{2})?`)

// ExtractTaskID finds the first project-style identifier (proj-001,
// proj-001-02) in s, lower-cased.
func ExtractTaskID(s string) string {
	return strings.ToLower(taskIDPattern.FindString(s))
}

// writeFileAtomic replaces path through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if info, err := os.Stat(path); err == nil {
		os.Chmod(name, info.Mode().Perm())
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
