package tasksource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/missionctl/internal/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestExtractTaskID(t *testing.T) {
	assert.Equal(t, "proj-001", ExtractTaskID("PROJ-001-login.md"))
	assert.Equal(t, "mc-042-03", ExtractTaskID("notes for mc-042-03"))
	assert.Equal(t, "", ExtractTaskID("readme.md"))
}

func TestMarkdownSourceList(t *testing.T) {
	root := t.TempDir()
	tasks := filepath.Join(root, "mission-control", "tasks")
	writeFile(t, filepath.Join(tasks, "proj-001.md"), `---
taskId: PROJ-001
title: Login page
status: In Progress
assignees: [dev, Reviewer, wizard]
---
# Login
`)
	writeFile(t, filepath.Join(tasks, "nested", "proj-002-cleanup.md"), `---
title: 42
assignees: pm
---
Status: Ready for QA
`)
	writeFile(t, filepath.Join(tasks, "proj-003.md"), "---\n: : broken [yaml\n---\nbody\n")
	writeFile(t, filepath.Join(tasks, "notes.md"), "no id anywhere\n")
	writeFile(t, filepath.Join(tasks, "proj-004.txt"), "ignored\n")

	src := NewMarkdownSource("tasks", root, []string{"mission-control/tasks/**/*.md"})
	got, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	byID := map[string]models.TaskMeta{}
	for _, task := range got {
		byID[task.TaskID] = task
	}

	one := byID["proj-001"]
	assert.Equal(t, "Login page", one.Title)
	assert.Equal(t, "In Progress", one.Status)
	assert.Equal(t, []models.Role{models.RoleDev, models.RoleReviewer}, one.Assignees)
	assert.Equal(t, "tasks", one.Source)
	assert.Equal(t, filepath.Join(tasks, "proj-001.md"), one.SourcePath)
	assert.False(t, one.UpdatedAt.IsZero())

	two := byID["proj-002"]
	assert.Equal(t, "42", two.Title)
	assert.Equal(t, "Ready for QA", two.Status, "body status fallback")
	assert.Equal(t, []models.Role{models.RolePM}, two.Assignees)

	three := byID["proj-003"]
	assert.Equal(t, "proj-003", three.Title, "malformed front matter falls back to the file name")
	assert.Empty(t, three.Status)
}

func TestMarkdownSourceMissingDirectory(t *testing.T) {
	src := NewMarkdownSource("tasks", t.TempDir(), []string{"mission-control/tasks/**/*.md"})
	got, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMarkdownUpdatedAtFromFrontMatter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "proj-009.md"), "---\nupdatedAt: \"2025-03-01T10:00:00Z\"\n---\n")

	got, err := NewMarkdownSource("tasks", root, nil).List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].UpdatedAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestMarkdownSetStatus(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "proj-001.md")
	writeFile(t, path, "---\ntaskId: proj-001\ntitle: Login\nstatus: Planning, dev feedback pending\nassignees:\n  - dev\n---\n# Body stays\n")
	src := NewMarkdownSource("tasks", root, nil)
	ctx := context.Background()

	require.True(t, src.Owns(path))
	require.NoError(t, src.SetStatus(ctx, path, "Development"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "status: Development\n")
	assert.Contains(t, text, "title: Login\n")
	assert.Contains(t, text, "  - dev\n")
	assert.True(t, strings.HasSuffix(text, "---\n# Body stays\n"))

	info, _ := os.Stat(path)
	require.NoError(t, src.SetStatus(ctx, path, "Development"))
	again, _ := os.Stat(path)
	assert.Equal(t, info.ModTime(), again.ModTime(), "rewriting the same status is a no-op")
}

func TestMarkdownSetStatusWithoutFrontMatter(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "proj-005.md")
	writeFile(t, path, "# proj-005\nStatus: Planning\n")
	src := NewMarkdownSource("tasks", root, nil)

	require.NoError(t, src.SetStatus(context.Background(), path, "Review"))
	got, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Review", got[0].Status)
}

func TestMarkdownOwns(t *testing.T) {
	root := t.TempDir()
	src := NewMarkdownSource("tasks", root, []string{"mission-control/tasks/**/*.md"})
	assert.True(t, src.Owns(filepath.Join(root, "mission-control", "tasks", "a", "proj-001.md")))
	assert.False(t, src.Owns(filepath.Join(root, "other", "proj-001.md")))
	assert.False(t, src.Owns("/elsewhere/proj-001.md"))
	assert.Equal(t, []string{filepath.Join(root, "mission-control", "tasks")}, src.WatchPaths())
}
