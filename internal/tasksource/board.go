package tasksource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fentz26/missionctl/internal/models"
	"github.com/fentz26/missionctl/internal/phase"
)

// BoardColumns are the board sections, in board order.
var BoardColumns = []string{"Inbox", "Planning", "Development", "Review", "Done"}

var boardItemPattern = regexp.MustCompile(`(?i)^([a-z0-9]+-\d{3}(?:-\d{2})?)\s*(?:—|–|-|:)\s*(.+)$`)

// BoardSource reads a kanban-style markdown board. Each list item under a
// "## <Column>" heading contributes a task whose status is the column.
type BoardSource struct {
	name string
	path string
}

// NewBoardSource creates a board source over the file at path.
func NewBoardSource(name, path string) *BoardSource {
	return &BoardSource{name: name, path: path}
}

func (b *BoardSource) Name() string { return b.name }

type boardItem struct {
	taskID string
	title  string
	line   int
}

type boardSection struct {
	column string
	header int
	end    int // exclusive
	items  []boardItem
}

func parseBoard(lines []string) []boardSection {
	var sections []boardSection
	cur := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			if cur >= 0 {
				sections[cur].end = i
			}
			cur = -1
			heading := strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			for _, col := range BoardColumns {
				if strings.EqualFold(heading, col) {
					sections = append(sections, boardSection{column: col, header: i})
					cur = len(sections) - 1
					break
				}
			}
			continue
		}
		if cur < 0 {
			continue
		}
		if !strings.HasPrefix(trimmed, "- ") && !strings.HasPrefix(trimmed, "* ") {
			continue
		}
		label := strings.TrimSpace(trimmed[2:])
		label = strings.TrimPrefix(strings.TrimPrefix(label, "[ ] "), "[x] ")
		if label == "" {
			continue
		}
		item := boardItem{taskID: strings.ToLower(label), title: label, line: i}
		if m := boardItemPattern.FindStringSubmatch(label); m != nil {
			item.taskID = strings.ToLower(m[1])
			item.title = strings.TrimSpace(m[2])
		} else if id := ExtractTaskID(label); id != "" {
			item.taskID = id
		}
		sections[cur].items = append(sections[cur].items, item)
	}
	if cur >= 0 {
		sections[cur].end = len(lines)
	}
	return sections
}

func (b *BoardSource) readLines() ([]string, os.FileInfo, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(b.path)
	if err != nil {
		return nil, nil, err
	}
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), info, nil
}

// List returns one record per board item. A missing board yields nothing.
func (b *BoardSource) List(ctx context.Context) ([]models.TaskMeta, error) {
	lines, info, err := b.readLines()
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read board: %w", err)
	}
	var tasks []models.TaskMeta
	for _, sec := range parseBoard(lines) {
		for _, item := range sec.items {
			tasks = append(tasks, models.TaskMeta{
				TaskID:     item.taskID,
				Title:      item.title,
				Status:     sec.column,
				SourcePath: b.itemPath(item.taskID),
				Source:     b.name,
				UpdatedAt:  info.ModTime(),
			})
		}
	}
	return tasks, nil
}

func (b *BoardSource) itemPath(taskID string) string {
	return b.path + "#" + taskID
}

// Owns reports whether sourcePath addresses an item of this board.
func (b *BoardSource) Owns(sourcePath string) bool {
	return strings.HasPrefix(sourcePath, b.path+"#")
}

// ColumnFor maps a status to a board column: an exact column name, else the
// column of the phase the status classifies to.
func ColumnFor(status string) string {
	for _, col := range BoardColumns {
		if strings.EqualFold(strings.TrimSpace(status), col) {
			return col
		}
	}
	return phase.Classify(status).Phase.Label()
}

// SetStatus moves the item to the column matching status.
func (b *BoardSource) SetStatus(ctx context.Context, sourcePath, status string) error {
	if !b.Owns(sourcePath) {
		return fmt.Errorf("%s: %w", sourcePath, ErrUnknownSource)
	}
	taskID := strings.TrimPrefix(sourcePath, b.path+"#")
	lines, _, err := b.readLines()
	if err != nil {
		return fmt.Errorf("read board: %w", err)
	}
	sections := parseBoard(lines)
	target := ColumnFor(status)

	var from *boardItem
	var fromCol string
	var dest *boardSection
	for i := range sections {
		sec := &sections[i]
		if sec.column == target {
			dest = sec
		}
		for j := range sec.items {
			if sec.items[j].taskID == taskID && from == nil {
				from = &sec.items[j]
				fromCol = sec.column
			}
		}
	}
	if from == nil {
		return fmt.Errorf("board item %s not found", taskID)
	}
	if fromCol == target {
		return nil
	}

	moved := lines[from.line]
	var out []string
	if dest == nil {
		out = append(out, removeLine(lines, from.line)...)
		for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
			out = out[:len(out)-1]
		}
		out = append(out, "", "## "+target, moved, "")
	} else {
		insertAt := dest.header + 1
		if n := len(dest.items); n > 0 {
			insertAt = dest.items[n-1].line + 1
		}
		for i, line := range lines {
			if i == insertAt {
				out = append(out, moved)
			}
			if i != from.line {
				out = append(out, line)
			}
		}
		if insertAt >= len(lines) {
			out = append(out, moved)
		}
	}

	if err := writeFileAtomic(b.path, []byte(strings.Join(out, "\n"))); err != nil {
		return fmt.Errorf("write board: %w", err)
	}
	return nil
}

func removeLine(lines []string, idx int) []string {
	out := make([]string, 0, len(lines)-1)
	out = append(out, lines[:idx]...)
	return append(out, lines[idx+1:]...)
}

// WatchPaths returns the board's directory.
func (b *BoardSource) WatchPaths() []string {
	return []string{filepath.Dir(b.path)}
}
