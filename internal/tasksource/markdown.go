package tasksource

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/fentz26/missionctl/internal/models"
	"github.com/fentz26/missionctl/internal/roles"
)

// MarkdownSource reads one task per markdown file. Metadata lives in YAML
// front matter (taskId, title, status, assignees, updatedAt); a body line
// "Status: ..." is used when the front matter has no status.
type MarkdownSource struct {
	name     string
	root     string
	patterns []string
}

// NewMarkdownSource creates a source over files under root matching any of
// the doublestar patterns.
func NewMarkdownSource(name, root string, patterns []string) *MarkdownSource {
	if len(patterns) == 0 {
		patterns = []string{"**/*.md"}
	}
	return &MarkdownSource{name: name, root: root, patterns: patterns}
}

func (m *MarkdownSource) Name() string { return m.name }

// frontMatter is decoded leniently: fields of the wrong type are ignored.
type frontMatter struct {
	TaskID    any `yaml:"taskId"`
	Title     any `yaml:"title"`
	Status    any `yaml:"status"`
	Assignees any `yaml:"assignees"`
	UpdatedAt any `yaml:"updatedAt"`
}

// List parses every matching file. Unreadable files are skipped.
func (m *MarkdownSource) List(ctx context.Context) ([]models.TaskMeta, error) {
	files, err := m.files()
	if err != nil {
		return nil, err
	}
	var tasks []models.TaskMeta
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		task, ok := parseTaskFile(path, data, info.ModTime())
		if !ok {
			continue
		}
		task.Source = m.name
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (m *MarkdownSource) files() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	fsys := os.DirFS(m.root)
	for _, pattern := range m.patterns {
		err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
			if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
				return nil
			}
			full := filepath.Join(m.root, filepath.FromSlash(path))
			if !seen[full] {
				seen[full] = true
				out = append(out, full)
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

// parseTaskFile extracts a task record. The ID comes from the front matter,
// then the file name, then the content.
func parseTaskFile(path string, data []byte, modTime time.Time) (models.TaskMeta, bool) {
	base := filepath.Base(path)
	fmText, body, hasFM := splitFrontMatter(data)

	var fm frontMatter
	if hasFM {
		if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
			fm = frontMatter{}
		}
	}

	id := strings.ToLower(strings.TrimSpace(asString(fm.TaskID)))
	if id == "" {
		id = ExtractTaskID(base)
	}
	if id == "" {
		id = ExtractTaskID(string(data))
	}
	if id == "" {
		return models.TaskMeta{}, false
	}

	status := strings.TrimSpace(asString(fm.Status))
	if status == "" {
		status = bodyStatus(body)
	}
	title := strings.TrimSpace(asString(fm.Title))
	if title == "" {
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	updated := modTime
	if t, ok := asTime(fm.UpdatedAt); ok {
		updated = t
	}

	return models.TaskMeta{
		TaskID:     id,
		Title:      title,
		Assignees:  roles.Normalize(asStrings(fm.Assignees)),
		Status:     status,
		SourcePath: path,
		UpdatedAt:  updated,
	}, true
}

// splitFrontMatter separates a leading "---" block from the body.
func splitFrontMatter(data []byte) (string, string, bool) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return "", text, false
	}
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", text, false
}

func bodyStatus(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimLeft(strings.TrimSpace(line), "-*> ")
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		if len(trimmed) > 7 && strings.EqualFold(trimmed[:7], "status:") {
			return strings.TrimSpace(trimmed[7:])
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int, int64, float64, bool:
		return fmt.Sprint(t)
	}
	return ""
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, asString(item))
		}
		return out
	case string:
		return strings.Split(t, ",")
	}
	return nil
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(t)); err == nil {
			return parsed, true
		}
	case int:
		return time.UnixMilli(int64(t)), true
	}
	return time.Time{}, false
}

// Owns reports whether sourcePath is a file this source lists.
func (m *MarkdownSource) Owns(sourcePath string) bool {
	rel, err := filepath.Rel(m.root, sourcePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range m.patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// SetStatus rewrites the status field of the file's front matter, creating
// the front matter when the file has none.
func (m *MarkdownSource) SetStatus(ctx context.Context, sourcePath, status string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}
	updated, changed, err := rewriteStatus(data, status)
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", filepath.Base(sourcePath), err)
	}
	if !changed {
		return nil
	}
	if err := writeFileAtomic(sourcePath, updated); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	return nil
}

// rewriteStatus sets the status key in the front matter, keeping every
// other key and the body intact.
func rewriteStatus(data []byte, status string) ([]byte, bool, error) {
	fmText, body, hasFM := splitFrontMatter(data)

	var doc yaml.Node
	if hasFM && strings.TrimSpace(fmText) != "" {
		if err := yaml.Unmarshal([]byte(fmText), &doc); err != nil {
			return nil, false, fmt.Errorf("parse front matter: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, false, fmt.Errorf("front matter is not a mapping")
	}

	found := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "status" {
			continue
		}
		found = true
		val := root.Content[i+1]
		if val.Kind == yaml.ScalarNode && val.Value == status {
			return data, false, nil
		}
		*val = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: status}
	}
	if !found {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "status"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: status},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, false, fmt.Errorf("encode front matter: %w", err)
	}
	enc.Close()

	var out bytes.Buffer
	out.WriteString("---\n")
	out.Write(buf.Bytes())
	out.WriteString("---\n")
	out.WriteString(body)
	return out.Bytes(), true, nil
}

// WatchPaths returns the fixed directory prefix of every pattern.
func (m *MarkdownSource) WatchPaths() []string {
	var out []string
	for _, pattern := range m.patterns {
		base, _ := doublestar.SplitPattern(pattern)
		out = append(out, filepath.Join(m.root, filepath.FromSlash(base)))
	}
	return out
}
