package tasksource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fentz26/missionctl/internal/logging"
	"github.com/fentz26/missionctl/internal/models"
)

// Ranked pairs a source with its merge priority. Higher ranks win.
type Ranked struct {
	Source Source
	Rank   int
}

// Repository merges the records of several sources into one TaskMeta per
// task ID and routes status writes back to the owning source.
type Repository struct {
	sources []Ranked
	logger  *logging.Logger
}

// NewRepository creates a repository. Sources keep their given order for
// rank ties.
func NewRepository(logger *logging.Logger, sources ...Ranked) *Repository {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Repository{sources: sources, logger: logger}
}

// Sources returns the configured sources in configuration order.
func (r *Repository) Sources() []Ranked {
	return r.sources
}

type candidate struct {
	task  models.TaskMeta
	rank  int
	order int
}

// List reads every source and merges the records. A failing source is
// logged and skipped; its error is returned alongside the merged tasks.
func (r *Repository) List(ctx context.Context) ([]models.TaskMeta, error) {
	byID := make(map[string][]candidate)
	var errs []error
	for order, rs := range r.sources {
		tasks, err := rs.Source.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("task source failed", "source", rs.Source.Name(), "error", err)
			errs = append(errs, fmt.Errorf("source %s: %w", rs.Source.Name(), err))
			continue
		}
		for _, t := range tasks {
			id := strings.ToLower(strings.TrimSpace(t.TaskID))
			if id == "" {
				continue
			}
			t.TaskID = id
			if t.Source == "" {
				t.Source = rs.Source.Name()
			}
			byID[id] = append(byID[id], candidate{task: t, rank: rs.Rank, order: order})
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	merged := make([]models.TaskMeta, 0, len(ids))
	for _, id := range ids {
		merged = append(merged, merge(byID[id]))
	}
	return merged, errors.Join(errs...)
}

// merge combines partial records field by field: each field comes from the
// best candidate that has it. The candidate supplying the status also
// supplies sourcePath, source and updatedAt.
func merge(cands []candidate) models.TaskMeta {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		if !a.task.UpdatedAt.Equal(b.task.UpdatedAt) {
			return a.task.UpdatedAt.After(b.task.UpdatedAt)
		}
		return a.order < b.order
	})

	out := cands[0].task
	origin := cands[0].task
	statusFound := false
	for _, c := range cands {
		if c.task.Status != "" {
			origin = c.task
			statusFound = true
			break
		}
	}
	if statusFound {
		out.Status = origin.Status
	}
	out.SourcePath = origin.SourcePath
	out.Source = origin.Source
	out.UpdatedAt = origin.UpdatedAt

	out.Title = ""
	out.Assignees = nil
	for _, c := range cands {
		if out.Title == "" && c.task.Title != "" {
			out.Title = c.task.Title
		}
		if len(out.Assignees) == 0 && len(c.task.Assignees) > 0 {
			out.Assignees = c.task.Assignees
		}
	}
	return out
}

// SetStatus routes the write to the highest-ranked source owning sourcePath.
func (r *Repository) SetStatus(ctx context.Context, sourcePath, status string) error {
	var owner Source
	best := 0
	for _, rs := range r.sources {
		if rs.Source.Owns(sourcePath) && (owner == nil || rs.Rank > best) {
			owner, best = rs.Source, rs.Rank
		}
	}
	if owner == nil {
		return fmt.Errorf("%s: %w", sourcePath, ErrUnknownSource)
	}
	return owner.SetStatus(ctx, sourcePath, status)
}

// WatchPaths collects the watchable paths of all sources.
func (r *Repository) WatchPaths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rs := range r.sources {
		w, ok := rs.Source.(Watcher)
		if !ok {
			continue
		}
		for _, p := range w.WatchPaths() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
