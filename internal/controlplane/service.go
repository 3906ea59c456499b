// Package controlplane drives the reconciliation tick and serves the
// resulting snapshot over a read-only HTTP API.
package controlplane

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fentz26/missionctl/internal/briefing"
	"github.com/fentz26/missionctl/internal/logging"
	"github.com/fentz26/missionctl/internal/models"
	"github.com/fentz26/missionctl/internal/promote"
	"github.com/fentz26/missionctl/internal/reconciler"
	"github.com/fentz26/missionctl/internal/store"
)

// TaskLister yields the merged task records for a tick.
type TaskLister interface {
	List(ctx context.Context) ([]models.TaskMeta, error)
}

// Options wires a Service.
type Options struct {
	Tasks      TaskLister
	States     store.StateStore
	Reconciler *reconciler.Reconciler
	// Promoter is optional; nil disables the auto-promotion sweep.
	Promoter promote.Promoter
	// Briefings is optional; nil skips the role file check.
	Briefings *briefing.Layout
	Logger    *logging.Logger
	Now       func() time.Time
}

// Report summarizes one tick.
type Report struct {
	TickID           string
	Result           reconciler.Result
	Promoted         []string
	PromotionErrors  int
	Counts           models.Counts
	MissingBriefings []string
}

// Service owns the runner state. Ticks are serialized; the published
// snapshot is safe to read concurrently.
type Service struct {
	tasks      TaskLister
	states     store.StateStore
	reconciler *reconciler.Reconciler
	promoter   promote.Promoter
	briefings  *briefing.Layout
	logger     *logging.Logger
	now        func() time.Time

	tickMu sync.Mutex
	state  *models.RunnerState

	mu        sync.RWMutex
	published *models.RunnerState
}

// NewService creates a new control plane service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rec := opts.Reconciler
	if rec == nil {
		rec = reconciler.New(reconciler.Config{}, nil)
	}
	return &Service{
		tasks:      opts.Tasks,
		states:     opts.States,
		reconciler: rec,
		promoter:   opts.Promoter,
		briefings:  opts.Briefings,
		logger:     logger.WithComponent("controlplane"),
		now:        now,
	}
}

// Init loads the persisted state. Tick calls it on first use.
func (s *Service) Init(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.init(ctx)
}

func (s *Service) init(ctx context.Context) error {
	if s.state != nil {
		return nil
	}
	state, err := s.states.Load(ctx)
	if err != nil {
		// Load still hands back usable defaults.
		s.logger.Warn("state load failed, starting from defaults", "error", err)
	}
	if state == nil {
		cfg := s.reconciler.Config()
		state = models.NewRunnerState(cfg.PollInterval, cfg.RunTimeout, cfg.Fallback, s.now())
	}
	s.state = state
	s.publish()
	return nil
}

// Tick runs one reconciliation pass and persists the result. A failing task
// listing skips the pass and leaves the state untouched. A failing persist
// keeps the in-memory state for the next tick to retry.
func (s *Service) Tick(ctx context.Context) (Report, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	rep := Report{TickID: uuid.NewString()}
	logger := s.logger.WithTick(rep.TickID)

	if err := s.init(ctx); err != nil {
		return rep, err
	}

	tasks, err := s.tasks.List(ctx)
	if err != nil {
		logger.Error("task listing failed, tick skipped", "error", err)
		return rep, fmt.Errorf("list tasks: %w", err)
	}

	now := s.now()
	nowMs := models.ToMillis(now)
	state := s.state

	sweep := promote.Sweep(ctx, s.promoter, tasks, now, logger)
	rep.Promoted = sweep.Promoted
	rep.PromotionErrors = len(sweep.Errors)
	for i, task := range sweep.Tasks {
		if task.Status == tasks[i].Status {
			continue
		}
		state.AppendLog(models.LogEntry{
			At:     nowMs,
			TaskID: strings.ToLower(task.TaskID),
			Event:  models.EventPromoted,
			Reason: fmt.Sprintf("%s -> %s", tasks[i].Status, task.Status),
		})
	}

	rep.Result = s.reconciler.Reconcile(state, sweep.Tasks, now)

	if s.briefings != nil {
		br, err := s.briefings.Check()
		if err != nil {
			logger.Warn("role file check incomplete", "error", err)
		}
		for _, path := range br.Created {
			logger.Info("role file created", "path", path)
		}
		state.MissingBriefings = br.Missing
	}

	cfg := s.reconciler.Config()
	state.PollIntervalMs = cfg.PollInterval.Milliseconds()
	state.TimeoutMs = cfg.RunTimeout.Milliseconds()
	state.FallbackMs = cfg.Fallback.Milliseconds()
	state.UpdatedAt = nowMs
	state.LastLoopAt = nowMs

	saveErr := s.states.Save(ctx, state)
	s.publish()

	rep.Counts = state.Counts()
	rep.MissingBriefings = append([]string{}, state.MissingBriefings...)
	logger.Info("tick complete",
		"runs", rep.Counts.Total,
		"active", rep.Counts.Active,
		"timed_out_or_dropped", rep.Counts.TimedOutOrDrop,
		"interval", cfg.PollInterval.String(),
		"fallback", cfg.Fallback.String(),
		"timeout", cfg.RunTimeout.String(),
		"created", rep.Result.Created+rep.Result.Reactivated,
		"promoted", len(rep.Promoted),
		"changed", rep.Result.Changed(),
	)
	if len(rep.MissingBriefings) > 0 {
		logger.Warn("user action required: missing briefing files for " + strings.Join(rep.MissingBriefings, ", "))
	}

	if saveErr != nil {
		logger.Error("state persist failed", "error", saveErr)
		return rep, fmt.Errorf("persist state: %w", saveErr)
	}
	return rep, nil
}

func (s *Service) publish() {
	cp := s.state.Clone()
	s.mu.Lock()
	s.published = cp
	s.mu.Unlock()
}

// Snapshot returns a copy of the latest state, or ErrNotInitialized before
// the state was loaded.
func (s *Service) Snapshot() (*models.RunnerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.published == nil {
		return nil, ErrNotInitialized
	}
	return s.published.Clone(), nil
}

// Defaults returns an empty state carrying the configured tunables.
func (s *Service) Defaults() *models.RunnerState {
	cfg := s.reconciler.Config()
	return models.NewRunnerState(cfg.PollInterval, cfg.RunTimeout, cfg.Fallback, s.now())
}

// TaskRuns returns the run records of one task in role order.
func (s *Service) TaskRuns(taskID string) ([]*models.RunRecord, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	runs := snap.Runs.ForTask(strings.ToLower(strings.TrimSpace(taskID)))
	if len(runs) == 0 {
		return nil, ErrTaskNotFound
	}
	return runs, nil
}
