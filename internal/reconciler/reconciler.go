// Package reconciler converges per-role run records against the roles each
// task currently requires.
package reconciler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fentz26/missionctl/internal/models"
	"github.com/fentz26/missionctl/internal/phase"
	"github.com/fentz26/missionctl/internal/roles"
)

// Config holds the run lifecycle tunables.
type Config struct {
	// PollInterval is the recheck cadence of healthy runs.
	PollInterval time.Duration
	// RunTimeout is how long a run may stay active after it started.
	RunTimeout time.Duration
	// Fallback is the recheck cadence once a run is in recovery.
	Fallback time.Duration
}

// Transition causes recorded in RunRecord.LastTransition.
const (
	TransitionCreated       = "created"
	TransitionReactivated   = "reactivated"
	TransitionPhaseAdvance  = "phase-advance"
	TransitionPhaseComplete = "phase-complete"
	TransitionMissing       = "missing-source"
	TransitionUnassigned    = "unassigned"
	TransitionTimeout       = "timeout"
	TransitionHeartbeat     = "heartbeat"
)

// Target is the desired state of one task for the current tick.
type Target struct {
	Task       models.TaskMeta
	Resolution phase.Resolution
	Roles      []models.Role
	// EnteredAt is when the task entered Resolution.Phase.
	EnteredAt models.Millis
}

// Result summarizes one reconciliation pass.
type Result struct {
	Targets     []Target
	Created     int
	Reactivated int
	Advanced    int
	Refreshed   int
	Completed   int
	Dropped     int
	TimedOut    int
	Heartbeats  int
	Evaluated   int
}

// Changed reports whether any record changed status or phase.
func (r Result) Changed() bool {
	return r.Created+r.Reactivated+r.Advanced+r.Completed+r.Dropped+r.TimedOut+r.Heartbeats > 0
}

// Reconciler diffs desired (role, task) pairs against the run records.
type Reconciler struct {
	cfg      Config
	resolver *phase.Resolver
}

// New creates a reconciler.
func New(cfg Config, resolver *phase.Resolver) *Reconciler {
	if resolver == nil {
		resolver = &phase.Resolver{}
	}
	return &Reconciler{cfg: cfg, resolver: resolver}
}

// Config returns the tunables the reconciler runs with.
func (r *Reconciler) Config() Config {
	return r.cfg
}

// Targets resolves the phase and required roles of every task. Tasks are
// keyed by lower-cased ID; tasks without an ID are ignored and a repeated ID
// keeps its last occurrence. The result is sorted by task ID.
func (r *Reconciler) Targets(tasks []models.TaskMeta, memory map[string]models.PhaseMemory, now time.Time) []Target {
	byID := make(map[string]models.TaskMeta, len(tasks))
	for _, t := range tasks {
		id := strings.ToLower(strings.TrimSpace(t.TaskID))
		if id == "" {
			continue
		}
		t.TaskID = id
		byID[id] = t
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nowMs := models.ToMillis(now)
	targets := make([]Target, 0, len(ids))
	for _, id := range ids {
		task := byID[id]
		var memPtr *models.PhaseMemory
		if mem, ok := memory[id]; ok {
			memPtr = &mem
		}
		res := r.resolver.Resolve(task.Status, memPtr, now)
		entered := nowMs
		if memPtr != nil && memPtr.Phase == res.Phase {
			entered = memPtr.EnteredAt
		}
		targets = append(targets, Target{
			Task:       task,
			Resolution: res,
			Roles:      roles.Required(res.Phase, res.DevFeedbackPending, res.ReviewFeedbackPending, task.Assignees),
			EnteredAt:  entered,
		})
	}
	return targets
}

// Reconcile applies one tick to state in place: the desired-set diff first,
// then the timeout pass over records whose next poll is due.
func (r *Reconciler) Reconcile(state *models.RunnerState, tasks []models.TaskMeta, now time.Time) Result {
	if state.Runs == nil {
		state.Runs = models.RunSet{}
	}
	nowMs := models.ToMillis(now)
	targets := r.Targets(tasks, state.PhaseMemory(), now)
	res := Result{Targets: targets}

	desired := make(map[models.RunKey]bool)
	taskPhase := make(map[string]models.Phase, len(targets))

	for _, tg := range targets {
		ph := tg.Resolution.Phase
		taskPhase[tg.Task.TaskID] = ph
		for _, role := range tg.Roles {
			key := models.RunKey{Role: role, TaskID: tg.Task.TaskID}
			desired[key] = true

			run, ok := state.Runs.Get(key)
			switch {
			case !ok:
				run = &models.RunRecord{
					TaskID:         key.TaskID,
					Role:           role,
					Status:         models.RunStatusQueued,
					Phase:          ph,
					StartedAt:      nowMs,
					LastRunAt:      nowMs,
					NextPollAt:     nowMs,
					PollMode:       models.PollModeNormal,
					TaskTitle:      tg.Task.DisplayTitle(),
					LastTransition: TransitionCreated,
					PhaseEnteredAt: tg.EnteredAt,
				}
				state.Runs.Put(run)
				appendLog(state, run, models.EventCreated, nowMs)
				res.Created++
			case run.Status.Terminal():
				run.Status = models.RunStatusQueued
				run.Phase = ph
				run.PhaseEnteredAt = tg.EnteredAt
				run.StartedAt = nowMs
				run.LastRunAt = nowMs
				run.NextPollAt = nowMs
				run.PollMode = models.PollModeNormal
				run.TaskTitle = tg.Task.DisplayTitle()
				run.LastTransition = TransitionReactivated
				appendLog(state, run, models.EventCreated, nowMs)
				res.Reactivated++
			case run.Phase != ph:
				run.Phase = ph
				run.PhaseEnteredAt = nowMs
				run.TaskTitle = tg.Task.DisplayTitle()
				run.LastRunAt = nowMs
				run.LastTransition = TransitionPhaseAdvance
				appendLog(state, run, models.EventPhase, nowMs)
				res.Advanced++
			default:
				run.TaskTitle = tg.Task.DisplayTitle()
				run.LastRunAt = nowMs
				res.Refreshed++
			}
		}
	}

	for _, run := range state.Runs.Sorted() {
		if desired[run.Key()] || run.Status.Terminal() {
			continue
		}
		ph, present := taskPhase[run.TaskID]
		switch {
		case !present:
			r.drop(state, run, TransitionMissing, nowMs)
			res.Dropped++
		case ph != run.Phase:
			run.Status = models.RunStatusCompleted
			run.LastTransition = TransitionPhaseComplete
			appendLog(state, run, models.EventPhase, nowMs)
			res.Completed++
		default:
			r.drop(state, run, TransitionUnassigned, nowMs)
			res.Dropped++
		}
	}

	r.evaluate(state, nowMs, &res)
	return res
}

func (r *Reconciler) drop(state *models.RunnerState, run *models.RunRecord, cause string, nowMs models.Millis) {
	run.Status = models.RunStatusDropped
	run.PollMode = models.PollModeRecovery
	run.NextPollAt = nowMs.Add(r.cfg.Fallback)
	run.LastTransition = cause
	appendLog(state, run, models.EventDropped, nowMs)
}

// evaluate runs the timeout pass over every non-completed record whose next
// poll is strictly in the past.
func (r *Reconciler) evaluate(state *models.RunnerState, nowMs models.Millis, res *Result) {
	for _, run := range state.Runs.Sorted() {
		if run.Status == models.RunStatusCompleted || run.NextPollAt >= nowMs {
			continue
		}
		prev := run.Status
		timedOut := run.StartedAt.Since(nowMs) > r.cfg.RunTimeout
		recoveryPoll := nowMs.Add(r.cfg.Fallback)

		switch {
		case timedOut && prev != models.RunStatusTimedOut && prev != models.RunStatusDropped:
			run.Status = models.RunStatusTimedOut
			run.PollMode = models.PollModeRecovery
			run.NextPollAt = recoveryPoll
			run.LastTransition = TransitionTimeout
			appendLog(state, run, models.EventStatus, nowMs)
			res.TimedOut++
		case prev == models.RunStatusTimedOut || prev == models.RunStatusDropped:
			run.PollMode = models.PollModeRecovery
			if run.NextPollAt < recoveryPoll {
				run.NextPollAt = recoveryPoll
			}
		case prev.Active():
			run.Status = models.RunStatusRunning
			run.PollMode = models.PollModeNormal
			run.NextPollAt = nowMs.Add(r.cfg.PollInterval)
			if prev != models.RunStatusRunning {
				run.LastTransition = TransitionHeartbeat
				appendLog(state, run, models.EventHeartbeat, nowMs)
				res.Heartbeats++
			}
		}

		run.Attempts++
		run.LastPolledAt = nowMs
		res.Evaluated++
	}
}

func appendLog(state *models.RunnerState, run *models.RunRecord, event string, at models.Millis) {
	state.AppendLog(models.LogEntry{
		At:     at,
		Role:   string(run.Role),
		TaskID: run.TaskID,
		Event:  event,
		Reason: reason(run),
	})
}

func reason(run *models.RunRecord) string {
	cause := run.LastTransition
	if cause == "" {
		cause = "ok"
	}
	ph := string(run.Phase)
	if ph == "" {
		ph = "Unknown"
	}
	return fmt.Sprintf("%s: %s", ph, cause)
}
