// Package models defines the core domain types for missionctl.
package models

import (
	"strings"
	"time"
)

// Role is a category of activity that may be active on a task.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleDev      Role = "dev"
	RolePM       Role = "pm"
	RoleReviewer Role = "reviewer"
	RoleUIUX     Role = "uiux"
)

// AllRoles lists every role in canonical order.
var AllRoles = []Role{RolePlanner, RoleDev, RolePM, RoleReviewer, RoleUIUX}

// ParseRole normalizes a role label. Unknown labels report ok=false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// Rank returns the canonical position of the role, or len(AllRoles) for unknown roles.
func (r Role) Rank() int {
	for i, known := range AllRoles {
		if r == known {
			return i
		}
	}
	return len(AllRoles)
}

// Phase is a task's lifecycle stage. Phases are totally ordered.
type Phase string

const (
	PhasePlanning    Phase = "Planning"
	PhaseDevelopment Phase = "Development"
	PhaseReview      Phase = "Review"
	PhaseDone        Phase = "Done"
)

// AllPhases lists the phases in lifecycle order.
var AllPhases = []Phase{PhasePlanning, PhaseDevelopment, PhaseReview, PhaseDone}

// ParsePhase matches a phase label case-insensitively.
func ParsePhase(s string) (Phase, bool) {
	s = strings.TrimSpace(s)
	for _, p := range AllPhases {
		if strings.EqualFold(s, string(p)) {
			return p, true
		}
	}
	return "", false
}

// Index returns the phase's position in lifecycle order, or -1 when unknown.
func (p Phase) Index() int {
	for i, known := range AllPhases {
		if p == known {
			return i
		}
	}
	return -1
}

// Next returns the following phase. Done is terminal.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i+1 >= len(AllPhases) {
		return p
	}
	return AllPhases[i+1]
}

// Before reports whether p comes strictly before other.
func (p Phase) Before(other Phase) bool {
	return p.Index() < other.Index()
}

// Label is the status text written back to a source when a task is promoted into p.
func (p Phase) Label() string {
	return string(p)
}

// RunStatus represents the lifecycle state of a run record.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusTimedOut  RunStatus = "timed_out"
	RunStatusDropped   RunStatus = "dropped"
	RunStatusCompleted RunStatus = "completed"
)

// ParseRunStatus validates a persisted status label.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch st := RunStatus(s); st {
	case RunStatusQueued, RunStatusRunning, RunStatusTimedOut, RunStatusDropped, RunStatusCompleted:
		return st, true
	}
	return "", false
}

// Terminal reports whether the record needs reactivation to become active again.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusDropped
}

// Active reports whether the record is queued or running.
func (s RunStatus) Active() bool {
	return s == RunStatusQueued || s == RunStatusRunning
}

// PollMode selects the recheck cadence of a run record.
type PollMode string

const (
	PollModeNormal   PollMode = "normal"
	PollModeRecovery PollMode = "recovery"
)

// Millis is a wall-clock instant in Unix milliseconds, the unit of the snapshot wire format.
type Millis int64

// ToMillis converts t to Unix milliseconds. The zero time maps to 0.
func ToMillis(t time.Time) Millis {
	if t.IsZero() {
		return 0
	}
	return Millis(t.UnixMilli())
}

// Time converts m back to a time.Time.
func (m Millis) Time() time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m))
}

// Add returns m shifted by d.
func (m Millis) Add(d time.Duration) Millis {
	return m + Millis(d.Milliseconds())
}

// Since returns the time elapsed between m and now.
func (m Millis) Since(now Millis) time.Duration {
	return time.Duration(now-m) * time.Millisecond
}

// TaskMeta is one logical task as reported by the task sources.
type TaskMeta struct {
	TaskID     string    `json:"taskId"`
	Title      string    `json:"title"`
	Assignees  []Role    `json:"assignees"`
	Status     string    `json:"status"`
	SourcePath string    `json:"sourcePath"`
	Source     string    `json:"source,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DisplayTitle returns the title, falling back to the task ID.
func (t TaskMeta) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.TaskID
}

// RunKey identifies a run record. At most one record exists per key.
type RunKey struct {
	Role   Role
	TaskID string
}

func (k RunKey) String() string {
	return string(k.Role) + ":" + k.TaskID
}

// Less orders keys by task ID, then canonical role order.
func (k RunKey) Less(other RunKey) bool {
	if k.TaskID != other.TaskID {
		return k.TaskID < other.TaskID
	}
	return k.Role.Rank() < other.Role.Rank()
}

// RunRecord tracks one role's activity on one task.
type RunRecord struct {
	TaskID         string    `json:"taskId"`
	Role           Role      `json:"role"`
	Status         RunStatus `json:"status"`
	Phase          Phase     `json:"phase"`
	StartedAt      Millis    `json:"startedAt"`
	LastRunAt      Millis    `json:"lastRunAt"`
	NextPollAt     Millis    `json:"nextPollAt"`
	PollMode       PollMode  `json:"pollMode"`
	Attempts       int       `json:"attempts"`
	TaskTitle      string    `json:"taskTitle"`
	LastTransition string    `json:"lastTransition,omitempty"`
	PhaseEnteredAt Millis    `json:"phaseEnteredAt,omitempty"`
	LastPolledAt   Millis    `json:"lastPolledAt,omitempty"`
}

// Key returns the record's composite key.
func (r *RunRecord) Key() RunKey {
	return RunKey{Role: r.Role, TaskID: r.TaskID}
}

// EnteredAt returns when the record's phase was entered, falling back to StartedAt.
func (r *RunRecord) EnteredAt() Millis {
	if r.PhaseEnteredAt != 0 {
		return r.PhaseEnteredAt
	}
	return r.StartedAt
}

// LogCapacity bounds RunnerState.Log.
const LogCapacity = 500

// LogEntry is one audit log line in the snapshot.
type LogEntry struct {
	At     Millis `json:"at"`
	Role   string `json:"role"`
	TaskID string `json:"taskId"`
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

// Log events.
const (
	EventCreated   = "created"
	EventPhase     = "phase"
	EventDropped   = "dropped"
	EventStatus    = "status"
	EventHeartbeat = "heartbeat"
	EventPromoted  = "promoted"
)

// RunnerState is the reconciler's aggregate root and the persisted snapshot.
type RunnerState struct {
	UpdatedAt        Millis     `json:"updatedAt"`
	PollIntervalMs   int64      `json:"pollIntervalMs"`
	TimeoutMs        int64      `json:"timeoutMs"`
	FallbackMs       int64      `json:"fallbackMs"`
	LastLoopAt       Millis     `json:"lastLoopAt"`
	MissingBriefings []string   `json:"missingBriefings"`
	Runs             RunSet     `json:"runs"`
	Log              []LogEntry `json:"log"`
}

// NewRunnerState returns an empty state carrying the effective tunables.
func NewRunnerState(pollInterval, timeout, fallback time.Duration, now time.Time) *RunnerState {
	return &RunnerState{
		UpdatedAt:        ToMillis(now),
		PollIntervalMs:   pollInterval.Milliseconds(),
		TimeoutMs:        timeout.Milliseconds(),
		FallbackMs:       fallback.Milliseconds(),
		MissingBriefings: []string{},
		Runs:             RunSet{},
		Log:              []LogEntry{},
	}
}

// AppendLog adds an entry and trims the log to LogCapacity, oldest first.
func (s *RunnerState) AppendLog(e LogEntry) {
	s.Log = append(s.Log, e)
	if over := len(s.Log) - LogCapacity; over > 0 {
		s.Log = append(s.Log[:0:0], s.Log[over:]...)
	}
}

// PhaseMemory is the most recently entered phase of a task.
type PhaseMemory struct {
	Phase     Phase
	EnteredAt Millis
}

// PhaseMemory reconstructs, per task, the phase of the record with the latest entry time.
func (s *RunnerState) PhaseMemory() map[string]PhaseMemory {
	out := make(map[string]PhaseMemory)
	for _, run := range s.Runs {
		if run.Phase.Index() < 0 {
			continue
		}
		entered := run.EnteredAt()
		if cur, ok := out[run.TaskID]; ok {
			if cur.EnteredAt > entered || (cur.EnteredAt == entered && !cur.Phase.Before(run.Phase)) {
				continue
			}
		}
		out[run.TaskID] = PhaseMemory{Phase: run.Phase, EnteredAt: entered}
	}
	return out
}

// Counts summarizes run statuses for the tick summary.
type Counts struct {
	Total          int
	Active         int
	TimedOutOrDrop int
	Completed      int
}

// Counts tallies the current run records.
func (s *RunnerState) Counts() Counts {
	var c Counts
	for _, run := range s.Runs {
		c.Total++
		switch {
		case run.Status.Active():
			c.Active++
		case run.Status == RunStatusTimedOut || run.Status == RunStatusDropped:
			c.TimedOutOrDrop++
		case run.Status == RunStatusCompleted:
			c.Completed++
		}
	}
	return c
}

// Clone returns a deep copy of the state.
func (s *RunnerState) Clone() *RunnerState {
	cp := *s
	cp.MissingBriefings = append([]string{}, s.MissingBriefings...)
	cp.Runs = s.Runs.Clone()
	cp.Log = append([]LogEntry{}, s.Log...)
	return &cp
}
