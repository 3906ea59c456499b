package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/missionctl/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testDefaults = Defaults{
	PollInterval: 10 * time.Second,
	RunTimeout:   5 * time.Minute,
	Fallback:     5 * time.Minute,
}

func sampleState() *models.RunnerState {
	st := testDefaults.State(time.UnixMilli(1_700_000_000_000))
	st.LastLoopAt = 1_700_000_000_000
	st.MissingBriefings = []string{"pm"}
	st.Runs.Put(&models.RunRecord{
		TaskID: "proj-001", Role: models.RoleDev, Status: models.RunStatusRunning,
		Phase: models.PhaseDevelopment, StartedAt: 1, LastRunAt: 2, NextPollAt: 3,
		PollMode: models.PollModeNormal, Attempts: 2, TaskTitle: "Build it",
	})
	st.AppendLog(models.LogEntry{At: 1, Role: "dev", TaskID: "proj-001", Event: models.EventCreated, Reason: "Development: created"})
	return st
}

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, "PROJ-007", "Write docs", "Planning", []models.Role{models.RolePlanner})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.TaskID != "proj-007" {
		t.Errorf("Expected lower-cased task id, got %s", task.TaskID)
	}

	got, err := s.GetTask(ctx, "proj-007")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Write docs" {
		t.Errorf("Expected title 'Write docs', got %s", got.Title)
	}
	if len(got.Assignees) != 1 || got.Assignees[0] != models.RolePlanner {
		t.Errorf("Expected assignees [planner], got %v", got.Assignees)
	}

	if err := s.UpdateTaskStatus(ctx, "proj-007", "In Progress"); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	got, _ = s.GetTask(ctx, "proj-007")
	if got.Status != "In Progress" {
		t.Errorf("Expected status 'In Progress', got %s", got.Status)
	}
	if got.UpdatedAt.Before(task.UpdatedAt) {
		t.Error("updated_at should not move backwards")
	}

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(tasks))
	}
}

func TestTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetTask(ctx, "nope-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateTaskStatus(ctx, "nope-001", "Done"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateTaskID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateTask(ctx, "proj-001", "A", "", nil); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := s.CreateTask(ctx, "PROJ-001", "B", "", nil); err == nil {
		t.Error("Expected duplicate task id to be rejected")
	}
}

func TestPDR(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.WritePDR("promote", "abc", "success", "proj-001", "Planning -> Development"); err != nil {
		t.Fatalf("WritePDR failed: %v", err)
	}
	if _, err := s.WritePDR("promote", "def", "failure", "proj-002", "disk full"); err != nil {
		t.Fatalf("WritePDR failed: %v", err)
	}

	all, err := s.ListPDRs("", 0)
	if err != nil {
		t.Fatalf("ListPDRs failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 records, got %d", len(all))
	}

	one, err := s.ListPDRs("proj-002", 10)
	if err != nil {
		t.Fatalf("ListPDRs failed: %v", err)
	}
	if len(one) != 1 || one[0].Outcome != "failure" {
		t.Errorf("Expected the proj-002 failure record, got %+v", one)
	}
}

func TestSQLiteStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	st := s.StateStore(testDefaults)

	loaded, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load on empty db failed: %v", err)
	}
	if len(loaded.Runs) != 0 || loaded.PollIntervalMs != 10_000 {
		t.Errorf("Expected defaults, got %+v", loaded)
	}

	if err := st.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	next := sampleState()
	next.MissingBriefings = []string{}
	if err := st.Save(ctx, next); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err = st.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(loaded.Runs))
	}
	if len(loaded.MissingBriefings) != 0 {
		t.Errorf("Expected last write to win, got %v", loaded.MissingBriefings)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory", "mc", "activity-runner-state.json")
	fs := NewFileStore(path, testDefaults)
	ctx := context.Background()

	if err := fs.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Error("Expected a trailing newline")
	}
	if !strings.Contains(string(data), "\n  \"runs\": [") {
		t.Error("Expected indented JSON with runs as an array")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected no temp files left behind, got %d entries", len(entries))
	}

	loaded, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	run, ok := loaded.Runs.Get(models.RunKey{Role: models.RoleDev, TaskID: "proj-001"})
	if !ok {
		t.Fatal("Expected dev run to survive the round trip")
	}
	if run.Attempts != 2 || run.Status != models.RunStatusRunning {
		t.Errorf("Unexpected run after round trip: %+v", run)
	}
	if loaded.LastLoopAt != 1_700_000_000_000 {
		t.Errorf("Expected lastLoopAt to round trip, got %d", loaded.LastLoopAt)
	}
}

func TestFileStoreMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	missing := NewFileStore(filepath.Join(dir, "absent.json"), testDefaults)
	st, err := missing.Load(ctx)
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if st.TimeoutMs != 300_000 || st.Runs == nil || st.Log == nil {
		t.Errorf("Expected defaults, got %+v", st)
	}

	path := filepath.Join(dir, "corrupt.json")
	os.WriteFile(path, []byte("{not json"), 0644)
	st, err = NewFileStore(path, testDefaults).Load(ctx)
	if err != nil {
		t.Fatalf("Load of corrupt file failed: %v", err)
	}
	if len(st.Runs) != 0 {
		t.Errorf("Expected empty runs, got %d", len(st.Runs))
	}
}

func TestDecodeStateFieldByField(t *testing.T) {
	data := []byte(`{
		"updatedAt": "yesterday",
		"pollIntervalMs": -5,
		"timeoutMs": 60000,
		"missingBriefings": {"bad": true},
		"runs": [
			{"taskId": "proj-001", "role": "dev", "status": "running", "phase": "Development", "pollMode": "normal"},
			{"taskId": "proj-001", "role": "wizard", "status": "running"},
			"garbage",
			{"taskId": "proj-002", "role": "pm", "status": "exploded"}
		],
		"log": [{"at": 1, "event": "created"}, 42, {"at": 2}]
	}`)
	defaults := testDefaults.State(time.UnixMilli(5))

	st := DecodeState(data, defaults)
	if st.UpdatedAt != 5 {
		t.Errorf("Expected malformed updatedAt to keep default, got %d", st.UpdatedAt)
	}
	if st.PollIntervalMs != 10_000 {
		t.Errorf("Expected non-positive pollIntervalMs to keep default, got %d", st.PollIntervalMs)
	}
	if st.TimeoutMs != 60_000 {
		t.Errorf("Expected timeoutMs from snapshot, got %d", st.TimeoutMs)
	}
	if st.MissingBriefings == nil || len(st.MissingBriefings) != 0 {
		t.Errorf("Expected default missingBriefings, got %v", st.MissingBriefings)
	}
	if len(st.Runs) != 1 {
		t.Errorf("Expected only the valid run to survive, got %d", len(st.Runs))
	}
	if len(st.Log) != 1 {
		t.Errorf("Expected one usable log entry, got %d", len(st.Log))
	}
}

func TestDecodeStateTrimsLog(t *testing.T) {
	entries := make([]models.LogEntry, models.LogCapacity+10)
	for i := range entries {
		entries[i] = models.LogEntry{At: models.Millis(i), Event: models.EventHeartbeat}
	}
	raw, _ := json.Marshal(map[string]any{"log": entries})

	st := DecodeState(raw, testDefaults.State(time.Now()))
	if len(st.Log) != models.LogCapacity {
		t.Fatalf("Expected %d entries, got %d", models.LogCapacity, len(st.Log))
	}
	if st.Log[0].At != 10 {
		t.Errorf("Expected oldest entries trimmed, first is %d", st.Log[0].At)
	}
}
