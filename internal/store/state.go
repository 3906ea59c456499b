package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/missionctl/internal/models"
)

// StateStore loads and saves the runner snapshot.
type StateStore interface {
	Load(ctx context.Context) (*models.RunnerState, error)
	Save(ctx context.Context, state *models.RunnerState) error
}

// Defaults are the tunables written into a fresh snapshot.
type Defaults struct {
	PollInterval time.Duration
	RunTimeout   time.Duration
	Fallback     time.Duration
}

// State returns an empty snapshot carrying the defaults.
func (d Defaults) State(now time.Time) *models.RunnerState {
	return models.NewRunnerState(d.PollInterval, d.RunTimeout, d.Fallback, now)
}

// EncodeState renders the snapshot as indented JSON with a trailing newline.
func EncodeState(state *models.RunnerState) ([]byte, error) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeState decodes a snapshot without ever failing. Each top-level field
// is decoded on its own and keeps the value from defaults when it is absent
// or malformed. Unusable runs and log entries are skipped.
func DecodeState(data []byte, defaults *models.RunnerState) *models.RunnerState {
	state := defaults
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return state
	}

	decodeMillis(fields["updatedAt"], &state.UpdatedAt)
	decodeMillis(fields["lastLoopAt"], &state.LastLoopAt)
	decodePositive(fields["pollIntervalMs"], &state.PollIntervalMs)
	decodePositive(fields["timeoutMs"], &state.TimeoutMs)
	decodePositive(fields["fallbackMs"], &state.FallbackMs)

	if raw, ok := fields["missingBriefings"]; ok {
		var missing []string
		if err := json.Unmarshal(raw, &missing); err == nil && missing != nil {
			state.MissingBriefings = missing
		}
	}
	if raw, ok := fields["runs"]; ok {
		var runs models.RunSet
		if err := json.Unmarshal(raw, &runs); err == nil && runs != nil {
			state.Runs = runs
		}
	}
	if raw, ok := fields["log"]; ok {
		if entries, ok := decodeLog(raw); ok {
			state.Log = entries
		}
	}
	return state
}

func decodeMillis(raw json.RawMessage, dst *models.Millis) {
	if raw == nil {
		return
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil && v >= 0 {
		*dst = models.Millis(v)
	}
}

func decodePositive(raw json.RawMessage, dst *int64) {
	if raw == nil {
		return
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil && v > 0 {
		*dst = int64(v)
	}
}

func decodeLog(raw json.RawMessage) ([]models.LogEntry, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}
	entries := make([]models.LogEntry, 0, len(items))
	for _, item := range items {
		var e models.LogEntry
		if err := json.Unmarshal(item, &e); err != nil || e.Event == "" {
			continue
		}
		entries = append(entries, e)
	}
	if over := len(entries) - models.LogCapacity; over > 0 {
		entries = entries[over:]
	}
	return entries, true
}

// FileStore keeps the snapshot in a single JSON file.
type FileStore struct {
	path     string
	defaults Defaults
	now      func() time.Time
}

// NewFileStore creates a file-backed state store.
func NewFileStore(path string, defaults Defaults) *FileStore {
	return &FileStore{path: path, defaults: defaults, now: time.Now}
}

// Path returns the snapshot location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the snapshot. A missing or unreadable file yields defaults.
func (f *FileStore) Load(ctx context.Context) (*models.RunnerState, error) {
	defaults := f.defaults.State(f.now())
	data, err := os.ReadFile(f.path)
	if err != nil {
		return defaults, nil
	}
	return DecodeState(data, defaults), nil
}

// Save writes the snapshot atomically through a temp file and rename.
func (f *FileStore) Save(ctx context.Context, state *models.RunnerState) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// SQLiteState keeps the snapshot in the runner_state table.
type SQLiteState struct {
	store    *Store
	defaults Defaults
	now      func() time.Time
}

// StateStore returns a StateStore backed by this database.
func (s *Store) StateStore(defaults Defaults) *SQLiteState {
	return &SQLiteState{store: s, defaults: defaults, now: time.Now}
}

// Load reads the snapshot row. A missing row yields defaults.
func (q *SQLiteState) Load(ctx context.Context) (*models.RunnerState, error) {
	defaults := q.defaults.State(q.now())
	data, err := q.store.ReadSnapshot(ctx)
	if err != nil {
		return defaults, err
	}
	if data == nil {
		return defaults, nil
	}
	return DecodeState(data, defaults), nil
}

// Save upserts the snapshot row.
func (q *SQLiteState) Save(ctx context.Context, state *models.RunnerState) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	return q.store.WriteSnapshot(ctx, data)
}
