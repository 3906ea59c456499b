package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()

	cfg, err := Load(Options{WorkspaceRoot: root})
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout())
	assert.Equal(t, 5*time.Minute, cfg.Fallback())
	assert.Equal(t, 24*time.Hour, cfg.PhaseAdvance())
	assert.Equal(t, time.Hour, cfg.DevFeedbackTimeout())
	assert.Equal(t, time.Hour, cfg.ReviewFeedbackTimeout())
	assert.Equal(t, BackendFile, cfg.State.Backend)
	assert.Equal(t, filepath.Join(root, "memory", "mc", "activity-runner-state.json"), cfg.State.Path)
	assert.False(t, cfg.Watch)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, SourceMarkdown, cfg.Sources[0].Kind)
	assert.Equal(t, filepath.Join(root, "mission-control", "board.md"), cfg.Sources[1].Path)
	assert.Equal(t, cfg.State.DBPath, cfg.Sources[2].Path)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv("MC_ACTIVITY_RUN_INTERVAL_MS", "2500")
	t.Setenv("DEV_FEEDBACK_TIMEOUT_MS", " 60000 ")
	t.Setenv("MC_STATE_BACKEND", "sqlite")
	t.Setenv("MC_WATCH", "true")
	t.Setenv("MC_API_LISTEN", "127.0.0.1:7070")

	cfg, err := Load(Options{WorkspaceRoot: root})
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, time.Minute, cfg.DevFeedbackTimeout())
	assert.Equal(t, time.Minute, cfg.ReviewFeedbackTimeout(), "review timeout follows dev timeout")
	assert.Equal(t, BackendSQLite, cfg.State.Backend)
	assert.True(t, cfg.Watch)
	assert.Equal(t, "127.0.0.1:7070", cfg.API.Listen)
}

func TestLoadReviewTimeoutOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEV_FEEDBACK_TIMEOUT_MS", "1000")
	t.Setenv("REVIEW_FEEDBACK_TIMEOUT_MS", "2000")

	cfg, err := Load(Options{WorkspaceRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.DevFeedbackTimeout())
	assert.Equal(t, 2*time.Second, cfg.ReviewFeedbackTimeout())
}

func TestLoadRejectsInvalidTunables(t *testing.T) {
	for _, tc := range []struct {
		env   string
		value string
	}{
		{"MC_ACTIVITY_RUN_INTERVAL_MS", "soon"},
		{"MC_ACTIVITY_RUN_TIMEOUT_MS", "0"},
		{"MC_ACTIVITY_RUN_FALLBACK_MS", "-10"},
		{"PHASE_ADVANCE_MS", "1.5"},
		{"MC_ACTIVITY_RUN_TIMEOUT_MS", "0x10"},
		{"DEV_FEEDBACK_TIMEOUT_MS", "1e3"},
		{"REVIEW_FEEDBACK_TIMEOUT_MS", "never"},
	} {
		t.Run(tc.env, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.env, tc.value)

			_, err := Load(Options{WorkspaceRoot: t.TempDir()})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidValue))
			assert.Contains(t, err.Error(), tc.env)
		})
	}
}

func TestLoadParsesDecimalIntegers(t *testing.T) {
	clearEnv(t)
	t.Setenv("MC_ACTIVITY_RUN_INTERVAL_MS", "010")

	cfg, err := Load(Options{WorkspaceRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval())
}

func TestLoadRejectsFractionalFileTunable(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "missionctl.yaml"), []byte("fallback_ms: 2.5\nrun_timeout_ms: 60000.0\n"), 0644))

	_, err := Load(Options{WorkspaceRoot: root})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))
	assert.Contains(t, err.Error(), "MC_ACTIVITY_RUN_FALLBACK_MS")
	assert.NotContains(t, err.Error(), "MC_ACTIVITY_RUN_TIMEOUT_MS")
}

func TestLoadRejectsInvalidSources(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	yaml := `
sources:
  - name: tracker
    kind: jira
    path: tracker
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "missionctl.yaml"), []byte(yaml), 0644))

	_, err := Load(Options{WorkspaceRoot: root})
	require.Error(t, err)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "sources[0].kind", verrs[0].Field)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	yaml := `
poll_interval_ms: 1000
state:
  backend: sqlite
  db_path: data/mc.db
sources:
  - name: notes
    kind: markdown
    path: notes
    patterns: ["**/*.md"]
    rank: 5
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "missionctl.yaml"), []byte(yaml), 0644))

	cfg, err := Load(Options{WorkspaceRoot: root})
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, filepath.Join(root, "data", "mc.db"), cfg.State.DBPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, filepath.Join(root, "notes"), cfg.Sources[0].Path)
	assert.Equal(t, []string{"**/*.md"}, cfg.Sources[0].Patterns)
}

func TestValidateSources(t *testing.T) {
	cfg := Default("/ws")
	cfg.Sources = []SourceConfig{
		{Name: "a", Kind: SourceBoard, Path: "/ws/board.md"},
		{Name: "a", Kind: "jira", Path: ""},
	}
	cfg.State.Backend = "redis"

	errs := cfg.Validate()
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"state.backend", "sources[1].name", "sources[1].kind", "sources[1].path"}, fields)
}

func TestPositiveMillis(t *testing.T) {
	tests := []struct {
		raw  any
		want int64
		ok   bool
	}{
		{"250", 250, true},
		{" 010 ", 10, true},
		{"0x10", 0, false},
		{"1.5", 0, false},
		{"", 0, false},
		{"-5", 0, false},
		{2000.0, 2000, true},
		{1.5, 0, false},
		{float32(0.25), 0, false},
		{42, 42, true},
		{int64(0), 0, false},
	}
	for _, tt := range tests {
		got, err := positiveMillis(tt.raw)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidValue, "%#v", tt.raw)
			continue
		}
		require.NoError(t, err, "%#v", tt.raw)
		assert.Equal(t, tt.want, got, "%#v", tt.raw)
	}
}
