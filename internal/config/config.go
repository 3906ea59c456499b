// Package config loads runner configuration from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrInvalidValue marks a configuration value that cannot be used.
var ErrInvalidValue = errors.New("invalid configuration value")

// Source kinds.
const (
	SourceMarkdown = "markdown"
	SourceBoard    = "board"
	SourceSQLite   = "sqlite"
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the complete runner configuration.
type Config struct {
	WorkspaceRoot string `mapstructure:"workspace_root"`

	State StateConfig `mapstructure:"state"`

	// Run lifecycle tunables, in milliseconds.
	PollIntervalMs          int64 `mapstructure:"poll_interval_ms"`
	RunTimeoutMs            int64 `mapstructure:"run_timeout_ms"`
	FallbackMs              int64 `mapstructure:"fallback_ms"`
	PhaseAdvanceMs          int64 `mapstructure:"phase_advance_ms"`
	DevFeedbackTimeoutMs    int64 `mapstructure:"dev_feedback_timeout_ms"`
	ReviewFeedbackTimeoutMs int64 `mapstructure:"review_feedback_timeout_ms"`

	Sources []SourceConfig `mapstructure:"sources"`

	Log   LogConfig `mapstructure:"log"`
	API   APIConfig `mapstructure:"api"`
	Watch bool      `mapstructure:"watch"`
}

// StateConfig selects where the snapshot lives.
type StateConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DBPath  string `mapstructure:"db_path"`
}

// SourceConfig declares one task source. Higher Rank wins field conflicts.
type SourceConfig struct {
	Name     string   `mapstructure:"name"`
	Kind     string   `mapstructure:"kind"`
	Path     string   `mapstructure:"path"`
	Patterns []string `mapstructure:"patterns"`
	Rank     int      `mapstructure:"rank"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// File is empty for stderr.
	File string `mapstructure:"file"`
}

// APIConfig controls the read-only HTTP API.
type APIConfig struct {
	// Listen is empty to disable the API.
	Listen string `mapstructure:"listen"`
}

// Default tunables.
const (
	DefaultPollIntervalMs       = 10_000
	DefaultRunTimeoutMs         = 300_000
	DefaultFallbackMs           = 300_000
	DefaultPhaseAdvanceMs       = 86_400_000
	DefaultDevFeedbackTimeoutMs = 3_600_000
)

// Default returns the configuration for a workspace root.
func Default(root string) *Config {
	return &Config{
		WorkspaceRoot: root,
		State: StateConfig{
			Backend: BackendFile,
			Path:    filepath.Join(root, "memory", "mc", "activity-runner-state.json"),
			DBPath:  filepath.Join(root, "memory", "mc", "missionctl.db"),
		},
		PollIntervalMs:          DefaultPollIntervalMs,
		RunTimeoutMs:            DefaultRunTimeoutMs,
		FallbackMs:              DefaultFallbackMs,
		PhaseAdvanceMs:          DefaultPhaseAdvanceMs,
		DevFeedbackTimeoutMs:    DefaultDevFeedbackTimeoutMs,
		ReviewFeedbackTimeoutMs: DefaultDevFeedbackTimeoutMs,
		Log:                     LogConfig{Level: "info"},
	}
}

// DefaultSources returns the task sources used when none are configured.
func DefaultSources(cfg *Config) []SourceConfig {
	return []SourceConfig{
		{
			Name: "tasks",
			Kind: SourceMarkdown,
			Path: cfg.WorkspaceRoot,
			Patterns: []string{
				"mission-control/tasks/**/*.md",
				"mission-control/primitives/tasks/**/*.md",
			},
			Rank: 20,
		},
		{
			Name: "board",
			Kind: SourceBoard,
			Path: filepath.Join(cfg.WorkspaceRoot, "mission-control", "board.md"),
			Rank: 10,
		},
		{
			Name: "db",
			Kind: SourceSQLite,
			Path: cfg.State.DBPath,
			Rank: 30,
		},
	}
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"workspace_root":             "WORKSPACE_ROOT",
	"state.path":                 "MC_STATE_PATH",
	"state.backend":              "MC_STATE_BACKEND",
	"state.db_path":              "MC_DB_PATH",
	"poll_interval_ms":           "MC_ACTIVITY_RUN_INTERVAL_MS",
	"run_timeout_ms":             "MC_ACTIVITY_RUN_TIMEOUT_MS",
	"fallback_ms":                "MC_ACTIVITY_RUN_FALLBACK_MS",
	"phase_advance_ms":           "PHASE_ADVANCE_MS",
	"dev_feedback_timeout_ms":    "DEV_FEEDBACK_TIMEOUT_MS",
	"review_feedback_timeout_ms": "REVIEW_FEEDBACK_TIMEOUT_MS",
	"log.level":                  "MC_LOG_LEVEL",
	"log.file":                   "MC_LOG_FILE",
	"api.listen":                 "MC_API_LISTEN",
	"watch":                      "MC_WATCH",
}

// durationKeys must hold positive integers.
var durationKeys = []string{
	"poll_interval_ms",
	"run_timeout_ms",
	"fallback_ms",
	"phase_advance_ms",
	"dev_feedback_timeout_ms",
	"review_feedback_timeout_ms",
}

// Options control where Load looks.
type Options struct {
	// ConfigFile is an explicit YAML file. When empty, missionctl.yaml in
	// the workspace root is used if present.
	ConfigFile string
	// WorkspaceRoot overrides WORKSPACE_ROOT and the working directory.
	WorkspaceRoot string
}

// Load builds the configuration. Invalid tunables are a hard error.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	root := opts.WorkspaceRoot
	if root == "" {
		root = os.Getenv("WORKSPACE_ROOT")
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve workspace root: %w", err)
		}
		root = wd
	}
	root, _ = filepath.Abs(root)
	setDefaults(v, Default(root))

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	v.Set("workspace_root", root)

	file := opts.ConfigFile
	if file == "" {
		candidate := filepath.Join(root, "missionctl.yaml")
		if _, err := os.Stat(candidate); err == nil {
			file = candidate
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var errs ValidationErrors
	millis := make(map[string]int64, len(durationKeys))
	for _, key := range durationKeys {
		raw := v.Get(key)
		if key == "review_feedback_timeout_ms" && !v.IsSet(key) {
			continue
		}
		n, err := positiveMillis(raw)
		if err != nil {
			errs = append(errs, ValidationError{Field: key, Env: envBindings[key], Value: raw, Message: err.Error()})
			continue
		}
		millis[key] = n
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if _, ok := millis["review_feedback_timeout_ms"]; !ok {
		millis["review_feedback_timeout_ms"] = millis["dev_feedback_timeout_ms"]
	}
	for key, n := range millis {
		v.Set(key, n)
	}
	v.Set("watch", cast.ToBool(strings.TrimSpace(cast.ToString(v.Get("watch")))))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.resolvePaths()
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources(&cfg)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("workspace_root", d.WorkspaceRoot)

	v.SetDefault("state.backend", d.State.Backend)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("state.db_path", d.State.DBPath)

	v.SetDefault("poll_interval_ms", d.PollIntervalMs)
	v.SetDefault("run_timeout_ms", d.RunTimeoutMs)
	v.SetDefault("fallback_ms", d.FallbackMs)
	v.SetDefault("phase_advance_ms", d.PhaseAdvanceMs)
	v.SetDefault("dev_feedback_timeout_ms", d.DevFeedbackTimeoutMs)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("watch", false)
}

// positiveMillis accepts base-10 integer strings and whole numbers greater
// than zero.
func positiveMillis(raw any) (int64, error) {
	var n int64
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: not an integer", ErrInvalidValue)
		}
		n = parsed
	case float32, float64:
		f, err := cast.ToFloat64E(v)
		if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return 0, fmt.Errorf("%w: not an integer", ErrInvalidValue)
		}
		n = int64(f)
	default:
		parsed, err := cast.ToInt64E(v)
		if err != nil {
			return 0, fmt.Errorf("%w: not an integer", ErrInvalidValue)
		}
		n = parsed
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidValue)
	}
	return n, nil
}

// resolvePaths anchors relative paths at the workspace root.
func (c *Config) resolvePaths() {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.WorkspaceRoot, p)
	}
	c.State.Path = abs(c.State.Path)
	c.State.DBPath = abs(c.State.DBPath)
	c.Log.File = abs(c.Log.File)
	for i := range c.Sources {
		c.Sources[i].Path = abs(c.Sources[i].Path)
	}
}

// PollInterval returns the poll interval as a time.Duration.
func (c *Config) PollInterval() time.Duration { return ms(c.PollIntervalMs) }

// RunTimeout returns the run timeout as a time.Duration.
func (c *Config) RunTimeout() time.Duration { return ms(c.RunTimeoutMs) }

// Fallback returns the recovery poll interval as a time.Duration.
func (c *Config) Fallback() time.Duration { return ms(c.FallbackMs) }

// PhaseAdvance returns the dwell auto-advance threshold.
func (c *Config) PhaseAdvance() time.Duration { return ms(c.PhaseAdvanceMs) }

// DevFeedbackTimeout returns the dev feedback hold.
func (c *Config) DevFeedbackTimeout() time.Duration { return ms(c.DevFeedbackTimeoutMs) }

// ReviewFeedbackTimeout returns the review feedback hold.
func (c *Config) ReviewFeedbackTimeout() time.Duration { return ms(c.ReviewFeedbackTimeoutMs) }

func ms(n int64) time.Duration {
	return time.Duration(n) * time.Millisecond
}
