package main

import (
	"fmt"

	"github.com/fentz26/missionctl/internal/audit"
	"github.com/fentz26/missionctl/internal/briefing"
	"github.com/fentz26/missionctl/internal/config"
	"github.com/fentz26/missionctl/internal/controlplane"
	"github.com/fentz26/missionctl/internal/logging"
	"github.com/fentz26/missionctl/internal/phase"
	"github.com/fentz26/missionctl/internal/promote"
	"github.com/fentz26/missionctl/internal/reconciler"
	"github.com/fentz26/missionctl/internal/store"
	"github.com/fentz26/missionctl/internal/tasksource"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	// db is the runner database: decision records, and the snapshot when
	// the sqlite backend is selected.
	db     *store.Store
	stores map[string]*store.Store

	states  store.StateStore
	repo    *tasksource.Repository
	layout  *briefing.Layout
	service *controlplane.Service
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{ConfigFile: configFile, WorkspaceRoot: workspaceRoot})
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.New(cfg.Log.File, level)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, stores: make(map[string]*store.Store)}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg

	db, err := a.openStore(cfg.State.DBPath)
	if err != nil {
		return err
	}
	a.db = db

	defaults := store.Defaults{
		PollInterval: cfg.PollInterval(),
		RunTimeout:   cfg.RunTimeout(),
		Fallback:     cfg.Fallback(),
	}
	switch cfg.State.Backend {
	case config.BackendSQLite:
		a.states = db.StateStore(defaults)
	default:
		a.states = store.NewFileStore(cfg.State.Path, defaults)
	}

	a.repo, err = tasksource.FromConfig(cfg.Sources, func(path string) (tasksource.TaskStore, error) {
		return a.openStore(path)
	}, a.logger)
	if err != nil {
		return err
	}

	pdr := audit.NewPDRWriter(db, a.logger.WithComponent("audit"))
	promoter := promote.NewFeedbackPromoter(a.repo, cfg.DevFeedbackTimeout(), cfg.ReviewFeedbackTimeout(), pdr)
	rec := reconciler.New(reconciler.Config{
		PollInterval: cfg.PollInterval(),
		RunTimeout:   cfg.RunTimeout(),
		Fallback:     cfg.Fallback(),
	}, &phase.Resolver{
		PhaseAdvance:          cfg.PhaseAdvance(),
		DevFeedbackTimeout:    cfg.DevFeedbackTimeout(),
		ReviewFeedbackTimeout: cfg.ReviewFeedbackTimeout(),
	})
	a.layout = &briefing.Layout{Root: cfg.WorkspaceRoot}

	a.service = controlplane.NewService(controlplane.Options{
		Tasks:      a.repo,
		States:     a.states,
		Reconciler: rec,
		Promoter:   promoter,
		Briefings:  a.layout,
		Logger:     a.logger,
	})
	return nil
}

// openStore opens each database path once.
func (a *app) openStore(path string) (*store.Store, error) {
	if s, ok := a.stores[path]; ok {
		return s, nil
	}
	s, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	a.stores[path] = s
	return s, nil
}

// taskDB returns the database backing the first sqlite task source, or the
// runner database when none is configured.
func (a *app) taskDB() (*store.Store, error) {
	for _, sc := range a.cfg.Sources {
		if sc.Kind == config.SourceSQLite {
			return a.openStore(sc.Path)
		}
	}
	return a.db, nil
}

func (a *app) Close() {
	for path, s := range a.stores {
		if err := s.Close(); err != nil {
			a.logger.Warn("database close failed", "path", path, "error", err)
		}
	}
	a.logger.Close()
}
