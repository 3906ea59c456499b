package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fentz26/missionctl/internal/controlplane"
	"github.com/fentz26/missionctl/internal/scheduler"
	"github.com/fentz26/missionctl/internal/watch"
)

var (
	listenAddr  string
	watchFiles  bool
	noWatch     bool
	shutdownTTL = 30 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation loop",
	Long: `Runs a tick immediately and then on every poll interval until interrupted.
Optionally serves the read-only runs API and ticks early on file changes.`,
	RunE: runLoop,
}

func init() {
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the read-only API (overrides api.listen)")
	runCmd.Flags().BoolVar(&watchFiles, "watch", false, "Tick early when task files change (overrides watch)")
	runCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable file watching")
}

func runLoop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.service.Init(ctx); err != nil {
		return err
	}

	sched := scheduler.New(func(ctx context.Context) error {
		_, err := a.service.Tick(ctx)
		return err
	}, &scheduler.Config{Interval: a.cfg.PollInterval()}, a.logger)

	// The first tick completes before the API and watcher come up.
	sched.RunOnce()

	g, gctx := errgroup.WithContext(ctx)

	sched.Start()
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	listen := a.cfg.API.Listen
	if listenAddr != "" {
		listen = listenAddr
	}
	if listen != "" {
		server := controlplane.NewServer(a.service, a.db, listen, a.logger)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTTL)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if (a.cfg.Watch || watchFiles) && !noWatch {
		w, err := watch.New(sched.Trigger, watch.DefaultDebounce, a.logger)
		if err != nil {
			stop()
			g.Wait()
			return err
		}
		if err := w.Add(a.repo.WatchPaths()...); err != nil {
			a.logger.Warn("file watching unavailable", "error", err)
		}
		w.Start()
		g.Go(func() error {
			<-gctx.Done()
			w.Stop()
			return nil
		})
	}

	a.logger.Info("runner started",
		"root", a.cfg.WorkspaceRoot,
		"state_backend", a.cfg.State.Backend,
		"sources", len(a.cfg.Sources),
		"api", listen,
	)

	err = g.Wait()
	a.logger.Info("runner stopped")
	return err
}
