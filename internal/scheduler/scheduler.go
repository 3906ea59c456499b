// Package scheduler runs the reconciliation tick on a fixed interval and on
// demand, never letting two ticks overlap.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fentz26/missionctl/internal/logging"
)

// TickFunc performs one tick. Its error is logged, never fatal.
type TickFunc func(ctx context.Context) error

// Stats counts tick firings.
type Stats struct {
	Ticks   int64
	Skipped int64
	Failed  int64
}

// Scheduler fires ticks from a ticker and from Trigger.
type Scheduler struct {
	tick   TickFunc
	config *Config
	logger *logging.Logger

	inFlight atomic.Bool
	ticks    atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64

	trigger chan struct{}

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler.
func New(tick TickFunc, cfg *Config, logger *logging.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		tick:    tick,
		config:  cfg,
		logger:  logger.WithComponent("scheduler"),
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.loop()
	sch.logger.Info("scheduler started", "interval_ms", sch.config.Interval.Milliseconds())
}

// Stop gracefully stops the scheduler. A tick in progress runs to completion
// before Stop returns.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.logger.Info("scheduler stopped", "ticks", sch.ticks.Load(), "skipped", sch.skipped.Load())
}

// Trigger requests a tick as soon as possible. Requests made while one is
// already pending are coalesced.
func (sch *Scheduler) Trigger() {
	select {
	case sch.trigger <- struct{}{}:
	default:
	}
}

// Stats returns the firing counters.
func (sch *Scheduler) Stats() Stats {
	return Stats{Ticks: sch.ticks.Load(), Skipped: sch.skipped.Load(), Failed: sch.failed.Load()}
}

// InFlight reports whether a tick is running.
func (sch *Scheduler) InFlight() bool {
	return sch.inFlight.Load()
}

func (sch *Scheduler) loop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.Interval)
	defer ticker.Stop()

	if sch.config.RunOnStart {
		sch.fire("start")
	}

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.fire("interval")
		case <-sch.trigger:
			sch.fire("trigger")
		}
	}
}

// fire starts a tick in its own goroutine unless one is already running.
func (sch *Scheduler) fire(cause string) {
	if !sch.inFlight.CompareAndSwap(false, true) {
		sch.skipped.Add(1)
		sch.logger.Debug("tick skipped, previous tick in flight", "cause", cause)
		return
	}
	sch.wg.Add(1)
	go func() {
		defer sch.wg.Done()
		defer sch.inFlight.Store(false)
		sch.run(cause)
	}()
}

// RunOnce runs a tick synchronously under the in-flight guard and reports
// whether it ran.
func (sch *Scheduler) RunOnce() bool {
	if !sch.inFlight.CompareAndSwap(false, true) {
		sch.skipped.Add(1)
		return false
	}
	defer sch.inFlight.Store(false)
	sch.run("manual")
	return true
}

func (sch *Scheduler) run(cause string) {
	sch.ticks.Add(1)
	// Ticks are not interrupted by Stop.
	ctx := context.WithoutCancel(sch.ctx)
	if err := sch.tick(ctx); err != nil {
		sch.failed.Add(1)
		sch.logger.Error("tick failed", "cause", cause, "error", err)
	}
}
