/*
scheduler.go - Periodic recalculation scheduler

PURPOSE:
  Runs a workload.Recalculator pass on a fixed interval so that statuses,
  days remaining and charges follow the calendar without any user action.

DESIGN:
  - Background goroutine driven by a time.Ticker
  - One pass at a time: ticks and manual triggers that arrive while a pass
    is running wait for it and share its result (singleflight)
  - Every pass is recorded through the RunStore for the admin UI
  - A panic escaping a pass is recovered and logged; the loop keeps going

CONFIGURATION:
  - Interval: time between passes (default: 6 minutes)
  - Enabled:  whether Start launches the loop

USAGE:
  scheduler := NewRecalculationScheduler(recalculator, store, log)
  scheduler.Start()
  defer scheduler.Stop()

SEE ALSO:
  - workload/recalc.go: the pass itself
  - handlers.go: TriggerRecalculation endpoint
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/workload-engine/workload"
	"golang.org/x/sync/singleflight"
)

// Pass runs one recalculation. *workload.Recalculator satisfies it.
type Pass interface {
	Run(ctx context.Context) workload.RecalculationRun
}

// RecalculationScheduler triggers recalculation passes.
type RecalculationScheduler struct {
	Pass     Pass
	Runs     workload.RunStore
	Interval time.Duration
	Enabled  bool
	Log      logrus.FieldLogger

	group  singleflight.Group
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu  sync.Mutex
	lastRun *workload.RecalculationRun
}

// NewRecalculationScheduler creates a scheduler. runs may be nil.
func NewRecalculationScheduler(pass Pass, runs workload.RunStore, log logrus.FieldLogger) *RecalculationScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RecalculationScheduler{
		Pass:     pass,
		Runs:     runs,
		Interval: 6 * time.Minute,
		Enabled:  true,
		Log:      log.WithField("component", "scheduler"),
	}
}

// Start begins the loop. It runs one pass immediately.
func (rs *RecalculationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Log.Info("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker, rs.stop)

	rs.Log.WithField("interval", rs.Interval.String()).Info("scheduler started")
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (rs *RecalculationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.Log.Info("scheduler stopped")
}

func (rs *RecalculationScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.tick()
	for {
		select {
		case <-ticker.C:
			rs.tick()
		case <-stop:
			return
		}
	}
}

func (rs *RecalculationScheduler) tick() {
	defer func() {
		if rec := recover(); rec != nil {
			rs.Log.WithField("panic", fmt.Sprint(rec)).Error("recalculation pass panicked")
		}
	}()
	rs.RunNow(context.Background())
}

// RunNow runs a pass, or joins the one already running. shared is true when
// the result came from a pass started by another caller.
func (rs *RecalculationScheduler) RunNow(ctx context.Context) (run workload.RecalculationRun, shared bool) {
	// The pass outlives any single caller: coalesced callers share it.
	passCtx := context.WithoutCancel(ctx)

	v, err, shared := rs.group.Do("recalculate", func() (interface{}, error) {
		return rs.execute(passCtx)
	})
	if err != nil {
		// execute only fails on a panic; report it as a failed run record.
		return workload.RecalculationRun{
			ID:        uuid.NewString(),
			Status:    workload.RunCompletedWithErrors,
			Failures:  1,
			Errors:    []string{err.Error()},
			StartedAt: time.Now().UTC(),
		}, shared
	}
	return v.(workload.RecalculationRun), shared
}

func (rs *RecalculationScheduler) execute(ctx context.Context) (run workload.RecalculationRun, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("recalculation panicked: %v", rec)
			rs.Log.WithError(err).Error("recalculation pass aborted")
		}
	}()

	run = rs.Pass.Run(ctx)

	rs.lastMu.Lock()
	rs.lastRun = &run
	rs.lastMu.Unlock()

	if rs.Runs != nil {
		if err := rs.Runs.SaveRecalculationRun(ctx, run); err != nil {
			rs.Log.WithError(err).WithField("run_id", run.ID).Warn("failed to record recalculation run")
		}
	}
	return run, nil
}

// LastRun returns the most recent pass, if any.
func (rs *RecalculationScheduler) LastRun() (workload.RecalculationRun, bool) {
	rs.lastMu.Lock()
	defer rs.lastMu.Unlock()
	if rs.lastRun == nil {
		return workload.RecalculationRun{}, false
	}
	return *rs.lastRun, true
}

// NextRunTime estimates when the next scheduled pass will start.
func (rs *RecalculationScheduler) NextRunTime() time.Time {
	rs.lastMu.Lock()
	defer rs.lastMu.Unlock()
	if rs.lastRun == nil || rs.lastRun.StartedAt.IsZero() {
		return time.Now().Add(rs.Interval)
	}
	return rs.lastRun.StartedAt.Add(rs.Interval)
}
