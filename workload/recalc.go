/*
recalc.go - Full recomputation of derived fields

PURPOSE:
  Corrects drift caused by elapsed time: a project that silently crossed
  into its active window, a project that finished, and the charges that
  depend on those statuses.

PASS:
  1. List every project; for each one, re-read it, apply the lifecycle
     machine against today and write it if its status or days-remaining
     changed (one transaction per project).
  2. Load every manager and recompute its charge with the now-updated
     statuses (RecomputeCharge inside one transaction per manager).

FAULT ISOLATION:
  Each project and each manager is processed on its own. An error or a
  panic is logged, counted in the run record, and the pass moves on. A
  failure to list projects does not prevent phase 2.

SEE ALSO:
  - api/scheduler.go: runs a pass on a fixed interval
  - lifecycle.go, charge.go
*/
package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunStatus is the outcome of a recalculation pass.
type RunStatus string

const (
	RunRunning             RunStatus = "running"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
)

// RecalculationRun is the record of one pass.
type RecalculationRun struct {
	ID               string
	Today            Date
	Status           RunStatus
	ProjectsScanned  int
	ProjectsAdvanced int
	ManagersScanned  int
	ManagersUpdated  int
	Failures         int
	Errors           []string
	StartedAt        time.Time
	CompletedAt      time.Time
}

// maxRunErrors caps how many error messages a run record keeps.
const maxRunErrors = 50

func (run *RecalculationRun) fail(err error) {
	run.Failures++
	if len(run.Errors) < maxRunErrors {
		run.Errors = append(run.Errors, err.Error())
	}
}

// Recalculator re-derives project lifecycles and manager charges.
type Recalculator struct {
	Store  TxStore
	Policy ChargePolicy
	Clock  Clock
	Log    logrus.FieldLogger
}

func NewRecalculator(store TxStore, policy ChargePolicy, clock Clock, log logrus.FieldLogger) *Recalculator {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recalculator{Store: store, Policy: policy, Clock: clock, Log: log.WithField("component", "recalculator")}
}

// Run executes one full pass. It never returns an error; failures are in the record.
func (r *Recalculator) Run(ctx context.Context) RecalculationRun {
	run := RecalculationRun{
		ID:        uuid.NewString(),
		Today:     r.Clock(),
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	log := r.Log.WithField("run_id", run.ID)

	r.advanceProjects(ctx, &run, log)
	r.recomputeManagers(ctx, &run, log)

	run.CompletedAt = time.Now().UTC()
	run.Status = RunCompleted
	if run.Failures > 0 {
		run.Status = RunCompletedWithErrors
	}

	log.WithFields(logrus.Fields{
		"today":             run.Today.String(),
		"projects_scanned":  run.ProjectsScanned,
		"projects_advanced": run.ProjectsAdvanced,
		"managers_scanned":  run.ManagersScanned,
		"managers_updated":  run.ManagersUpdated,
		"failures":          run.Failures,
		"duration":          run.CompletedAt.Sub(run.StartedAt).String(),
	}).Info("recalculation pass finished")
	return run
}

func (r *Recalculator) advanceProjects(ctx context.Context, run *RecalculationRun, log logrus.FieldLogger) {
	projects, err := r.Store.ListProjects(ctx)
	if err != nil {
		log.WithError(err).Error("listing projects failed, skipping lifecycle phase")
		run.fail(fmt.Errorf("list projects: %w", err))
		return
	}

	// The listing only supplies IDs. Each project is re-read in its own
	// transaction so edits made since the listing are the ones advanced.
	for _, listed := range projects {
		run.ProjectsScanned++
		id := listed.ID
		changed := false
		err := isolate(func() error {
			return r.Store.WithTx(ctx, func(s Store) error {
				p, err := s.GetProject(ctx, id)
				if err != nil {
					return err
				}
				if p == nil {
					return nil // deleted since the listing
				}
				next := p.Advance(run.Today)
				if next == p.Lifecycle() {
					return nil
				}
				if err := s.SetProjectLifecycle(ctx, id, next); err != nil {
					return err
				}
				changed = true
				return nil
			})
		})
		if err != nil {
			log.WithError(err).WithField("project_id", id).Warn("project lifecycle update failed")
			run.fail(fmt.Errorf("project %d: %w", id, err))
			continue
		}
		if changed {
			run.ProjectsAdvanced++
		}
	}
}

func (r *Recalculator) recomputeManagers(ctx context.Context, run *RecalculationRun, log logrus.FieldLogger) {
	managers, err := r.Store.ListManagers(ctx)
	if err != nil {
		log.WithError(err).Error("listing managers failed, skipping charge phase")
		run.fail(fmt.Errorf("list managers: %w", err))
		return
	}

	for _, m := range managers {
		run.ManagersScanned++
		m := m
		var b Breakdown
		err := isolate(func() error {
			return r.Store.WithTx(ctx, func(s Store) error {
				var err error
				b, err = RecomputeCharge(ctx, s, r.Policy, m.ID)
				return err
			})
		})
		if err != nil {
			log.WithError(err).WithField("manager_id", m.ID).Warn("manager charge recomputation failed")
			run.fail(fmt.Errorf("manager %d: %w", m.ID, err))
			continue
		}
		if b.Raw.GreaterThan(hundred) {
			log.WithFields(logrus.Fields{
				"manager_id": m.ID,
				"raw":        b.Raw.String(),
				"unit":       string(b.Unit),
			}).Warn("manager overloaded, charge clamped at 100")
		}
		if !b.Charge.Equal(m.Charge) {
			run.ManagersUpdated++
		}
	}
}

// isolate turns a panic in fn into an error.
func isolate(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
