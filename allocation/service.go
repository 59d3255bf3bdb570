/*
Package allocation is the application layer over the workload engine.

PURPOSE:
  Turns the operations exposed to users (enroll a manager, add a team
  member, create or edit a project) into store transactions that keep the
  stored charge equal to what the configured ChargePolicy derives from the
  stored team and projects.

TRANSACTION SHAPE:
  Every mutation that can affect a charge runs inside one WithTx:
    1. read the current team / project set through the transactional view
    2. (projects only) run admission control; stop on rejection
    3. write the record
    4. RecomputeCharge for each affected manager

PERMISSIONS:
  Role checks go through Actor.Can. Records of another company are reported
  as not found, never as forbidden, so tenants cannot probe each other.

SEE ALSO:
  - people.go: managers and resources
  - projects.go: projects and admission
  - api/handlers.go: HTTP surface
*/
package allocation

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/warp/workload-engine/scoring"
	"github.com/warp/workload-engine/workload"
)

// Service holds the dependencies shared by every operation.
type Service struct {
	store     workload.TxStore
	policy    workload.ChargePolicy
	admission *workload.AdmissionController
	scorer    scoring.Scorer
	clock     workload.Clock
	log       logrus.FieldLogger
}

// Option customizes a Service.
type Option func(*Service)

func WithScorer(s scoring.Scorer) Option { return func(svc *Service) { svc.scorer = s } }

func WithClock(c workload.Clock) Option { return func(svc *Service) { svc.clock = c } }

func WithLogger(l logrus.FieldLogger) Option { return func(svc *Service) { svc.log = l } }

// NewService wires a service around one admission controller; its policy is
// the one used for every charge computation.
func NewService(store workload.TxStore, admission *workload.AdmissionController, opts ...Option) *Service {
	svc := &Service{
		store:     store,
		policy:    admission.Policy,
		admission: admission,
		scorer:    scoring.Heuristic{},
		clock:     workload.SystemClock,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.log = svc.log.WithField("component", "allocation")
	return svc
}

// Policy returns the configured charge policy.
func (s *Service) Policy() workload.ChargePolicy { return s.policy }

// =============================================================================
// TENANT-SCOPED LOOKUPS
// =============================================================================

func loadManager(ctx context.Context, st workload.Store, actor Actor, id workload.ManagerID) (*workload.Manager, error) {
	m, err := st.GetManager(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.CompanyID != actor.CompanyID || !actor.owns(m.ID) {
		return nil, workload.ErrManagerNotFound
	}
	return m, nil
}

func loadResource(ctx context.Context, st workload.Store, actor Actor, id workload.ResourceID) (*workload.Resource, error) {
	r, err := st.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.CompanyID != actor.CompanyID || !actor.owns(r.ManagerID) {
		return nil, workload.ErrResourceNotFound
	}
	return r, nil
}

func loadProject(ctx context.Context, st workload.Store, actor Actor, id workload.ProjectID) (*workload.Project, error) {
	p, err := st.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.CompanyID != actor.CompanyID || !actor.owns(p.ManagerID) {
		return nil, workload.ErrProjectNotFound
	}
	return p, nil
}

// =============================================================================
// CHARGE AND DASHBOARD
// =============================================================================

// ChargeBreakdown evaluates a manager's load without writing it.
func (s *Service) ChargeBreakdown(ctx context.Context, actor Actor, id workload.ManagerID) (workload.Breakdown, error) {
	if !actor.Can(ActViewCharge) {
		return workload.Breakdown{}, workload.ErrForbidden
	}
	if _, err := loadManager(ctx, s.store, actor, id); err != nil {
		return workload.Breakdown{}, err
	}
	return workload.EvaluateManager(ctx, s.store, s.policy, id)
}

// TeamView is a manager with its team, as shown on the dashboard.
type TeamView struct {
	Manager   workload.Manager
	Resources []workload.Resource
	Capacity  int
}

// Dashboard lists every team of the company for HR, the caller's own team
// for a manager.
func (s *Service) Dashboard(ctx context.Context, actor Actor) ([]TeamView, error) {
	if !actor.Can(ActViewDashboard) {
		return nil, workload.ErrForbidden
	}

	var managers []workload.Manager
	if actor.Role == workload.RoleHR {
		list, err := s.store.ListManagersByCompany(ctx, actor.CompanyID)
		if err != nil {
			return nil, err
		}
		managers = list
	} else {
		m, err := loadManager(ctx, s.store, actor, actor.managerID())
		if err != nil {
			return nil, err
		}
		managers = []workload.Manager{*m}
	}

	views := make([]TeamView, 0, len(managers))
	for _, m := range managers {
		team, err := s.store.ListResourcesByManager(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, TeamView{Manager: m, Resources: team, Capacity: workload.Capacity(team)})
	}
	return views, nil
}
