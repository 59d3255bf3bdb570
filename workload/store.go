/*
store.go - Persistence interface for managers, resources and projects

PURPOSE:
  Defines the boundary between the engine and the database. Records are
  keyed by integer IDs; Get* methods return (nil, nil) when a record does
  not exist, and callers translate that into the matching Err*NotFound.

KEY INTERFACES:
  Store:    CRUD over the three record kinds plus the two derived-field writes
            (SetManagerCharge, SetProjectLifecycle)
  TxStore:  Store + WithTx for read-modify-write units
  RunStore: persistence of recalculation run records

READ-MODIFY-WRITE:
  A charge is never adjusted by delta. Every write of Manager.Charge goes
  through RecomputeCharge, which re-reads the team and project set through
  the same Store (normally the transactional view handed to WithTx).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - workload/store/memory.go: in-memory for tests

SEE ALSO:
  - recalc.go: periodic recomputation over every record
*/
package workload

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	CreateManager(ctx context.Context, m Manager) (ManagerID, error)
	GetManager(ctx context.Context, id ManagerID) (*Manager, error)
	ListManagers(ctx context.Context) ([]Manager, error)
	ListManagersByCompany(ctx context.Context, companyID CompanyID) ([]Manager, error)
	UpdateManager(ctx context.Context, m Manager) error
	SetManagerCharge(ctx context.Context, id ManagerID, charge decimal.Decimal) error
	DeleteManager(ctx context.Context, id ManagerID) error

	CreateResource(ctx context.Context, r Resource) (ResourceID, error)
	GetResource(ctx context.Context, id ResourceID) (*Resource, error)
	ListResourcesByManager(ctx context.Context, managerID ManagerID) ([]Resource, error)
	ListResourcesByCompany(ctx context.Context, companyID CompanyID) ([]Resource, error)
	UpdateResource(ctx context.Context, r Resource) error
	DeleteResource(ctx context.Context, id ResourceID) error

	CreateProject(ctx context.Context, p Project) (ProjectID, error)
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	ListProjectsByManager(ctx context.Context, managerID ManagerID) ([]Project, error)
	ListProjectsByCompany(ctx context.Context, companyID CompanyID) ([]Project, error)
	UpdateProject(ctx context.Context, p Project) error
	SetProjectLifecycle(ctx context.Context, id ProjectID, lc Lifecycle) error
	DeleteProject(ctx context.Context, id ProjectID) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// RunStore keeps the history of recalculation passes.
type RunStore interface {
	SaveRecalculationRun(ctx context.Context, run RecalculationRun) error
	ListRecalculationRuns(ctx context.Context, limit int) ([]RecalculationRun, error)
}

// =============================================================================
// CHARGE RECOMPUTATION
// =============================================================================

// RecomputeCharge re-derives a manager's charge from the current team and
// project set and stores it. This is the only writer of Manager.Charge.
func RecomputeCharge(ctx context.Context, s Store, policy ChargePolicy, id ManagerID) (Breakdown, error) {
	b, err := EvaluateManager(ctx, s, policy, id)
	if err != nil {
		return b, err
	}
	if err := s.SetManagerCharge(ctx, id, b.Charge); err != nil {
		return b, err
	}
	return b, nil
}

// EvaluateManager computes the charge breakdown without writing it.
func EvaluateManager(ctx context.Context, s Store, policy ChargePolicy, id ManagerID) (Breakdown, error) {
	team, err := s.ListResourcesByManager(ctx, id)
	if err != nil {
		return Breakdown{}, err
	}
	projects, err := s.ListProjectsByManager(ctx, id)
	if err != nil {
		return Breakdown{}, err
	}
	return policy.Evaluate(Capacity(team), projects), nil
}
