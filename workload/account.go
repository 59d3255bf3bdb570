package workload

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNTS - Tenants and the users that authenticate against them
// =============================================================================

// Company is the tenant boundary. Every record belongs to exactly one.
type Company struct {
	ID        CompanyID
	Name      string
	CreatedAt time.Time
}

// User is the identity behind a token. For managers and team members the
// user ID is also the ManagerID / ResourceID.
type User struct {
	ID        int64
	CompanyID CompanyID
	Person    Person
	Role      Role
	CreatedAt time.Time
}

// Statistics is the company-wide summary shown to HR.
type Statistics struct {
	Managers         int
	Resources        int
	PlannedProjects  int
	ActiveProjects   int
	FinishedProjects int
	AverageCharge    decimal.Decimal
}

// AccountStore persists companies and user credentials.
type AccountStore interface {
	// RegisterCompany creates a company and its first HR user atomically.
	RegisterCompany(ctx context.Context, name string, hr Person) (Company, User, error)
	GetCompany(ctx context.Context, id CompanyID) (*Company, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	Statistics(ctx context.Context, companyID CompanyID) (Statistics, error)
}
