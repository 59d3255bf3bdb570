package allocation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workload-engine/allocation"
	"github.com/warp/workload-engine/logging"
	"github.com/warp/workload-engine/scoring"
	"github.com/warp/workload-engine/workload"
	"github.com/warp/workload-engine/workload/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	hrActor    = allocation.Actor{UserID: 1000, Role: workload.RoleHR, CompanyID: 1}
	otherHR    = allocation.Actor{UserID: 2000, Role: workload.RoleHR, CompanyID: 2}
	memberOnly = allocation.Actor{UserID: 3000, Role: workload.RoleMember, CompanyID: 1}
)

type env struct {
	ctx   context.Context
	store *store.Memory
	svc   *allocation.Service
}

func newEnv(t *testing.T, opts ...allocation.Option) env {
	t.Helper()
	s := store.NewMemory()
	base := []allocation.Option{
		allocation.WithClock(workload.FixedClock(workload.MustParseDate("2024-01-05"))),
		allocation.WithLogger(logging.Discard()),
	}
	svc := allocation.NewService(s, workload.NewAdmissionController(workload.HourPolicy{}), append(base, opts...)...)
	return env{ctx: context.Background(), store: s, svc: svc}
}

func hours(n int) *int { return &n }

func (e env) manager(t *testing.T, email string) workload.Manager {
	t.Helper()
	m, err := e.svc.EnrollManager(e.ctx, hrActor, allocation.ManagerInput{
		Person: workload.Person{FirstName: "Mia", LastName: "Chen", Email: email},
	})
	require.NoError(t, err)
	return m
}

func (e env) resource(t *testing.T, mid workload.ManagerID, email string, weekly int) allocation.ResourceOutcome {
	t.Helper()
	out, err := e.svc.EnrollResource(e.ctx, hrActor, allocation.ResourceInput{
		ManagerID:          mid,
		Person:             workload.Person{FirstName: "Raj", LastName: "Patel", Email: email},
		Experience:         3,
		WeeklyAvailability: hours(weekly),
		HourlyCost:         decimal.NewFromInt(40),
		AvgSkill:           60,
	})
	require.NoError(t, err)
	return out
}

func projectInput(mid workload.ManagerID, hours int) allocation.ProjectInput {
	return allocation.ProjectInput{
		ManagerID:      mid,
		Name:           "Billing revamp",
		Difficulty:     "heavy",
		EstimatedHours: hours,
		Start:          "2024-01-01",
		End:            "2024-01-14",
	}
}

func managerActor(m workload.Manager) allocation.Actor {
	return allocation.Actor{UserID: int64(m.ID), Role: workload.RoleManager, CompanyID: m.CompanyID}
}

type brokenScorer struct{}

func (brokenScorer) Score(context.Context, scoring.Attributes) (scoring.Result, error) {
	return scoring.Result{}, errors.New("connection refused")
}

// =============================================================================
// PERMISSIONS
// =============================================================================

func TestActorCan(t *testing.T) {
	mgr := allocation.Actor{UserID: 1, Role: workload.RoleManager}

	assert.True(t, hrActor.Can(allocation.ActEnrollManager))
	assert.True(t, hrActor.Can(allocation.ActRecalculate))
	assert.True(t, mgr.Can(allocation.ActManageResources))
	assert.True(t, mgr.Can(allocation.ActViewCharge))
	assert.False(t, mgr.Can(allocation.ActManageProjects))
	assert.False(t, mgr.Can(allocation.ActEnrollManager))
	assert.False(t, memberOnly.Can(allocation.ActViewProjects))
}

func TestMemberIsForbidden(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.EnrollManager(e.ctx, memberOnly, allocation.ManagerInput{})
	assert.ErrorIs(t, err, workload.ErrForbidden)

	_, err = e.svc.ListProjects(e.ctx, memberOnly)
	assert.ErrorIs(t, err, workload.ErrForbidden)
}

// =============================================================================
// MANAGERS AND RESOURCES
// =============================================================================

func TestEnrollManager_Defaults(t *testing.T) {
	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")

	assert.Equal(t, workload.CompanyID(1), m.CompanyID)
	assert.Equal(t, workload.DefaultWeeklyHours, m.WeeklyAvailability)
	assert.Equal(t, scoring.DefaultScore, m.Score)
	assert.True(t, m.Charge.IsZero())
}

func TestEnrollManager_Validation(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.EnrollManager(e.ctx, hrActor, allocation.ManagerInput{
		Person: workload.Person{FirstName: "Mia", LastName: "Chen", Email: "not-an-email"},
	})

	var fe *workload.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "email", fe.Field)
}

func TestEnrollResource_ScoresAndRecomputes(t *testing.T) {
	// GIVEN: A manager with an 80 h project and no team yet (charge 0)
	// WHEN: A 40 h/week member joins
	// THEN: The member is scored and the charge becomes 100

	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	created, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m.ID, 80))
	require.NoError(t, err)
	require.True(t, created.Accepted())
	assert.True(t, created.Charge.Charge.IsZero())

	out := e.resource(t, m.ID, "raj@acme.test", 40)

	assert.Equal(t, m.ID, out.Resource.ManagerID)
	assert.NotEqual(t, scoring.DefaultScore, out.Resource.Score)
	assert.Equal(t, "100.00", out.Charge.Charge.StringFixed(2))

	stored, _ := e.store.GetManager(e.ctx, m.ID)
	assert.Equal(t, "100.00", stored.Charge.StringFixed(2))
}

func TestEnrollResource_ManagerScope(t *testing.T) {
	e := newEnv(t)
	m1 := e.manager(t, "a@acme.test")
	m2 := e.manager(t, "b@acme.test")

	// A manager enrolls into its own team without naming it.
	out, err := e.svc.EnrollResource(e.ctx, managerActor(m1), allocation.ResourceInput{
		Person: workload.Person{FirstName: "Li", LastName: "Wei", Email: "li@acme.test"},
	})
	require.NoError(t, err)
	assert.Equal(t, m1.ID, out.Resource.ManagerID)
	assert.Equal(t, workload.DefaultWeeklyHours, out.Resource.WeeklyAvailability)

	// ... but not into somebody else's.
	_, err = e.svc.EnrollResource(e.ctx, managerActor(m1), allocation.ResourceInput{
		ManagerID: m2.ID,
		Person:    workload.Person{FirstName: "Jo", LastName: "Kim", Email: "jo@acme.test"},
	})
	assert.ErrorIs(t, err, workload.ErrForbidden)

	// HR must say which team.
	_, err = e.svc.EnrollResource(e.ctx, hrActor, allocation.ResourceInput{
		Person: workload.Person{FirstName: "Jo", LastName: "Kim", Email: "jo@acme.test"},
	})
	assert.True(t, workload.IsClientError(err))
}

func TestEnrollResource_ScorerFailureUsesDefault(t *testing.T) {
	e := newEnv(t, allocation.WithScorer(brokenScorer{}))
	m := e.manager(t, "mia@acme.test")

	out := e.resource(t, m.ID, "raj@acme.test", 40)

	assert.Equal(t, scoring.DefaultScore, out.Resource.Score)
	assert.Equal(t, 0, out.Resource.Cluster)
}

func TestUpdateResource_CannotMoveTeams(t *testing.T) {
	e := newEnv(t)
	m1 := e.manager(t, "a@acme.test")
	m2 := e.manager(t, "b@acme.test")
	r := e.resource(t, m1.ID, "raj@acme.test", 40)

	_, err := e.svc.UpdateResource(e.ctx, hrActor, r.Resource.ID, allocation.ResourceInput{
		ManagerID: m2.ID,
		Person:    r.Resource.Person,
	})
	var fe *workload.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "manager_id", fe.Field)
}

func TestUpdateResource_HalvingAvailabilityDoublesCharge(t *testing.T) {
	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	r := e.resource(t, m.ID, "raj@acme.test", 40)
	_, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m.ID, 40))
	require.NoError(t, err)

	out, err := e.svc.UpdateResource(e.ctx, hrActor, r.Resource.ID, allocation.ResourceInput{
		Person:             r.Resource.Person,
		WeeklyAvailability: hours(20),
		HourlyCost:         decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	assert.Equal(t, 20, out.Resource.WeeklyAvailability)
	assert.Equal(t, "100.00", out.Charge.Charge.StringFixed(2))
}

func TestRemoveResource_ZeroCapacityZeroCharge(t *testing.T) {
	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	r := e.resource(t, m.ID, "raj@acme.test", 40)
	_, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m.ID, 40))
	require.NoError(t, err)

	b, err := e.svc.RemoveResource(e.ctx, hrActor, r.Resource.ID)
	require.NoError(t, err)
	assert.True(t, b.Charge.IsZero())
	assert.Equal(t, 0, b.Capacity)

	_, err = e.svc.GetResource(e.ctx, hrActor, r.Resource.ID)
	assert.ErrorIs(t, err, workload.ErrResourceNotFound)
}

func TestRemoveManager_RefusedWithDependents(t *testing.T) {
	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	r := e.resource(t, m.ID, "raj@acme.test", 40)

	err := e.svc.RemoveManager(e.ctx, hrActor, m.ID)
	assert.ErrorIs(t, err, workload.ErrManagerHasDependents)
	assert.True(t, workload.IsConflict(err))

	_, err = e.svc.RemoveResource(e.ctx, hrActor, r.Resource.ID)
	require.NoError(t, err)
	require.NoError(t, e.svc.RemoveManager(e.ctx, hrActor, m.ID))

	got, _ := e.store.GetManager(e.ctx, m.ID)
	assert.Nil(t, got)
}

func TestOtherTenantSeesNotFound(t *testing.T) {
	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")

	_, err := e.svc.ChargeBreakdown(e.ctx, otherHR, m.ID)
	assert.ErrorIs(t, err, workload.ErrManagerNotFound)

	_, err = e.svc.CreateProject(e.ctx, otherHR, projectInput(m.ID, 10))
	assert.ErrorIs(t, err, workload.ErrManagerNotFound)
}

// =============================================================================
// PROJECTS
// =============================================================================

func TestCreateProject_AcceptedAndLifecycle(t *testing.T) {
	// GIVEN: A 40 h/week team, today 2024-01-05
	// WHEN: HR creates an 80 h project over 2024-01-01..14
	// THEN: It is stored active with 9 days left and the charge is 100

	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	e.resource(t, m.ID, "raj@acme.test", 40)

	out, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m.ID, 80))
	require.NoError(t, err)

	require.True(t, out.Accepted())
	assert.NotZero(t, out.Project.ID)
	assert.Equal(t, workload.StatusActive, out.Project.Status)
	assert.Equal(t, 9, out.Project.DaysRemaining)
	assert.Equal(t, "100.00", out.Charge.Charge.StringFixed(2))
	assert.Equal(t, 40, out.WeeklyCapacity)
}

func TestCreateProject_RejectedWritesNothing(t *testing.T) {
	// GIVEN: A team already at 100%
	// WHEN: Another 10 h project is proposed
	// THEN: The outcome is a rejection, nothing is stored, charge unchanged

	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	e.resource(t, m.ID, "raj@acme.test", 40)
	_, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m.ID, 80))
	require.NoError(t, err)

	out, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m.ID, 10))
	require.NoError(t, err)

	require.False(t, out.Accepted())
	require.NotNil(t, out.Decision.Rejection)
	assert.Equal(t, "112.50", out.Decision.Rejection.ProjectedCharge.StringFixed(2))
	assert.Zero(t, out.Project.ID)

	projects, _ := e.store.ListProjectsByManager(e.ctx, m.ID)
	assert.Len(t, projects, 1)
	stored, _ := e.store.GetManager(e.ctx, m.ID)
	assert.Equal(t, "100.00", stored.Charge.StringFixed(2))
}

func TestCreateProject_InputErrors(t *testing.T) {
	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")

	tests := []struct {
		name   string
		mutate func(*allocation.ProjectInput)
	}{
		{"missing manager", func(in *allocation.ProjectInput) { in.ManagerID = 0 }},
		{"bad date", func(in *allocation.ProjectInput) { in.Start = "01/02/2024" }},
		{"end before start", func(in *allocation.ProjectInput) { in.End = "2023-12-31" }},
		{"no hours", func(in *allocation.ProjectInput) { in.EstimatedHours = 0 }},
		{"bad difficulty", func(in *allocation.ProjectInput) { in.Difficulty = "epic" }},
		{"no name", func(in *allocation.ProjectInput) { in.Name = "  " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := projectInput(m.ID, 10)
			tt.mutate(&in)
			_, err := e.svc.CreateProject(e.ctx, hrActor, in)
			assert.True(t, workload.IsClientError(err), "got %v", err)
		})
	}

	projects, _ := e.store.ListProjects(e.ctx)
	assert.Empty(t, projects)
}

func TestCreateProject_ManagerCannotCreate(t *testing.T) {
	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	_, err := e.svc.CreateProject(e.ctx, managerActor(m), projectInput(m.ID, 10))
	assert.ErrorIs(t, err, workload.ErrForbidden)
}

// racingStore runs beforeTx once, just before the next transaction opens,
// to stand in for a scheduler pass landing between read and write.
type racingStore struct {
	*store.Memory
	beforeTx func()
}

func (r *racingStore) WithTx(ctx context.Context, fn func(workload.Store) error) error {
	if r.beforeTx != nil {
		hook := r.beforeTx
		r.beforeTx = nil
		hook()
	}
	return r.Memory.WithTx(ctx, fn)
}

func TestUpdateProject_KeepsStatusAdvancedConcurrently(t *testing.T) {
	// GIVEN: A planned project that a scheduler pass marks active after the
	//        edit has read it but before the edit's transaction opens
	// WHEN: The edit moves the dates into February
	// THEN: The stored status stays active and is never written back to planned

	ctx := context.Background()
	racing := &racingStore{Memory: store.NewMemory()}
	svc := allocation.NewService(racing, workload.NewAdmissionController(workload.HourPolicy{}),
		allocation.WithClock(workload.FixedClock(workload.MustParseDate("2024-01-05"))),
		allocation.WithLogger(logging.Discard()),
	)

	m, err := svc.EnrollManager(ctx, hrActor, allocation.ManagerInput{
		Person: workload.Person{FirstName: "Mia", LastName: "Chen", Email: "mia@acme.test"},
	})
	require.NoError(t, err)
	_, err = svc.EnrollResource(ctx, hrActor, allocation.ResourceInput{
		ManagerID:          m.ID,
		Person:             workload.Person{FirstName: "Raj", LastName: "Patel", Email: "raj@acme.test"},
		WeeklyAvailability: hours(40),
	})
	require.NoError(t, err)

	in := projectInput(m.ID, 10)
	in.Start, in.End = "2024-01-08", "2024-01-14"
	created, err := svc.CreateProject(ctx, hrActor, in)
	require.NoError(t, err)
	require.Equal(t, workload.StatusPlanned, created.Project.Status)

	id := created.Project.ID
	racing.beforeTx = func() {
		require.NoError(t, racing.Memory.SetProjectLifecycle(ctx, id,
			workload.Lifecycle{Status: workload.StatusActive, DaysRemaining: 6}))
	}

	in.Start, in.End = "2024-02-01", "2024-02-14"
	out, err := svc.UpdateProject(ctx, hrActor, id, in)
	require.NoError(t, err)
	require.True(t, out.Accepted())
	assert.Equal(t, workload.StatusActive, out.Project.Status)

	stored, err := racing.Memory.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workload.StatusActive, stored.Status)
	assert.Equal(t, workload.DaysBetween(workload.MustParseDate("2024-01-05"), workload.MustParseDate("2024-02-14")), stored.DaysRemaining)
}

func TestUpdateProject_ExcludesItselfAndStaysActive(t *testing.T) {
	// GIVEN: An active project booking the whole budget
	// WHEN: Its dates move into the future with the same hours
	// THEN: The edit is admitted and the project does not go back to planned

	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	e.resource(t, m.ID, "raj@acme.test", 40)
	created, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m.ID, 80))
	require.NoError(t, err)

	in := projectInput(m.ID, 80)
	in.Start, in.End = "2024-02-01", "2024-02-14"
	out, err := e.svc.UpdateProject(e.ctx, hrActor, created.Project.ID, in)
	require.NoError(t, err)

	require.True(t, out.Accepted())
	assert.Equal(t, workload.StatusActive, out.Project.Status)
	assert.Equal(t, "2024-02-14", out.Project.End.String())
	assert.Equal(t, "100.00", out.Charge.Charge.StringFixed(2))

	// Adding hours past the budget is refused and leaves the stored version.
	in.EstimatedHours = 100
	out, err = e.svc.UpdateProject(e.ctx, hrActor, created.Project.ID, in)
	require.NoError(t, err)
	assert.False(t, out.Accepted())
	p, _ := e.svc.GetProject(e.ctx, hrActor, created.Project.ID)
	assert.Equal(t, 80, p.EstimatedHours)
}

func TestUpdateProject_CannotReassign(t *testing.T) {
	e := newEnv(t)
	m1 := e.manager(t, "a@acme.test")
	m2 := e.manager(t, "b@acme.test")
	created, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m1.ID, 10))
	require.NoError(t, err)

	_, err = e.svc.UpdateProject(e.ctx, hrActor, created.Project.ID, projectInput(m2.ID, 10))
	assert.True(t, workload.IsClientError(err))
}

func TestDeleteProject_Recomputes(t *testing.T) {
	e := newEnv(t)
	m := e.manager(t, "mia@acme.test")
	e.resource(t, m.ID, "raj@acme.test", 40)
	created, err := e.svc.CreateProject(e.ctx, hrActor, projectInput(m.ID, 80))
	require.NoError(t, err)

	b, err := e.svc.DeleteProject(e.ctx, hrActor, created.Project.ID)
	require.NoError(t, err)
	assert.True(t, b.Charge.IsZero())

	_, err = e.svc.GetProject(e.ctx, hrActor, created.Project.ID)
	assert.ErrorIs(t, err, workload.ErrProjectNotFound)
}

// =============================================================================
// LISTING AND DASHBOARD
// =============================================================================

func TestListProjects_ScopeOrderAndCounts(t *testing.T) {
	e := newEnv(t)
	m1 := e.manager(t, "a@acme.test")
	m2 := e.manager(t, "b@acme.test")

	for _, in := range []allocation.ProjectInput{
		{ManagerID: m1.ID, Name: "old", EstimatedHours: 1, Start: "2023-01-01", End: "2023-01-10"},
		{ManagerID: m1.ID, Name: "future", EstimatedHours: 1, Start: "2024-06-01", End: "2024-06-10"},
		{ManagerID: m1.ID, Name: "running", EstimatedHours: 1, Start: "2024-01-01", End: "2024-01-31"},
		{ManagerID: m2.ID, Name: "elsewhere", EstimatedHours: 1, Start: "2024-01-01", End: "2024-01-31"},
	} {
		_, err := e.svc.CreateProject(e.ctx, hrActor, in)
		require.NoError(t, err)
	}

	all, err := e.svc.ListProjects(e.ctx, hrActor)
	require.NoError(t, err)
	assert.Equal(t, allocation.StatusCounts{Total: 4, Planned: 1, Active: 2, Finished: 1}, all.Counts)

	own, err := e.svc.ListProjects(e.ctx, managerActor(m1))
	require.NoError(t, err)
	names := make([]string, len(own.Projects))
	for i, p := range own.Projects {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"running", "future", "old"}, names)
}

func TestDashboard(t *testing.T) {
	e := newEnv(t)
	m1 := e.manager(t, "a@acme.test")
	m2 := e.manager(t, "b@acme.test")
	e.resource(t, m1.ID, "r1@acme.test", 40)
	e.resource(t, m1.ID, "r2@acme.test", 30)
	e.resource(t, m2.ID, "r3@acme.test", 10)

	views, err := e.svc.Dashboard(e.ctx, hrActor)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, 70, views[0].Capacity)

	own, err := e.svc.Dashboard(e.ctx, managerActor(m2))
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, m2.ID, own[0].Manager.ID)
	assert.Equal(t, 10, own[0].Capacity)
}

func TestChargeBreakdown_ManagerOnlySeesOwn(t *testing.T) {
	e := newEnv(t)
	m1 := e.manager(t, "a@acme.test")
	m2 := e.manager(t, "b@acme.test")

	_, err := e.svc.ChargeBreakdown(e.ctx, managerActor(m1), m1.ID)
	assert.NoError(t, err)

	_, err = e.svc.ChargeBreakdown(e.ctx, managerActor(m1), m2.ID)
	assert.ErrorIs(t, err, workload.ErrManagerNotFound)
}

func TestSortProjects(t *testing.T) {
	d := workload.MustParseDate
	projects := []workload.Project{
		{ID: 1, Status: workload.StatusFinished, Start: d("2024-01-01")},
		{ID: 2, Status: workload.StatusPlanned, Start: d("2024-01-01")},
		{ID: 3, Status: workload.StatusActive, Start: d("2024-01-01")},
		{ID: 4, Status: workload.StatusActive, Start: d("2024-02-01")},
		{ID: 5, Status: workload.StatusActive, Start: d("2024-02-01")},
	}
	allocation.SortProjects(projects)

	ids := make([]workload.ProjectID, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	assert.Equal(t, []workload.ProjectID{4, 5, 3, 2, 1}, ids)
}
