package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workload-engine/workload"
	"github.com/warp/workload-engine/workload/store"
)

func newManager(t *testing.T, s *store.Memory, email string) workload.ManagerID {
	t.Helper()
	id, err := s.CreateManager(context.Background(), workload.Manager{
		CompanyID: 1,
		Person:    workload.Person{FirstName: "Ada", LastName: "Lovelace", Email: email, PasswordHash: "hash"},
	})
	require.NoError(t, err)
	return id
}

func TestMemory_ManagersAndResourcesShareIDSpace(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	mid := newManager(t, s, "ada@example.com")
	rid, err := s.CreateResource(ctx, workload.Resource{
		CompanyID: 1,
		ManagerID: mid,
		Person:    workload.Person{FirstName: "Bob", LastName: "Smith", Email: "bob@example.com"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, int64(mid), int64(rid))
}

func TestMemory_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	s := store.NewMemory()
	newManager(t, s, "ada@example.com")

	_, err := s.CreateManager(context.Background(), workload.Manager{
		CompanyID: 1,
		Person:    workload.Person{FirstName: "A", LastName: "B", Email: "ADA@example.com"},
	})
	assert.ErrorIs(t, err, workload.ErrDuplicateEmail)
}

func TestMemory_ResourceRequiresManager(t *testing.T) {
	_, err := store.NewMemory().CreateResource(context.Background(), workload.Resource{
		ManagerID: 42,
		Person:    workload.Person{Email: "x@example.com"},
	})
	assert.ErrorIs(t, err, workload.ErrManagerNotFound)
}

func TestMemory_UpdateManagerKeepsDerivedAndPassword(t *testing.T) {
	// GIVEN: A manager with a stored charge and password hash
	// WHEN: Updating with a zero charge and no password
	// THEN: Both stored values survive

	ctx := context.Background()
	s := store.NewMemory()
	id := newManager(t, s, "ada@example.com")
	require.NoError(t, s.SetManagerCharge(ctx, id, decimal.NewFromInt(70)))

	m, _ := s.GetManager(ctx, id)
	m.Person.FirstName = "Augusta"
	m.Person.PasswordHash = ""
	m.Charge = decimal.Zero
	require.NoError(t, s.UpdateManager(ctx, *m))

	got, _ := s.GetManager(ctx, id)
	assert.Equal(t, "Augusta", got.Person.FirstName)
	assert.Equal(t, "hash", got.Person.PasswordHash)
	assert.True(t, got.Charge.Equal(decimal.NewFromInt(70)))
}

func TestMemory_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	id := newManager(t, s, "ada@example.com")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx workload.Store) error {
		if err := tx.SetManagerCharge(ctx, id, decimal.NewFromInt(90)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	m, _ := s.GetManager(ctx, id)
	assert.True(t, m.Charge.IsZero())
}

func TestMemory_WithTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	id := newManager(t, s, "ada@example.com")

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(tx workload.Store) error {
			_ = tx.DeleteManager(ctx, id)
			panic("halfway")
		})
	})

	m, err := s.GetManager(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m, "manager restored after panic")

	// The lock was released.
	_, err = s.ListManagers(ctx)
	assert.NoError(t, err)
}

func TestMemory_GetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	m, err := s.GetManager(ctx, 99)
	assert.NoError(t, err)
	assert.Nil(t, m)

	p, err := s.GetProject(ctx, 99)
	assert.NoError(t, err)
	assert.Nil(t, p)

	assert.ErrorIs(t, s.DeleteProject(ctx, 99), workload.ErrProjectNotFound)
}

func TestMemory_RecalculationRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRecalculationRun(ctx, workload.RecalculationRun{ID: id, Status: workload.RunRunning}))
	}
	require.NoError(t, s.SaveRecalculationRun(ctx, workload.RecalculationRun{ID: "b", Status: workload.RunCompleted}))

	runs, err := s.ListRecalculationRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, workload.RunCompleted, runs[1].Status)
}
