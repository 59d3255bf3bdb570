package workload_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workload-engine/workload"
)

func TestAdmit_RejectsOverload(t *testing.T) {
	// GIVEN: A 40 h/week team fully booked at 80 h over two weeks
	// WHEN: Another 10 h project in the same window is proposed
	// THEN: It is refused with the projected charge and no headroom

	existing := []workload.Project{hoursProject(1, 80, "2024-01-01", "2024-01-14", workload.StatusActive)}
	candidate := hoursProject(0, 10, "2024-01-01", "2024-01-14", workload.StatusPlanned)

	d := workload.NewAdmissionController(workload.HourPolicy{}).Admit(40, existing, candidate)

	require.False(t, d.Accepted)
	require.NotNil(t, d.Rejection)
	assert.Equal(t, "100.00", d.Rejection.CurrentCharge.StringFixed(2))
	assert.Equal(t, "112.50", d.Rejection.ProjectedCharge.StringFixed(2))
	assert.True(t, d.Rejection.Headroom.IsZero())
	assert.Equal(t, workload.UnitHours, d.Rejection.Unit)
	assert.Equal(t, 40, d.Rejection.WeeklyCapacity)

	// Admit never touches its inputs.
	assert.Len(t, existing, 1)
	assert.Equal(t, 80, existing[0].EstimatedHours)
}

func TestAdmit_HeadroomIsBudgetMinusOthers(t *testing.T) {
	existing := []workload.Project{hoursProject(1, 40, "2024-01-01", "2024-01-14", workload.StatusActive)}
	candidate := hoursProject(0, 60, "2024-01-01", "2024-01-14", workload.StatusPlanned)

	d := workload.NewAdmissionController(workload.HourPolicy{}).Admit(40, existing, candidate)

	require.False(t, d.Accepted)
	assert.Equal(t, "50.00", d.Rejection.CurrentCharge.StringFixed(2))
	assert.Equal(t, "40.00", d.Rejection.Headroom.StringFixed(2))
}

func TestAdmit_AcceptsWithinBudget(t *testing.T) {
	existing := []workload.Project{hoursProject(1, 40, "2024-01-01", "2024-01-14", workload.StatusActive)}
	candidate := hoursProject(0, 40, "2024-01-01", "2024-01-14", workload.StatusPlanned)

	d := workload.NewAdmissionController(workload.HourPolicy{}).Admit(40, existing, candidate)

	assert.True(t, d.Accepted)
	assert.Nil(t, d.Rejection)
	assert.Equal(t, "100.00", d.Projected.Charge.StringFixed(2))
}

func TestAdmit_EditReplacesStoredVersion(t *testing.T) {
	// GIVEN: Project 1 already books the full 80 h budget
	// WHEN: Project 1 itself is edited (same ID, same hours)
	// THEN: It is projected against the others only and accepted

	existing := []workload.Project{hoursProject(1, 80, "2024-01-01", "2024-01-14", workload.StatusActive)}
	edited := hoursProject(1, 80, "2024-01-01", "2024-01-14", workload.StatusActive)
	edited.Name = "renamed"

	d := workload.NewAdmissionController(workload.HourPolicy{}).Admit(40, existing, edited)

	assert.True(t, d.Accepted)
	assert.True(t, d.Current.Charge.IsZero())
	assert.Equal(t, "100.00", d.Projected.Charge.StringFixed(2))
}

func TestAdmit_ZeroCapacity(t *testing.T) {
	candidate := hoursProject(0, 10, "2024-01-01", "2024-01-14", workload.StatusPlanned)

	// Default: a team without hours has charge 0 and anything fits.
	lenient := workload.NewAdmissionController(workload.HourPolicy{})
	d := lenient.Admit(0, nil, candidate)
	assert.True(t, d.Accepted)
	assert.True(t, d.Projected.Charge.IsZero())

	strict := &workload.AdmissionController{Policy: workload.HourPolicy{}, RequireCapacity: true}
	d = strict.Admit(0, nil, candidate)
	require.False(t, d.Accepted)
	assert.Contains(t, d.Rejection.Reason, "no weekly capacity")
}

func TestAdmit_WeightPolicy(t *testing.T) {
	wp := defaultWeights(t)
	existing := []workload.Project{
		weightProject(1, workload.DifficultyMedium, workload.StatusActive),
		weightProject(2, workload.DifficultyHeavy, workload.StatusActive),
	}
	ac := workload.NewAdmissionController(wp)

	// A planned project does not count yet under the weight policy.
	d := ac.Admit(0, existing, weightProject(0, workload.DifficultyHeavy, workload.StatusPlanned))
	assert.True(t, d.Accepted)

	d = ac.Admit(0, existing, weightProject(0, workload.DifficultyLight, workload.StatusActive))
	require.False(t, d.Accepted)
	assert.Equal(t, workload.UnitPoints, d.Rejection.Unit)
	assert.Equal(t, "115.00", d.Rejection.ProjectedCharge.StringFixed(2))
	assert.True(t, d.Rejection.Headroom.IsZero())
}
