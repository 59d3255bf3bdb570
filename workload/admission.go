/*
admission.go - Overload check before a project is committed

PURPOSE:
  Projects a manager's charge as if a candidate project were already
  assigned, using the configured ChargePolicy, and refuses the candidate
  when the projection exceeds 100%.

CONTRACT:
  Admit is pure. It never writes. The caller persists the project only when
  Decision.Accepted is true and then recomputes the stored charge from the
  store (see RecomputeCharge), never from the projection.

EDITS:
  When the candidate carries an ID, any project with the same ID is removed
  from the existing set first, so an edit is projected against the other
  projects plus its new version.

HEADROOM:
  Headroom is how much the candidate could have used without overloading:
    hours policy:  budget over the projected window - other projects' hours
    weight policy: 100 - other active projects' weights
  Floored at zero.
*/
package workload

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rejection explains why a candidate was refused. It is a value, not an error.
type Rejection struct {
	Reason          string
	CurrentCharge   decimal.Decimal
	ProjectedCharge decimal.Decimal // unclamped
	Headroom        decimal.Decimal
	Unit            LoadUnit
	WeeklyCapacity  int
}

// Decision is the result of an admission check.
type Decision struct {
	Accepted  bool
	Rejection *Rejection
	Current   Breakdown
	Projected Breakdown
}

// AdmissionController decides whether a candidate project fits.
type AdmissionController struct {
	Policy ChargePolicy

	// RequireCapacity refuses contributing work for a team with zero weekly
	// capacity under the hours policy. Off: such a team has charge 0.
	RequireCapacity bool
}

func NewAdmissionController(policy ChargePolicy) *AdmissionController {
	return &AdmissionController{Policy: policy}
}

// Admit projects the charge with candidate included.
func (a *AdmissionController) Admit(capacity int, existing []Project, candidate Project) Decision {
	others := make([]Project, 0, len(existing)+1)
	for _, p := range existing {
		if candidate.ID != 0 && p.ID == candidate.ID {
			continue
		}
		others = append(others, p)
	}

	current := a.Policy.Evaluate(capacity, others)
	projected := a.Policy.Evaluate(capacity, append(others, candidate))

	d := Decision{Accepted: true, Current: current, Projected: projected}

	contributes := a.Policy.Contributes(candidate)
	candidateDemand := decimal.Zero
	if contributes {
		candidateDemand = a.Policy.Demand(candidate)
	}

	headroom := projected.Budget.Sub(projected.Demand.Sub(candidateDemand))
	if headroom.IsNegative() {
		headroom = decimal.Zero
	}

	reject := func(reason string) Decision {
		d.Accepted = false
		d.Rejection = &Rejection{
			Reason:          reason,
			CurrentCharge:   current.Charge,
			ProjectedCharge: projected.Raw,
			Headroom:        headroom.Round(2),
			Unit:            projected.Unit,
			WeeklyCapacity:  capacity,
		}
		return d
	}

	if a.RequireCapacity && a.Policy.Kind() == PolicyHours && capacity <= 0 && contributes {
		return reject("manager's team has no weekly capacity")
	}
	if projected.Raw.GreaterThan(hundred) {
		return reject(fmt.Sprintf("manager would be overloaded: projected charge %s%% exceeds 100%%",
			projected.Raw.StringFixed(2)))
	}
	return d
}
