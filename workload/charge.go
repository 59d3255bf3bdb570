/*
charge.go - Charge policies

PURPOSE:
  Converts a manager's team capacity and project set into a load percentage
  in [0, 100]. One ChargePolicy is chosen at configuration time
  (factory.NewChargePolicy) and the same value is used for the initial
  charge, incremental recomputation, the scheduler and admission control.

POLICIES:
  HourPolicy (kind "hours"):
    contributing = planned + active projects
    window       = [earliest start, latest end]
    budget       = capacity x (window days / 7)
    charge       = min(100, round(sum(estimated hours) / budget x 100, 2))
    capacity 0 or no projects -> 0

  WeightPolicy (kind "weights"):
    contributing = active projects
    charge       = min(100, sum(difficulty weight))
    capacity is not consulted

BREAKDOWN:
  Evaluate returns a Breakdown rather than a bare number so that admission
  control can explain a refusal (budget, demand, unclamped value).

SEE ALSO:
  - admission.go: uses Evaluate with a candidate project
  - factory/policy.go: builds a policy from configuration
*/
package workload

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PolicyKind names a charge policy in configuration.
type PolicyKind string

const (
	PolicyHours   PolicyKind = "hours"
	PolicyWeights PolicyKind = "weights"
)

// LoadUnit is the unit of Budget, Demand and admission headroom.
type LoadUnit string

const (
	UnitHours  LoadUnit = "hours"
	UnitPoints LoadUnit = "points"
)

var hundred = decimal.NewFromInt(100)

// ClampCharge bounds a percentage to [0, 100].
func ClampCharge(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

// Window is the span covered by the contributing projects.
type Window struct {
	Start Date
	End   Date
}

// Days counts both ends.
func (w Window) Days() int { return DaysBetween(w.Start, w.End) + 1 }

func (w Window) String() string { return "[" + w.Start.String() + ", " + w.End.String() + "]" }

// Breakdown is the full result of a charge evaluation.
type Breakdown struct {
	Policy   PolicyKind
	Unit     LoadUnit
	Capacity int     // weekly team hours
	Window   *Window // nil for the weight policy or an empty set
	Budget   decimal.Decimal
	Demand   decimal.Decimal
	Raw      decimal.Decimal // before clamping, rounded to 2 places
	Charge   decimal.Decimal // ClampCharge(Raw)
	Projects int             // contributing projects
}

func emptyBreakdown(kind PolicyKind, unit LoadUnit, capacity int) Breakdown {
	return Breakdown{
		Policy:   kind,
		Unit:     unit,
		Capacity: capacity,
		Budget:   decimal.Zero,
		Demand:   decimal.Zero,
		Raw:      decimal.Zero,
		Charge:   decimal.Zero,
	}
}

// ChargePolicy computes a manager's load. Implementations must be pure.
type ChargePolicy interface {
	Kind() PolicyKind

	// Contributes reports whether the project counts toward the load.
	Contributes(p Project) bool

	// Demand is what a single project adds to Breakdown.Demand.
	Demand(p Project) decimal.Decimal

	// Validate checks the policy-specific project fields.
	Validate(p Project) error

	// Evaluate computes the load of the contributing subset of projects.
	Evaluate(capacity int, projects []Project) Breakdown
}

// =============================================================================
// HOUR POLICY
// =============================================================================

// HourPolicy spreads estimated hours over the covering window.
type HourPolicy struct{}

func (HourPolicy) Kind() PolicyKind { return PolicyHours }

func (HourPolicy) Contributes(p Project) bool {
	return p.Status == StatusPlanned || p.Status == StatusActive
}

func (HourPolicy) Demand(p Project) decimal.Decimal {
	return decimal.NewFromInt(int64(p.EstimatedHours))
}

func (HourPolicy) Validate(p Project) error {
	if p.EstimatedHours <= 0 {
		return &FieldError{Field: "estimated_hours", Reason: "must be a positive number of hours"}
	}
	return nil
}

func (hp HourPolicy) Evaluate(capacity int, projects []Project) Breakdown {
	b := emptyBreakdown(PolicyHours, UnitHours, capacity)

	var window Window
	for _, p := range projects {
		if !hp.Contributes(p) {
			continue
		}
		if b.Projects == 0 {
			window = Window{Start: p.Start, End: p.End}
		} else {
			window.Start = MinDate(window.Start, p.Start)
			window.End = MaxDate(window.End, p.End)
		}
		b.Projects++
		b.Demand = b.Demand.Add(hp.Demand(p))
	}
	if b.Projects == 0 {
		return b
	}
	b.Window = &window

	days := window.Days()
	if capacity <= 0 || days <= 0 {
		return b
	}

	// budget = capacity * days / 7; keep the division last to stay exact.
	seven := decimal.NewFromInt(7)
	b.Budget = decimal.NewFromInt(int64(capacity) * int64(days)).Div(seven)
	b.Raw = b.Demand.Mul(hundred).Mul(seven).
		Div(decimal.NewFromInt(int64(capacity) * int64(days))).
		Round(2)
	b.Charge = ClampCharge(b.Raw)
	return b
}

// =============================================================================
// WEIGHT POLICY
// =============================================================================

// DefaultWeights is the difficulty table used when configuration omits one.
var DefaultWeights = map[Difficulty]int{
	DifficultyLight:  15,
	DifficultyMedium: 40,
	DifficultyHeavy:  60,
}

// WeightPolicy adds a fixed weight per active project.
type WeightPolicy struct {
	Weights map[Difficulty]int
}

// NewWeightPolicy fills missing entries from DefaultWeights.
func NewWeightPolicy(weights map[Difficulty]int) (*WeightPolicy, error) {
	table := make(map[Difficulty]int, len(DefaultWeights))
	for d, w := range DefaultWeights {
		table[d] = w
	}
	for d, w := range weights {
		if _, err := ParseDifficulty(string(d)); err != nil || d == "" {
			return nil, fmt.Errorf("weight table: unknown difficulty %q", d)
		}
		if w < 0 || w > 100 {
			return nil, fmt.Errorf("weight table: %s weight %d outside [0, 100]", d, w)
		}
		table[d] = w
	}
	return &WeightPolicy{Weights: table}, nil
}

func (*WeightPolicy) Kind() PolicyKind { return PolicyWeights }

func (*WeightPolicy) Contributes(p Project) bool { return p.Status == StatusActive }

func (wp *WeightPolicy) Demand(p Project) decimal.Decimal {
	d := p.Difficulty
	if d == "" {
		d = DifficultyMedium
	}
	return decimal.NewFromInt(int64(wp.Weights[d]))
}

func (wp *WeightPolicy) Validate(p Project) error {
	if _, ok := wp.Weights[p.Difficulty]; !ok {
		return &FieldError{Field: "difficulty", Reason: fmt.Sprintf("must be one of light, medium, heavy (got %q)", p.Difficulty)}
	}
	return nil
}

func (wp *WeightPolicy) Evaluate(capacity int, projects []Project) Breakdown {
	b := emptyBreakdown(PolicyWeights, UnitPoints, capacity)
	b.Budget = hundred
	for _, p := range projects {
		if !wp.Contributes(p) {
			continue
		}
		b.Projects++
		b.Demand = b.Demand.Add(wp.Demand(p))
	}
	b.Raw = b.Demand.Round(2)
	b.Charge = ClampCharge(b.Raw)
	return b
}
