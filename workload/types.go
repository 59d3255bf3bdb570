/*
Package workload provides the charge computation engine and the project
lifecycle state machine.

PURPOSE:
  This package holds the domain types (managers, resources, projects) and the
  pure algorithms that derive a manager's load from them. Persistence, HTTP
  and scoring live elsewhere; everything here is deterministic given the
  inputs and a calendar date.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: integer IDs, typed so a ManagerID cannot be passed as a ProjectID
  - Role: closed set of actors (HR, manager, team member)
  - Manager / Resource / Project records
  - Status: planned < active < finished (ordered, never regresses)
  - Difficulty: light / medium / heavy, mapped to weights by WeightPolicy

DERIVED FIELDS:
  Manager.Charge, Project.Status and Project.DaysRemaining are derived.
  They are caches written only by RecomputeCharge and the lifecycle machine.

SEE ALSO:
  - charge.go: ChargePolicy and its two implementations
  - lifecycle.go: status / days-remaining derivation
  - admission.go: overload check before committing a project
  - recalc.go: periodic full recomputation
*/
package workload

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID int64
type ManagerID int64
type ResourceID int64
type ProjectID int64

// =============================================================================
// ROLE - Tagged variant for the actor behind a request
// =============================================================================

// Role is the closed set of user kinds. Permission checks switch over it.
type Role int

const (
	RoleUnknown Role = iota
	RoleHR
	RoleManager
	RoleMember
)

func (r Role) String() string {
	switch r {
	case RoleHR:
		return "hr"
	case RoleManager:
		return "manager"
	case RoleMember:
		return "member"
	default:
		return "unknown"
	}
}

// ParseRole accepts the canonical names and the legacy RH/CHEF/RESSOURCE codes.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hr", "rh":
		return RoleHR, nil
	case "manager", "chef":
		return RoleManager, nil
	case "member", "resource", "ressource":
		return RoleMember, nil
	default:
		return RoleUnknown, fmt.Errorf("unknown role %q", s)
	}
}

// =============================================================================
// PEOPLE
// =============================================================================

// Person is the identity part shared by managers and team members.
type Person struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
}

func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Validate checks the fields every enrolled user must have.
func (p Person) Validate() error {
	switch {
	case strings.TrimSpace(p.FirstName) == "":
		return &FieldError{Field: "first_name", Reason: "required"}
	case strings.TrimSpace(p.LastName) == "":
		return &FieldError{Field: "last_name", Reason: "required"}
	case !strings.Contains(p.Email, "@"):
		return &FieldError{Field: "email", Reason: "must be a valid address"}
	}
	return nil
}

// MaxWeeklyHours bounds every weekly availability figure.
const MaxWeeklyHours = 168

// DefaultWeeklyHours is used when enrollment does not say otherwise.
const DefaultWeeklyHours = 40

func validateWeeklyHours(field string, h int) error {
	if h < 0 || h > MaxWeeklyHours {
		return &FieldError{Field: field, Reason: fmt.Sprintf("must be between 0 and %d", MaxWeeklyHours)}
	}
	return nil
}

// Manager owns a team of resources and a set of projects.
type Manager struct {
	ID                 ManagerID
	CompanyID          CompanyID
	Person             Person
	WeeklyAvailability int // informational, not part of team capacity
	Charge             decimal.Decimal
	Score              float64
	CreatedAt          time.Time
}

func (m Manager) Validate() error {
	if err := m.Person.Validate(); err != nil {
		return err
	}
	return validateWeeklyHours("weekly_availability", m.WeeklyAvailability)
}

// Resource is a team member reporting to exactly one manager.
type Resource struct {
	ID                 ResourceID
	CompanyID          CompanyID
	ManagerID          ManagerID
	Person             Person
	Experience         int
	WeeklyAvailability int
	HourlyCost         decimal.Decimal
	CurrentLoad        int
	AvgSkill           float64
	Score              float64
	Cluster            int
	CreatedAt          time.Time
}

func (r Resource) Validate() error {
	if err := r.Person.Validate(); err != nil {
		return err
	}
	if err := validateWeeklyHours("weekly_availability", r.WeeklyAvailability); err != nil {
		return err
	}
	switch {
	case r.Experience < 0:
		return &FieldError{Field: "experience", Reason: "must not be negative"}
	case r.HourlyCost.IsNegative():
		return &FieldError{Field: "hourly_cost", Reason: "must not be negative"}
	case r.AvgSkill < 0 || r.AvgSkill > 100:
		return &FieldError{Field: "avg_skill", Reason: "must be between 0 and 100"}
	case r.CurrentLoad < 0:
		return &FieldError{Field: "current_load", Reason: "must not be negative"}
	}
	return nil
}

// =============================================================================
// PROJECT
// =============================================================================

// Status is ordered: a project only ever moves to a higher value.
type Status int

const (
	StatusPlanned Status = iota
	StatusActive
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusPlanned:
		return "planned"
	case StatusActive:
		return "active"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) IsTerminal() bool { return s == StatusFinished }

func (s Status) valid() bool { return s >= StatusPlanned && s <= StatusFinished }

func ParseStatus(s string) (Status, error) {
	switch s {
	case "planned":
		return StatusPlanned, nil
	case "active":
		return StatusActive, nil
	case "finished":
		return StatusFinished, nil
	default:
		return StatusPlanned, fmt.Errorf("unknown project status %q", s)
	}
}

// Difficulty is the coarse size class used by the weight policy.
type Difficulty string

const (
	DifficultyLight  Difficulty = "light"
	DifficultyMedium Difficulty = "medium"
	DifficultyHeavy  Difficulty = "heavy"
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyLight, DifficultyMedium, DifficultyHeavy:
		return d, nil
	case "":
		return DifficultyMedium, nil
	default:
		return "", &FieldError{Field: "difficulty", Reason: fmt.Sprintf("unknown difficulty %q", s)}
	}
}

// Project is a unit of work assigned to one manager.
type Project struct {
	ID             ProjectID
	CompanyID      CompanyID
	ManagerID      ManagerID
	Name           string
	Description    string
	Difficulty     Difficulty
	EstimatedHours int
	Start          Date
	End            Date
	Status         Status
	DaysRemaining  int
	CreatedAt      time.Time
}

// Duration is end - start in days.
func (p Project) Duration() int { return DaysBetween(p.Start, p.End) }

// Lifecycle returns the stored derived fields.
func (p Project) Lifecycle() Lifecycle {
	return Lifecycle{Status: p.Status, DaysRemaining: p.DaysRemaining}
}

// Validate checks the fields independent of the charge policy.
func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &FieldError{Field: "name", Reason: "required"}
	}
	if p.Start.IsZero() {
		return &FieldError{Field: "start_date", Reason: "required"}
	}
	if p.End.IsZero() {
		return &FieldError{Field: "end_date", Reason: "required"}
	}
	if p.End.Before(p.Start) {
		return ErrInvalidDates
	}
	if p.EstimatedHours < 0 {
		return &FieldError{Field: "estimated_hours", Reason: "must not be negative"}
	}
	if p.Difficulty != "" {
		if _, err := ParseDifficulty(string(p.Difficulty)); err != nil {
			return err
		}
	}
	return nil
}
