/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  workload domain types. Charges and decimals are rendered as JSON numbers
  rounded to 2 places; dates as YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Auth:        RegisterRequest, LoginRequest, TokenResponse, UserDTO
  People:      ManagerDTO, CreateManagerRequest, ResourceDTO, CreateResourceRequest
  Projects:    ProjectDTO, ProjectRequest, ProjectResponse, ProjectListResponse
  Charge:      BreakdownDTO, RejectionDTO
  Dashboard:   TeamDTO, StatisticsDTO
  Scheduler:   RecalculationRunDTO

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/workload-engine/allocation"
	"github.com/warp/workload-engine/workload"
)

// =============================================================================
// AUTH
// =============================================================================

// RegisterRequest creates a company and its HR account.
type RegisterRequest struct {
	CompanyName string `json:"company_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	User      UserDTO `json:"user"`
}

type UserDTO struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"company_id"`
	CompanyName string `json:"company_name,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

func toUserDTO(u workload.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		CompanyID: int64(u.CompanyID),
		FirstName: u.Person.FirstName,
		LastName:  u.Person.LastName,
		Email:     u.Person.Email,
		Role:      u.Role.String(),
	}
}

// MeResponse is the caller's profile, with the manager or resource record
// attached when the role has one.
type MeResponse struct {
	User     UserDTO      `json:"user"`
	Manager  *ManagerDTO  `json:"manager,omitempty"`
	Resource *ResourceDTO `json:"resource,omitempty"`
}

// =============================================================================
// PEOPLE
// =============================================================================

type ManagerDTO struct {
	ID                 int64   `json:"id"`
	FirstName          string  `json:"first_name"`
	LastName           string  `json:"last_name"`
	Email              string  `json:"email"`
	WeeklyAvailability int     `json:"weekly_availability"`
	Charge             float64 `json:"charge"`
	Score              float64 `json:"score"`
	CreatedAt          string  `json:"created_at,omitempty"`
}

// CreateManagerRequest is also used for updates; an empty password keeps
// the current one.
type CreateManagerRequest struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	WeeklyAvailability *int   `json:"weekly_availability,omitempty"`
}

func toManagerDTO(m workload.Manager) ManagerDTO {
	return ManagerDTO{
		ID:                 int64(m.ID),
		FirstName:          m.Person.FirstName,
		LastName:           m.Person.LastName,
		Email:              m.Person.Email,
		WeeklyAvailability: m.WeeklyAvailability,
		Charge:             number(m.Charge),
		Score:              m.Score,
		CreatedAt:          timestamp(m.CreatedAt),
	}
}

type ResourceDTO struct {
	ID                 int64   `json:"id"`
	ManagerID          int64   `json:"manager_id"`
	FirstName          string  `json:"first_name"`
	LastName           string  `json:"last_name"`
	Email              string  `json:"email"`
	Experience         int     `json:"experience"`
	WeeklyAvailability int     `json:"weekly_availability"`
	HourlyCost         float64 `json:"hourly_cost"`
	CurrentLoad        int     `json:"current_load"`
	AvgSkill           float64 `json:"avg_skill"`
	Score              float64 `json:"score"`
	Cluster            int     `json:"cluster"`
	CreatedAt          string  `json:"created_at,omitempty"`
}

type CreateResourceRequest struct {
	ManagerID          int64           `json:"manager_id,omitempty"`
	FirstName          string          `json:"first_name"`
	LastName           string          `json:"last_name"`
	Email              string          `json:"email"`
	Password           string          `json:"password"`
	Experience         int             `json:"experience"`
	WeeklyAvailability *int            `json:"weekly_availability,omitempty"`
	HourlyCost         decimal.Decimal `json:"hourly_cost"`
	CurrentLoad        int             `json:"current_load"`
	AvgSkill           float64         `json:"avg_skill"`
}

func toResourceDTO(r workload.Resource) ResourceDTO {
	return ResourceDTO{
		ID:                 int64(r.ID),
		ManagerID:          int64(r.ManagerID),
		FirstName:          r.Person.FirstName,
		LastName:           r.Person.LastName,
		Email:              r.Person.Email,
		Experience:         r.Experience,
		WeeklyAvailability: r.WeeklyAvailability,
		HourlyCost:         number(r.HourlyCost),
		CurrentLoad:        r.CurrentLoad,
		AvgSkill:           r.AvgSkill,
		Score:              r.Score,
		Cluster:            r.Cluster,
		CreatedAt:          timestamp(r.CreatedAt),
	}
}

// ResourceResponse is a written resource plus the manager's new charge.
type ResourceResponse struct {
	Resource ResourceDTO  `json:"resource"`
	Charge   BreakdownDTO `json:"charge"`
}

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectDTO struct {
	ID             int64  `json:"id"`
	ManagerID      int64  `json:"manager_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Difficulty     string `json:"difficulty"`
	EstimatedHours int    `json:"estimated_hours"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	DurationDays   int    `json:"duration_days"`
	Status         string `json:"status"`
	DaysRemaining  int    `json:"days_remaining"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type ProjectRequest struct {
	ManagerID      int64  `json:"manager_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Difficulty     string `json:"difficulty"`
	EstimatedHours int    `json:"estimated_hours"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
}

func (req ProjectRequest) input() allocation.ProjectInput {
	return allocation.ProjectInput{
		ManagerID:      workload.ManagerID(req.ManagerID),
		Name:           req.Name,
		Description:    req.Description,
		Difficulty:     req.Difficulty,
		EstimatedHours: req.EstimatedHours,
		Start:          req.StartDate,
		End:            req.EndDate,
	}
}

func toProjectDTO(p workload.Project) ProjectDTO {
	return ProjectDTO{
		ID:             int64(p.ID),
		ManagerID:      int64(p.ManagerID),
		Name:           p.Name,
		Description:    p.Description,
		Difficulty:     string(p.Difficulty),
		EstimatedHours: p.EstimatedHours,
		StartDate:      p.Start.String(),
		EndDate:        p.End.String(),
		DurationDays:   p.Duration(),
		Status:         p.Status.String(),
		DaysRemaining:  p.DaysRemaining,
		CreatedAt:      timestamp(p.CreatedAt),
	}
}

// ProjectResponse is returned when a project is accepted.
type ProjectResponse struct {
	Project        ProjectDTO   `json:"project"`
	Charge         BreakdownDTO `json:"charge"`
	WeeklyCapacity int          `json:"weekly_capacity"`
}

type ProjectListResponse struct {
	Projects []ProjectDTO    `json:"projects"`
	Stats    ProjectStatsDTO `json:"stats"`
}

type ProjectStatsDTO struct {
	Total    int `json:"total"`
	Planned  int `json:"planned"`
	Active   int `json:"active"`
	Finished int `json:"finished"`
}

// =============================================================================
// CHARGE
// =============================================================================

type WindowDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

type BreakdownDTO struct {
	Policy   string     `json:"policy"`
	Unit     string     `json:"unit"`
	Capacity int        `json:"weekly_capacity"`
	Window   *WindowDTO `json:"window,omitempty"`
	Budget   float64    `json:"budget"`
	Demand   float64    `json:"demand"`
	Raw      float64    `json:"raw"`
	Charge   float64    `json:"charge"`
	Projects int        `json:"contributing_projects"`
}

func toBreakdownDTO(b workload.Breakdown) BreakdownDTO {
	dto := BreakdownDTO{
		Policy:   string(b.Policy),
		Unit:     string(b.Unit),
		Capacity: b.Capacity,
		Budget:   number(b.Budget),
		Demand:   number(b.Demand),
		Raw:      number(b.Raw),
		Charge:   number(b.Charge),
		Projects: b.Projects,
	}
	if b.Window != nil {
		dto.Window = &WindowDTO{Start: b.Window.Start.String(), End: b.Window.End.String(), Days: b.Window.Days()}
	}
	return dto
}

// RejectionDTO is the body of a 400 returned by admission control.
type RejectionDTO struct {
	Error           string     `json:"error"`
	Reason          string     `json:"reason"`
	CurrentCharge   float64    `json:"current_charge"`
	ProjectedCharge float64    `json:"projected_charge"`
	Headroom        float64    `json:"headroom"`
	Unit            string     `json:"unit"`
	WeeklyCapacity  int        `json:"weekly_capacity"`
	Candidate       ProjectDTO `json:"project"`
}

func toRejectionDTO(out allocation.ProjectOutcome) RejectionDTO {
	rej := out.Decision.Rejection
	return RejectionDTO{
		Error:           "Project rejected",
		Reason:          rej.Reason,
		CurrentCharge:   number(rej.CurrentCharge),
		ProjectedCharge: number(rej.ProjectedCharge),
		Headroom:        number(rej.Headroom),
		Unit:            string(rej.Unit),
		WeeklyCapacity:  rej.WeeklyCapacity,
		Candidate:       toProjectDTO(out.Project),
	}
}

// =============================================================================
// DASHBOARD
// =============================================================================

type TeamDTO struct {
	Manager        ManagerDTO    `json:"manager"`
	Resources      []ResourceDTO `json:"resources"`
	WeeklyCapacity int           `json:"weekly_capacity"`
}

type StatisticsDTO struct {
	Managers         int     `json:"managers"`
	Resources        int     `json:"resources"`
	PlannedProjects  int     `json:"planned_projects"`
	ActiveProjects   int     `json:"active_projects"`
	FinishedProjects int     `json:"finished_projects"`
	AverageCharge    float64 `json:"average_charge"`
}

// =============================================================================
// SCHEDULER
// =============================================================================

type RecalculationRunDTO struct {
	ID               string   `json:"id"`
	Today            string   `json:"today"`
	Status           string   `json:"status"`
	ProjectsScanned  int      `json:"projects_scanned"`
	ProjectsAdvanced int      `json:"projects_advanced"`
	ManagersScanned  int      `json:"managers_scanned"`
	ManagersUpdated  int      `json:"managers_updated"`
	Failures         int      `json:"failures"`
	Errors           []string `json:"errors,omitempty"`
	StartedAt        string   `json:"started_at"`
	CompletedAt      string   `json:"completed_at,omitempty"`
	Shared           bool     `json:"shared,omitempty"`
}

func toRunDTO(run workload.RecalculationRun) RecalculationRunDTO {
	return RecalculationRunDTO{
		ID:               run.ID,
		Today:            run.Today.String(),
		Status:           string(run.Status),
		ProjectsScanned:  run.ProjectsScanned,
		ProjectsAdvanced: run.ProjectsAdvanced,
		ManagersScanned:  run.ManagersScanned,
		ManagersUpdated:  run.ManagersUpdated,
		Failures:         run.Failures,
		Errors:           run.Errors,
		StartedAt:        timestamp(run.StartedAt),
		CompletedAt:      timestamp(run.CompletedAt),
	}
}

// ErrorResponse is the body of every non-2xx response except rejections.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

func number(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
