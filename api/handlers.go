/*
handlers.go - HTTP API handlers for the workload engine

PURPOSE:
  Exposes the allocation service via REST API. Handles HTTP request and
  response, JSON serialization, and delegates to allocation.Service.

ENDPOINTS:
  Auth (public):
    POST   /api/auth/register          Create company + HR account, returns token
    POST   /api/auth/login             Exchange credentials for a token
    GET    /api/health                 Liveness + last recalculation

  People:
    GET    /api/me                     Caller profile
    POST   /api/managers               Enroll manager (HR)
    PUT    /api/managers/{id}          Update manager (HR)
    DELETE /api/managers/{id}          Remove manager without dependents (HR)
    GET    /api/managers/{id}/charge   Charge breakdown (HR, the manager)
    POST   /api/resources              Enroll team member (HR, manager)
    GET    /api/resources/{id}         Get team member
    PUT    /api/resources/{id}         Update team member
    DELETE /api/resources/{id}         Remove team member

  Projects:
    GET    /api/projects               List (HR: company, manager: own)
    POST   /api/projects               Create through admission control (HR)
    GET    /api/projects/{id}          Get project
    PUT    /api/projects/{id}          Edit through admission control (HR)
    DELETE /api/projects/{id}          Delete (HR)

  Overview:
    GET    /api/dashboard/resources    Teams with capacity
    GET    /api/statistics             Company totals (HR)

  Admin:
    POST   /api/admin/recalculate           Run a recalculation pass now (HR)
    GET    /api/admin/recalculation-runs    Pass history (HR)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, malformed input, admission rejection
  - 401: Missing or invalid token, bad credentials
  - 403: Role does not allow the operation
  - 404: Record not found (or belongs to another company)
  - 409: Duplicate email or company, manager still owning work
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Tokens and the Authenticate middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/workload-engine/allocation"
	"github.com/warp/workload-engine/workload"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the persistence the handlers read directly.
// *sqlite.Store implements it.
type Backend interface {
	workload.Store
	workload.AccountStore
	workload.RunStore
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *allocation.Service
	Store     Backend
	Tokens    *TokenIssuer
	Scheduler *RecalculationScheduler
	Log       logrus.FieldLogger
}

// NewHandler creates a handler. Scheduler may be set afterwards.
func NewHandler(svc *allocation.Service, store Backend, tokens *TokenIssuer, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Service: svc,
		Store:   store,
		Tokens:  tokens,
		Log:     log.WithField("component", "api"),
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Register creates a company and its HR user.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CompanyName) == "" {
		h.fail(w, &workload.FieldError{Field: "company_name", Reason: "required"})
		return
	}

	person := workload.Person{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	if err := person.Validate(); err != nil {
		h.fail(w, err)
		return
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	person.PasswordHash = hash

	company, user, err := h.Store.RegisterCompany(r.Context(), req.CompanyName, person)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.Log.WithFields(logrus.Fields{"company_id": company.ID, "user_id": user.ID}).Info("company registered")

	resp, err := h.tokenResponse(user, company.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login exchanges email and password for a token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil || !checkPassword(user.Person.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}

	companyName := ""
	if company, err := h.Store.GetCompany(r.Context(), user.CompanyID); err == nil && company != nil {
		companyName = company.Name
	}
	resp, err := h.tokenResponse(*user, companyName)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) tokenResponse(user workload.User, companyName string) (TokenResponse, error) {
	token, expires, err := h.Tokens.Issue(user)
	if err != nil {
		return TokenResponse{}, err
	}
	dto := toUserDTO(user)
	dto.CompanyName = companyName
	return TokenResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339), User: dto}, nil
}

// Me returns the caller's profile.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)

	user, err := h.Store.GetUser(ctx, actor.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil || user.CompanyID != actor.CompanyID {
		h.fail(w, workload.ErrUserNotFound)
		return
	}

	resp := MeResponse{User: toUserDTO(*user)}
	if company, err := h.Store.GetCompany(ctx, user.CompanyID); err == nil && company != nil {
		resp.User.CompanyName = company.Name
	}
	switch user.Role {
	case workload.RoleManager:
		if m, err := h.Store.GetManager(ctx, workload.ManagerID(user.ID)); err == nil && m != nil {
			dto := toManagerDTO(*m)
			resp.Manager = &dto
		}
	case workload.RoleMember:
		if res, err := h.Store.GetResource(ctx, workload.ResourceID(user.ID)); err == nil && res != nil {
			dto := toResourceDTO(*res)
			resp.Resource = &dto
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// MANAGER HANDLERS
// =============================================================================

// CreateManager enrolls a manager.
// POST /api/managers
func (h *Handler) CreateManager(w http.ResponseWriter, r *http.Request) {
	var req CreateManagerRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := managerInput(req, true)
	if err != nil {
		h.fail(w, err)
		return
	}

	m, err := h.Service.EnrollManager(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toManagerDTO(m))
}

// UpdateManager replaces a manager's profile.
// PUT /api/managers/{id}
func (h *Handler) UpdateManager(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CreateManagerRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := managerInput(req, false)
	if err != nil {
		h.fail(w, err)
		return
	}

	m, err := h.Service.UpdateManager(r.Context(), actorFrom(r.Context()), workload.ManagerID(id), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toManagerDTO(m))
}

// DeleteManager removes a manager with no team and no projects.
// DELETE /api/managers/{id}
func (h *Handler) DeleteManager(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.RemoveManager(r.Context(), actorFrom(r.Context()), workload.ManagerID(id)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetManagerCharge explains a manager's current load.
// GET /api/managers/{id}/charge
func (h *Handler) GetManagerCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.Service.ChargeBreakdown(r.Context(), actorFrom(r.Context()), workload.ManagerID(id))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(b))
}

func managerInput(req CreateManagerRequest, requirePassword bool) (allocation.ManagerInput, error) {
	person := workload.Person{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	if requirePassword || req.Password != "" {
		hash, err := hashPassword(req.Password)
		if err != nil {
			return allocation.ManagerInput{}, err
		}
		person.PasswordHash = hash
	}
	return allocation.ManagerInput{Person: person, WeeklyAvailability: req.WeeklyAvailability}, nil
}

// =============================================================================
// RESOURCE HANDLERS
// =============================================================================

// CreateResource enrolls a team member.
// POST /api/resources
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req CreateResourceRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := resourceInput(req, true)
	if err != nil {
		h.fail(w, err)
		return
	}

	out, err := h.Service.EnrollResource(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ResourceResponse{
		Resource: toResourceDTO(out.Resource),
		Charge:   toBreakdownDTO(out.Charge),
	})
}

// GetResource returns one team member.
// GET /api/resources/{id}
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Service.GetResource(r.Context(), actorFrom(r.Context()), workload.ResourceID(id))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTO(res))
}

// UpdateResource replaces a team member's profile.
// PUT /api/resources/{id}
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CreateResourceRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := resourceInput(req, false)
	if err != nil {
		h.fail(w, err)
		return
	}

	out, err := h.Service.UpdateResource(r.Context(), actorFrom(r.Context()), workload.ResourceID(id), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResourceResponse{
		Resource: toResourceDTO(out.Resource),
		Charge:   toBreakdownDTO(out.Charge),
	})
}

// DeleteResource removes a team member and returns the new charge.
// DELETE /api/resources/{id}
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.Service.RemoveResource(r.Context(), actorFrom(r.Context()), workload.ResourceID(id))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(b))
}

func resourceInput(req CreateResourceRequest, requirePassword bool) (allocation.ResourceInput, error) {
	person := workload.Person{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	if requirePassword || req.Password != "" {
		hash, err := hashPassword(req.Password)
		if err != nil {
			return allocation.ResourceInput{}, err
		}
		person.PasswordHash = hash
	}
	return allocation.ResourceInput{
		ManagerID:          workload.ManagerID(req.ManagerID),
		Person:             person,
		Experience:         req.Experience,
		WeeklyAvailability: req.WeeklyAvailability,
		HourlyCost:         req.HourlyCost,
		CurrentLoad:        req.CurrentLoad,
		AvgSkill:           req.AvgSkill,
	}, nil
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns the visible projects with status counts.
// GET /api/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListProjects(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}

	dtos := make([]ProjectDTO, len(list.Projects))
	for i, p := range list.Projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, ProjectListResponse{
		Projects: dtos,
		Stats: ProjectStatsDTO{
			Total:    list.Counts.Total,
			Planned:  list.Counts.Planned,
			Active:   list.Counts.Active,
			Finished: list.Counts.Finished,
		},
	})
}

// CreateProject admits and stores a project.
// POST /api/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.Service.CreateProject(r.Context(), actorFrom(r.Context()), req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOutcome(w, http.StatusCreated, out)
}

// GetProject returns one project.
// GET /api/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Service.GetProject(r.Context(), actorFrom(r.Context()), workload.ProjectID(id))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(p))
}

// UpdateProject edits a project through admission control.
// PUT /api/projects/{id}
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ProjectRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.Service.UpdateProject(r.Context(), actorFrom(r.Context()), workload.ProjectID(id), req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOutcome(w, http.StatusOK, out)
}

// DeleteProject removes a project and returns the manager's new charge.
// DELETE /api/projects/{id}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.Service.DeleteProject(r.Context(), actorFrom(r.Context()), workload.ProjectID(id))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(b))
}

func writeOutcome(w http.ResponseWriter, status int, out allocation.ProjectOutcome) {
	if !out.Accepted() {
		writeJSON(w, http.StatusBadRequest, toRejectionDTO(out))
		return
	}
	writeJSON(w, status, ProjectResponse{
		Project:        toProjectDTO(out.Project),
		Charge:         toBreakdownDTO(out.Charge),
		WeeklyCapacity: out.WeeklyCapacity,
	})
}

// =============================================================================
// OVERVIEW HANDLERS
// =============================================================================

// Dashboard lists teams with their capacity.
// GET /api/dashboard/resources
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	teams, err := h.Service.Dashboard(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}

	dtos := make([]TeamDTO, len(teams))
	for i, t := range teams {
		resources := make([]ResourceDTO, len(t.Resources))
		for j, res := range t.Resources {
			resources[j] = toResourceDTO(res)
		}
		dtos[i] = TeamDTO{Manager: toManagerDTO(t.Manager), Resources: resources, WeeklyCapacity: t.Capacity}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Statistics returns company totals.
// GET /api/statistics
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.Can(allocation.ActViewStatistics) {
		h.fail(w, workload.ErrForbidden)
		return
	}
	stats, err := h.Store.Statistics(r.Context(), actor.CompanyID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatisticsDTO{
		Managers:         stats.Managers,
		Resources:        stats.Resources,
		PlannedProjects:  stats.PlannedProjects,
		ActiveProjects:   stats.ActiveProjects,
		FinishedProjects: stats.FinishedProjects,
		AverageCharge:    number(stats.AverageCharge),
	})
}

// Health reports liveness, the charge policy and the last pass.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"policy": string(h.Service.Policy().Kind()),
	}
	if err := h.Store.Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if h.Scheduler != nil {
		if run, ok := h.Scheduler.LastRun(); ok {
			resp["last_recalculation"] = toRunDTO(run)
		}
		resp["next_recalculation"] = h.Scheduler.NextRunTime().UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRecalculation runs a pass now, or joins the running one.
// POST /api/admin/recalculate
func (h *Handler) TriggerRecalculation(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r.Context()).Can(allocation.ActRecalculate) {
		h.fail(w, workload.ErrForbidden)
		return
	}
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	run, shared := h.Scheduler.RunNow(r.Context())
	dto := toRunDTO(run)
	dto.Shared = shared
	writeJSON(w, http.StatusOK, dto)
}

// ListRecalculationRuns returns pass history, newest first.
// GET /api/admin/recalculation-runs?limit=20
func (h *Handler) ListRecalculationRuns(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r.Context()).Can(allocation.ActRecalculate) {
		h.fail(w, workload.ErrForbidden)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.fail(w, &workload.FieldError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRecalculationRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]RecalculationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the workload error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case workload.IsClientError(err):
		return http.StatusBadRequest
	case workload.IsNotFound(err):
		return http.StatusNotFound
	case workload.IsForbidden(err):
		return http.StatusForbidden
	case workload.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}

	var fe *workload.FieldError
	if errors.As(err, &fe) {
		resp.Field = fe.Field
	}
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error("request failed")
		resp.Details = ""
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body. It writes the 400 itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid ID", err)
		return 0, false
	}
	return id, true
}
