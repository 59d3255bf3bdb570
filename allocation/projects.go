package allocation

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/warp/workload-engine/workload"
)

// =============================================================================
// PROJECTS
// =============================================================================

// ProjectInput is the editable part of a project. Dates are YYYY-MM-DD.
type ProjectInput struct {
	ManagerID      workload.ManagerID
	Name           string
	Description    string
	Difficulty     string
	EstimatedHours int
	Start          string
	End            string
}

// ProjectOutcome is the result of a create or update. When the decision is
// a rejection, Project is the refused candidate (never stored) and Charge is
// the unchanged current load.
type ProjectOutcome struct {
	Project        workload.Project
	Decision       workload.Decision
	Charge         workload.Breakdown
	WeeklyCapacity int
}

// Accepted reports whether the project was written.
func (o ProjectOutcome) Accepted() bool { return o.Decision.Accepted }

func (in ProjectInput) apply(p *workload.Project) error {
	start, err := workload.ParseDate(strings.TrimSpace(in.Start))
	if err != nil {
		return err
	}
	end, err := workload.ParseDate(strings.TrimSpace(in.End))
	if err != nil {
		return err
	}
	difficulty, err := workload.ParseDifficulty(in.Difficulty)
	if err != nil {
		return err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Difficulty = difficulty
	p.EstimatedHours = in.EstimatedHours
	p.Start = start
	p.End = end
	return nil
}

func (s *Service) validateProject(p workload.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.policy.Validate(p)
}

// CreateProject admits and stores a project for a manager of the actor's
// company. A rejection is returned in the outcome, with a nil error.
func (s *Service) CreateProject(ctx context.Context, actor Actor, in ProjectInput) (ProjectOutcome, error) {
	if !actor.Can(ActManageProjects) {
		return ProjectOutcome{}, workload.ErrForbidden
	}
	if in.ManagerID == 0 {
		return ProjectOutcome{}, &workload.FieldError{Field: "manager_id", Reason: "required"}
	}

	p := workload.Project{CompanyID: actor.CompanyID, ManagerID: in.ManagerID}
	if err := in.apply(&p); err != nil {
		return ProjectOutcome{}, err
	}
	if err := s.validateProject(p); err != nil {
		return ProjectOutcome{}, err
	}
	lc := workload.InitialLifecycle(p.Start, p.End, s.clock())
	p.Status, p.DaysRemaining = lc.Status, lc.DaysRemaining

	out, err := s.admitAndWrite(ctx, actor, p, nil, func(st workload.Store, p *workload.Project) error {
		id, err := st.CreateProject(ctx, *p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return ProjectOutcome{}, err
	}
	s.logOutcome("project created", out)
	return out, nil
}

// UpdateProject edits a project. The lifecycle is re-derived from the new
// dates and the status stored at write time, so it never moves backwards,
// and the edit goes through admission against the manager's other projects.
func (s *Service) UpdateProject(ctx context.Context, actor Actor, id workload.ProjectID, in ProjectInput) (ProjectOutcome, error) {
	if !actor.Can(ActManageProjects) {
		return ProjectOutcome{}, workload.ErrForbidden
	}

	current, err := loadProject(ctx, s.store, actor, id)
	if err != nil {
		return ProjectOutcome{}, err
	}
	if in.ManagerID != 0 && in.ManagerID != current.ManagerID {
		return ProjectOutcome{}, &workload.FieldError{Field: "manager_id", Reason: "cannot be changed"}
	}

	p := *current
	if err := in.apply(&p); err != nil {
		return ProjectOutcome{}, err
	}
	if err := s.validateProject(p); err != nil {
		return ProjectOutcome{}, err
	}

	// The row read above may be stale by the time the transaction starts.
	refresh := func(st workload.Store, p *workload.Project) error {
		fresh, err := loadProject(ctx, st, actor, p.ID)
		if err != nil {
			return err
		}
		if fresh.ManagerID != p.ManagerID {
			return &workload.FieldError{Field: "manager_id", Reason: "cannot be changed"}
		}
		p.CreatedAt = fresh.CreatedAt
		lc := workload.Advance(fresh.Status, p.Start, p.End, s.clock())
		p.Status, p.DaysRemaining = lc.Status, lc.DaysRemaining
		return nil
	}

	out, err := s.admitAndWrite(ctx, actor, p, refresh, func(st workload.Store, p *workload.Project) error {
		return st.UpdateProject(ctx, *p)
	})
	if err != nil {
		return ProjectOutcome{}, err
	}
	s.logOutcome("project updated", out)
	return out, nil
}

// admitAndWrite runs admission and, on accept, the write and the charge
// recomputation, all in one transaction over the same view. prepare, when
// set, finishes the candidate from that view before admission sees it.
func (s *Service) admitAndWrite(ctx context.Context, actor Actor, p workload.Project,
	prepare, write func(workload.Store, *workload.Project) error) (ProjectOutcome, error) {

	var out ProjectOutcome
	err := s.store.WithTx(ctx, func(st workload.Store) error {
		if _, err := loadManager(ctx, st, actor, p.ManagerID); err != nil {
			return err
		}
		if prepare != nil {
			if err := prepare(st, &p); err != nil {
				return err
			}
		}
		team, err := st.ListResourcesByManager(ctx, p.ManagerID)
		if err != nil {
			return err
		}
		existing, err := st.ListProjectsByManager(ctx, p.ManagerID)
		if err != nil {
			return err
		}

		capacity := workload.Capacity(team)
		decision := s.admission.Admit(capacity, existing, p)
		out = ProjectOutcome{Project: p, Decision: decision, Charge: decision.Current, WeeklyCapacity: capacity}
		if !decision.Accepted {
			return nil
		}

		if err := write(st, &p); err != nil {
			return err
		}
		b, err := workload.RecomputeCharge(ctx, st, s.policy, p.ManagerID)
		if err != nil {
			return err
		}
		got, err := st.GetProject(ctx, p.ID)
		if err != nil {
			return err
		}
		if got != nil {
			p = *got
		}
		out.Project = p
		out.Charge = b
		return nil
	})
	return out, err
}

func (s *Service) logOutcome(msg string, out ProjectOutcome) {
	fields := logrus.Fields{
		"manager_id": out.Project.ManagerID,
		"accepted":   out.Decision.Accepted,
		"charge":     out.Charge.Charge.String(),
	}
	if out.Decision.Accepted {
		fields["project_id"] = out.Project.ID
		s.log.WithFields(fields).Info(msg)
		return
	}
	fields["projected"] = out.Decision.Rejection.ProjectedCharge.String()
	s.log.WithFields(fields).Info("project rejected by admission control")
}

// DeleteProject removes a project and recomputes its manager's charge.
func (s *Service) DeleteProject(ctx context.Context, actor Actor, id workload.ProjectID) (workload.Breakdown, error) {
	if !actor.Can(ActManageProjects) {
		return workload.Breakdown{}, workload.ErrForbidden
	}
	var b workload.Breakdown
	err := s.store.WithTx(ctx, func(st workload.Store) error {
		p, err := loadProject(ctx, st, actor, id)
		if err != nil {
			return err
		}
		if err := st.DeleteProject(ctx, id); err != nil {
			return err
		}
		b, err = workload.RecomputeCharge(ctx, st, s.policy, p.ManagerID)
		return err
	})
	return b, err
}

// GetProject returns one project visible to the actor.
func (s *Service) GetProject(ctx context.Context, actor Actor, id workload.ProjectID) (workload.Project, error) {
	if !actor.Can(ActViewProjects) {
		return workload.Project{}, workload.ErrForbidden
	}
	p, err := loadProject(ctx, s.store, actor, id)
	if err != nil {
		return workload.Project{}, err
	}
	return *p, nil
}

// =============================================================================
// LISTING
// =============================================================================

// StatusCounts tallies a project list.
type StatusCounts struct {
	Total    int
	Planned  int
	Active   int
	Finished int
}

type ProjectList struct {
	Projects []workload.Project
	Counts   StatusCounts
}

// ListProjects returns the company's projects for HR and the caller's own
// for a manager, ordered active, planned, finished, then latest start first.
func (s *Service) ListProjects(ctx context.Context, actor Actor) (ProjectList, error) {
	if !actor.Can(ActViewProjects) {
		return ProjectList{}, workload.ErrForbidden
	}

	var (
		projects []workload.Project
		err      error
	)
	if actor.Role == workload.RoleHR {
		projects, err = s.store.ListProjectsByCompany(ctx, actor.CompanyID)
	} else {
		projects, err = s.store.ListProjectsByManager(ctx, actor.managerID())
	}
	if err != nil {
		return ProjectList{}, err
	}

	SortProjects(projects)
	list := ProjectList{Projects: projects}
	for _, p := range projects {
		list.Counts.Total++
		switch p.Status {
		case workload.StatusPlanned:
			list.Counts.Planned++
		case workload.StatusActive:
			list.Counts.Active++
		case workload.StatusFinished:
			list.Counts.Finished++
		}
	}
	return list, nil
}

var listRank = map[workload.Status]int{
	workload.StatusActive:   0,
	workload.StatusPlanned:  1,
	workload.StatusFinished: 2,
}

// SortProjects orders in place: active, planned, finished, then start date
// descending, then ID.
func SortProjects(projects []workload.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		a, b := projects[i], projects[j]
		if ra, rb := listRank[a.Status], listRank[b.Status]; ra != rb {
			return ra < rb
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.After(b.Start)
		}
		return a.ID < b.ID
	})
}
