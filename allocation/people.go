package allocation

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/workload-engine/scoring"
	"github.com/warp/workload-engine/workload"
)

// =============================================================================
// MANAGERS
// =============================================================================

// ManagerInput is the editable part of a manager. A nil WeeklyAvailability
// means the default on create and "unchanged" on update.
type ManagerInput struct {
	Person             workload.Person
	WeeklyAvailability *int
}

// EnrollManager creates a manager in the actor's company with charge 0.
func (s *Service) EnrollManager(ctx context.Context, actor Actor, in ManagerInput) (workload.Manager, error) {
	if !actor.Can(ActEnrollManager) {
		return workload.Manager{}, workload.ErrForbidden
	}

	m := workload.Manager{
		CompanyID:          actor.CompanyID,
		Person:             in.Person,
		WeeklyAvailability: workload.DefaultWeeklyHours,
		Charge:             decimal.Zero,
		Score:              scoring.DefaultScore,
	}
	if in.WeeklyAvailability != nil {
		m.WeeklyAvailability = *in.WeeklyAvailability
	}
	if err := m.Validate(); err != nil {
		return workload.Manager{}, err
	}

	var created workload.Manager
	err := s.store.WithTx(ctx, func(st workload.Store) error {
		id, err := st.CreateManager(ctx, m)
		if err != nil {
			return err
		}
		if _, err := workload.RecomputeCharge(ctx, st, s.policy, id); err != nil {
			return err
		}
		got, err := st.GetManager(ctx, id)
		if err != nil {
			return err
		}
		created = *got
		return nil
	})
	if err != nil {
		return workload.Manager{}, err
	}

	s.log.WithFields(logrus.Fields{"manager_id": created.ID, "company_id": created.CompanyID}).Info("manager enrolled")
	return created, nil
}

// UpdateManager replaces the identity fields and availability.
func (s *Service) UpdateManager(ctx context.Context, actor Actor, id workload.ManagerID, in ManagerInput) (workload.Manager, error) {
	if !actor.Can(ActEnrollManager) {
		return workload.Manager{}, workload.ErrForbidden
	}

	var updated workload.Manager
	err := s.store.WithTx(ctx, func(st workload.Store) error {
		m, err := loadManager(ctx, st, actor, id)
		if err != nil {
			return err
		}
		m.Person = in.Person
		if in.WeeklyAvailability != nil {
			m.WeeklyAvailability = *in.WeeklyAvailability
		}
		if err := m.Validate(); err != nil {
			return err
		}
		if err := st.UpdateManager(ctx, *m); err != nil {
			return err
		}
		if _, err := workload.RecomputeCharge(ctx, st, s.policy, id); err != nil {
			return err
		}
		got, err := st.GetManager(ctx, id)
		if err != nil {
			return err
		}
		updated = *got
		return nil
	})
	return updated, err
}

// RemoveManager deletes a manager that no longer owns resources or projects.
func (s *Service) RemoveManager(ctx context.Context, actor Actor, id workload.ManagerID) error {
	if !actor.Can(ActEnrollManager) {
		return workload.ErrForbidden
	}
	err := s.store.WithTx(ctx, func(st workload.Store) error {
		if _, err := loadManager(ctx, st, actor, id); err != nil {
			return err
		}
		team, err := st.ListResourcesByManager(ctx, id)
		if err != nil {
			return err
		}
		projects, err := st.ListProjectsByManager(ctx, id)
		if err != nil {
			return err
		}
		if len(team) > 0 || len(projects) > 0 {
			return workload.ErrManagerHasDependents
		}
		return st.DeleteManager(ctx, id)
	})
	if err == nil {
		s.log.WithField("manager_id", id).Info("manager removed")
	}
	return err
}

// =============================================================================
// RESOURCES
// =============================================================================

// ResourceInput is the editable part of a team member. ManagerID is required
// when HR enrolls; a manager always enrolls into its own team.
type ResourceInput struct {
	ManagerID          workload.ManagerID
	Person             workload.Person
	Experience         int
	WeeklyAvailability *int
	HourlyCost         decimal.Decimal
	CurrentLoad        int
	AvgSkill           float64
}

// ResourceOutcome is a written resource and its manager's new charge.
type ResourceOutcome struct {
	Resource workload.Resource
	Charge   workload.Breakdown
}

func (s *Service) score(ctx context.Context, r *workload.Resource) {
	res, err := s.scorer.Score(ctx, scoring.Attributes{
		Experience:         r.Experience,
		WeeklyAvailability: r.WeeklyAvailability,
		HourlyCost:         r.HourlyCost,
		CurrentLoad:        r.CurrentLoad,
		AvgSkill:           r.AvgSkill,
	})
	if err != nil {
		s.log.WithError(err).WithField("resource_email", r.Person.Email).Warn("scoring failed, using default score")
		r.Score, r.Cluster = scoring.DefaultScore, 0
		return
	}
	r.Score, r.Cluster = res.Score, res.Cluster
}

// EnrollResource adds a member to a team, scores it and recomputes the
// manager's charge in the same transaction.
func (s *Service) EnrollResource(ctx context.Context, actor Actor, in ResourceInput) (ResourceOutcome, error) {
	if !actor.Can(ActManageResources) {
		return ResourceOutcome{}, workload.ErrForbidden
	}

	managerID := in.ManagerID
	if actor.Role == workload.RoleManager {
		if managerID != 0 && managerID != actor.managerID() {
			return ResourceOutcome{}, workload.ErrForbidden
		}
		managerID = actor.managerID()
	}
	if managerID == 0 {
		return ResourceOutcome{}, &workload.FieldError{Field: "manager_id", Reason: "required"}
	}

	r := workload.Resource{
		CompanyID:          actor.CompanyID,
		ManagerID:          managerID,
		Person:             in.Person,
		Experience:         in.Experience,
		WeeklyAvailability: workload.DefaultWeeklyHours,
		HourlyCost:         in.HourlyCost,
		CurrentLoad:        in.CurrentLoad,
		AvgSkill:           in.AvgSkill,
	}
	if in.WeeklyAvailability != nil {
		r.WeeklyAvailability = *in.WeeklyAvailability
	}
	if err := r.Validate(); err != nil {
		return ResourceOutcome{}, err
	}
	s.score(ctx, &r)

	var out ResourceOutcome
	err := s.store.WithTx(ctx, func(st workload.Store) error {
		if _, err := loadManager(ctx, st, actor, managerID); err != nil {
			return err
		}
		id, err := st.CreateResource(ctx, r)
		if err != nil {
			return err
		}
		b, err := workload.RecomputeCharge(ctx, st, s.policy, managerID)
		if err != nil {
			return err
		}
		got, err := st.GetResource(ctx, id)
		if err != nil {
			return err
		}
		out = ResourceOutcome{Resource: *got, Charge: b}
		return nil
	})
	if err != nil {
		return ResourceOutcome{}, err
	}

	s.log.WithFields(logrus.Fields{
		"resource_id": out.Resource.ID,
		"manager_id":  managerID,
		"charge":      out.Charge.Charge.String(),
	}).Info("resource enrolled")
	return out, nil
}

// UpdateResource rewrites a member's profile, re-scores it and recomputes
// the charge. The owning manager does not change.
func (s *Service) UpdateResource(ctx context.Context, actor Actor, id workload.ResourceID, in ResourceInput) (ResourceOutcome, error) {
	if !actor.Can(ActManageResources) {
		return ResourceOutcome{}, workload.ErrForbidden
	}

	current, err := loadResource(ctx, s.store, actor, id)
	if err != nil {
		return ResourceOutcome{}, err
	}
	if in.ManagerID != 0 && in.ManagerID != current.ManagerID {
		return ResourceOutcome{}, &workload.FieldError{Field: "manager_id", Reason: "cannot be changed"}
	}

	next := *current
	next.Person = in.Person
	next.Experience = in.Experience
	next.HourlyCost = in.HourlyCost
	next.CurrentLoad = in.CurrentLoad
	next.AvgSkill = in.AvgSkill
	if in.WeeklyAvailability != nil {
		next.WeeklyAvailability = *in.WeeklyAvailability
	}
	if err := next.Validate(); err != nil {
		return ResourceOutcome{}, err
	}
	s.score(ctx, &next)

	var out ResourceOutcome
	err = s.store.WithTx(ctx, func(st workload.Store) error {
		// Re-check inside the transaction: the record may have gone.
		if _, err := loadResource(ctx, st, actor, id); err != nil {
			return err
		}
		if err := st.UpdateResource(ctx, next); err != nil {
			return err
		}
		b, err := workload.RecomputeCharge(ctx, st, s.policy, next.ManagerID)
		if err != nil {
			return err
		}
		got, err := st.GetResource(ctx, id)
		if err != nil {
			return err
		}
		out = ResourceOutcome{Resource: *got, Charge: b}
		return nil
	})
	return out, err
}

// RemoveResource deletes a member and recomputes its manager's charge.
func (s *Service) RemoveResource(ctx context.Context, actor Actor, id workload.ResourceID) (workload.Breakdown, error) {
	if !actor.Can(ActManageResources) {
		return workload.Breakdown{}, workload.ErrForbidden
	}

	var b workload.Breakdown
	err := s.store.WithTx(ctx, func(st workload.Store) error {
		r, err := loadResource(ctx, st, actor, id)
		if err != nil {
			return err
		}
		if err := st.DeleteResource(ctx, id); err != nil {
			return err
		}
		b, err = workload.RecomputeCharge(ctx, st, s.policy, r.ManagerID)
		return err
	})
	return b, err
}

// GetResource returns one member visible to the actor.
func (s *Service) GetResource(ctx context.Context, actor Actor, id workload.ResourceID) (workload.Resource, error) {
	if !actor.Can(ActManageResources) {
		return workload.Resource{}, workload.ErrForbidden
	}
	r, err := loadResource(ctx, s.store, actor, id)
	if err != nil {
		return workload.Resource{}, err
	}
	return *r, nil
}
