package allocation

import "github.com/warp/workload-engine/workload"

// =============================================================================
// ACTOR - Who is making the call
// =============================================================================

// Actor is the authenticated caller. For a manager, UserID is its ManagerID.
type Actor struct {
	UserID    int64
	Role      workload.Role
	CompanyID workload.CompanyID
}

// Action is an operation class subject to a role check.
type Action int

const (
	ActEnrollManager Action = iota
	ActManageResources
	ActManageProjects
	ActViewProjects
	ActViewDashboard
	ActViewCharge
	ActViewStatistics
	ActRecalculate
)

// Can reports whether the role may perform the action at all. Ownership
// (a manager touching only its own team) is checked by each operation.
func (a Actor) Can(act Action) bool {
	switch a.Role {
	case workload.RoleHR:
		return true
	case workload.RoleManager:
		switch act {
		case ActManageResources, ActViewProjects, ActViewDashboard, ActViewCharge:
			return true
		}
		return false
	case workload.RoleMember:
		return false
	default:
		return false
	}
}

func (a Actor) managerID() workload.ManagerID {
	return workload.ManagerID(a.UserID)
}

// owns reports whether the actor may act on records of manager id.
func (a Actor) owns(id workload.ManagerID) bool {
	switch a.Role {
	case workload.RoleHR:
		return true
	case workload.RoleManager:
		return a.managerID() == id
	default:
		return false
	}
}
