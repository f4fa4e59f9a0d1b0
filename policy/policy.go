package policy

import (
	"slices"

	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/models"
)

// Action is a capability a role may hold
type Action string

const (
	ActionJobRead       Action = "job:read"
	ActionJobWrite      Action = "job:write"
	ActionTaskRead      Action = "task:read"
	ActionTaskWrite     Action = "task:write"
	ActionTaskProgress  Action = "task:progress"
	ActionEquipmentRead Action = "equipment:read"
	ActionEquipmentWrite Action = "equipment:write"
	ActionDashboardRead Action = "dashboard:read"
	ActionAnalyticsRead Action = "analytics:read"
	ActionUserCreate    Action = "user:create"
	ActionUserList      Action = "user:list"
	ActionUserSetRole   Action = "user:set_role"
)

type actionSet map[Action]bool

func newActionSet(actions ...Action) actionSet {
	s := make(actionSet, len(actions))
	for _, a := range actions {
		s[a] = true
	}
	return s
}

var readOnly = []Action{
	ActionJobRead,
	ActionTaskRead,
	ActionEquipmentRead,
	ActionDashboardRead,
}

var staff = slices.Concat(readOnly, []Action{
	ActionJobWrite,
	ActionTaskWrite,
	ActionTaskProgress,
	ActionEquipmentWrite,
	ActionAnalyticsRead,
	ActionUserList,
})

// capabilities is the single role -> permitted actions table.
// task:progress for technicians is further gated on job assignment.
var capabilities = map[models.Role]actionSet{
	models.RoleAdmin:      newActionSet(slices.Concat(staff, []Action{ActionUserCreate, ActionUserSetRole})...),
	models.RoleSalesAgent: newActionSet(staff...),
	models.RoleTechnician: newActionSet(slices.Concat(readOnly, []Action{ActionTaskProgress})...),
}

// Can reports whether role holds action. Unknown roles hold nothing.
func Can(role models.Role, action Action) bool {
	return capabilities[role][action]
}

// Authorize returns a permission error unless user holds action
func Authorize(user *models.User, action Action) error {
	if user == nil {
		return apperr.Authentication("UNAUTHORIZED", "Authentication required")
	}
	if !Can(user.Role, action) {
		return apperr.Permission("FORBIDDEN", "You do not have permission to perform this action")
	}
	return nil
}

// AuthorizeTaskUpdate decides whether user may update a task of job.
// Roles with task:write get full access. Roles holding only task:progress
// must be the job's assignee; anyone else is denied outright.
func AuthorizeTaskUpdate(user *models.User, job *models.Job) error {
	if user == nil {
		return apperr.Authentication("UNAUTHORIZED", "Authentication required")
	}
	if Can(user.Role, ActionTaskWrite) {
		return nil
	}
	if !Can(user.Role, ActionTaskProgress) {
		return apperr.Permission("FORBIDDEN", "You do not have permission to update tasks")
	}
	if job == nil || job.AssignedToID == nil || *job.AssignedToID != user.ID {
		return apperr.Permission("FORBIDDEN", "Only the technician assigned to this job can update its tasks")
	}
	return nil
}
