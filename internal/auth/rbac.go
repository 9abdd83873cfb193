package auth

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleInstructor Role = "instructor"
	RoleViewer     Role = "viewer"
)

type Permission string

const (
	PermRunRead       Permission = "run:read"
	PermRunCreate     Permission = "run:create"
	PermRunControl    Permission = "run:control"
	PermRunDelete     Permission = "run:delete"
	PermSnapshotRead  Permission = "snapshot:read"
	PermSnapshotWrite Permission = "snapshot:write"
	PermMetricsRead   Permission = "metrics:read"
	PermMetricsConfig Permission = "metrics:config"
	PermAuditRead     Permission = "audit:read"
)

type RBACManager struct {
	rolePermissions map[Role][]Permission
}

func NewRBACManager() *RBACManager {
	rbac := &RBACManager{
		rolePermissions: make(map[Role][]Permission),
	}
	rbac.initializeRoles()
	return rbac
}

func (r *RBACManager) initializeRoles() {
	r.rolePermissions[RoleInstructor] = []Permission{
		PermRunRead, PermRunCreate, PermRunControl, PermRunDelete,
		PermSnapshotRead, PermSnapshotWrite,
		PermMetricsRead, PermMetricsConfig,
		PermAuditRead,
	}

	// Viewers follow runs someone else drives.
	r.rolePermissions[RoleViewer] = []Permission{
		PermRunRead,
		PermSnapshotRead,
		PermMetricsRead,
	}
}

func (r *RBACManager) HasPermission(role Role, permission Permission) bool {
	for _, p := range r.rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

func (r *RBACManager) GetRolePermissions(role Role) []Permission {
	return r.rolePermissions[role]
}

type UIPermissions struct {
	CanCreateRuns   bool `json:"can_create_runs"`
	CanControlRuns  bool `json:"can_control_runs"`
	CanDeleteRuns   bool `json:"can_delete_runs"`
	CanSaveSnapshot bool `json:"can_save_snapshot"`
	CanSetAlerts    bool `json:"can_set_alerts"`
	CanViewAudit    bool `json:"can_view_audit"`
}

func (r *RBACManager) GetUIPermissions(role Role) UIPermissions {
	return UIPermissions{
		CanCreateRuns:   r.HasPermission(role, PermRunCreate),
		CanControlRuns:  r.HasPermission(role, PermRunControl),
		CanDeleteRuns:   r.HasPermission(role, PermRunDelete),
		CanSaveSnapshot: r.HasPermission(role, PermSnapshotWrite),
		CanSetAlerts:    r.HasPermission(role, PermMetricsConfig),
		CanViewAudit:    r.HasPermission(role, PermAuditRead),
	}
}

// ParseRole accepts a role name in any case; empty means viewer.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleViewer:
		return RoleViewer, nil
	case RoleInstructor:
		return RoleInstructor, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func GetAllRoles() []Role {
	return []Role{RoleInstructor, RoleViewer}
}

func GetRoleDescription(role Role) string {
	descriptions := map[Role]string{
		RoleInstructor: "Creates, drives and deletes simulation runs and snapshots",
		RoleViewer:     "Read-only access to runs, metrics and snapshots",
	}
	return descriptions[role]
}
