// Package rbac maps roles onto a static capability matrix. Roles have no
// hierarchy; each role's capability set is enumerated explicitly.
package rbac

import (
	"github.com/cyberguard/aegis/internal/models"
)

// Capability names a single boolean permission flag.
type Capability string

const (
	CanViewDashboard  Capability = "canViewDashboard"
	CanBlockIPs       Capability = "canBlockIPs"
	CanManageUsers    Capability = "canManageUsers"
	CanViewAuditLogs  Capability = "canViewAuditLogs"
	CanConfigureRules Capability = "canConfigureRules"
	CanManageAlerts   Capability = "canManageAlerts"
)

// permissionMatrix is the read-only role -> capability table. Every role
// lists every capability so a missing entry is a compile-review signal,
// not a runtime surprise.
var permissionMatrix = map[models.Role]map[Capability]bool{
	models.RoleAdmin: {
		CanViewDashboard:  true,
		CanBlockIPs:       true,
		CanManageUsers:    true,
		CanViewAuditLogs:  true,
		CanConfigureRules: true,
		CanManageAlerts:   true,
	},
	models.RoleAnalyst: {
		CanViewDashboard:  true,
		CanBlockIPs:       true,
		CanManageUsers:    false,
		CanViewAuditLogs:  true,
		CanConfigureRules: false,
		CanManageAlerts:   true,
	},
	models.RoleUser: {
		CanViewDashboard:  true,
		CanBlockIPs:       false,
		CanManageUsers:    false,
		CanViewAuditLogs:  false,
		CanConfigureRules: false,
		CanManageAlerts:   false,
	},
}

// HasPermission reports whether role grants the capability. Unknown roles
// and unknown capabilities are both false; this never panics.
func HasPermission(role models.Role, capability Capability) bool {
	caps, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	return caps[capability]
}

// HasRole reports whether role is a member of allowed.
func HasRole(role models.Role, allowed ...models.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// Guard is a reusable predicate over an optional current role. A nil role
// always fails, so handlers can pass through unauthenticated state without
// a separate check.
type Guard func(role *models.Role) bool

// RequireRole returns a guard that passes only when the current role is a
// member of allowed.
func RequireRole(allowed ...models.Role) Guard {
	return func(role *models.Role) bool {
		if role == nil {
			return false
		}
		return HasRole(*role, allowed...)
	}
}

// RequirePermission returns a guard that passes only when the current role
// grants the capability.
func RequirePermission(capability Capability) Guard {
	return func(role *models.Role) bool {
		if role == nil {
			return false
		}
		return HasPermission(*role, capability)
	}
}
