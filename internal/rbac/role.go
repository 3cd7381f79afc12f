// Package rbac implements the fixed role hierarchy used for every
// authorization decision: viewer < analyst < cfo < admin.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Role is a user role name as stored and carried in tokens.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleAnalyst Role = "analyst"
	RoleCFO     Role = "cfo"
	RoleAdmin   Role = "admin"
)

// DefaultRole is assigned to every self-registered account.
const DefaultRole = RoleViewer

var ranks = map[Role]int{
	RoleViewer:  0,
	RoleAnalyst: 1,
	RoleCFO:     2,
	RoleAdmin:   3,
}

// All returns roles ordered from least to most privileged.
func All() []Role {
	return []Role{RoleViewer, RoleAnalyst, RoleCFO, RoleAdmin}
}

// Rank returns the position of role in the hierarchy.
func Rank(role Role) (int, bool) {
	r, ok := ranks[role]
	return r, ok
}

// Valid reports whether role is one of the known roles.
func Valid(role Role) bool {
	_, ok := ranks[role]
	return ok
}

// ErrInvalidRole is returned by Parse for names outside the hierarchy.
var ErrInvalidRole = errors.New("invalid role")

// Parse converts s to a Role. Matching is exact: "Admin" is not a role.
func Parse(s string) (Role, error) {
	role := Role(s)
	if !Valid(role) {
		names := make([]string, 0, len(ranks))
		for _, r := range All() {
			names = append(names, string(r))
		}
		return "", fmt.Errorf("%w %q, must be one of: %s", ErrInvalidRole, s, strings.Join(names, ", "))
	}
	return role, nil
}

func (r Role) String() string {
	return string(r)
}

// Hierarchy answers permission questions and reports anomalies.
type Hierarchy struct {
	logger *slog.Logger
}

// NewHierarchy creates a Hierarchy that logs unknown roles to logger.
func NewHierarchy(logger *slog.Logger) *Hierarchy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hierarchy{logger: logger}
}

// HasPermission reports whether userRole ranks at or above required.
// Unknown roles on either side never grant access.
func (h *Hierarchy) HasPermission(ctx context.Context, userRole, required Role) bool {
	userRank, ok := Rank(userRole)
	if !ok {
		h.logger.WarnContext(ctx, "permission check with unknown user role",
			slog.String("user_role", string(userRole)),
			slog.String("required_role", string(required)))
		return false
	}

	requiredRank, ok := Rank(required)
	if !ok {
		h.logger.WarnContext(ctx, "permission check with unknown required role",
			slog.String("user_role", string(userRole)),
			slog.String("required_role", string(required)))
		return false
	}

	return userRank >= requiredRank
}

// CanExecuteAgents is true for analyst and above.
func (h *Hierarchy) CanExecuteAgents(ctx context.Context, role Role) bool {
	return h.HasPermission(ctx, role, RoleAnalyst)
}

// CanViewAllReports is true for cfo and above.
func (h *Hierarchy) CanViewAllReports(ctx context.Context, role Role) bool {
	return h.HasPermission(ctx, role, RoleCFO)
}

// CanManageUsers is true for admin only.
func (h *Hierarchy) CanManageUsers(ctx context.Context, role Role) bool {
	return h.HasPermission(ctx, role, RoleAdmin)
}
