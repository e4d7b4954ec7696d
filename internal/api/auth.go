// Package api implements HTTP handlers and helpers for the induction
// planning service.
package api

import (
	"net/http"
	"strings"

	"metrosched/internal/auth"
)

type Principal struct {
	Tenant string
	Role   string // admin, planner, viewer
	Depot  string
}

// getPrincipal extracts tenant and role from JWT or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return Principal{Tenant: pr.Tenant, Role: pr.Role, Depot: pr.Depot}
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := r.Header.Get("X-Role")
	depot := r.Header.Get("X-Depot")
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = auth.RoleAdmin
	}
	return Principal{Tenant: tenant, Role: role, Depot: depot}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == auth.RoleAdmin }

// CanPlan reports whether the principal may generate schedules or run
// simulations.
func (p Principal) CanPlan() bool { return p.Role == auth.RoleAdmin || p.Role == auth.RolePlanner }
