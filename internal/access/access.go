// Package access decides which role tags may use which capabilities.
package access

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Role is a tag carried by a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// ParseRole normalises a role name, returning false for unknown roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleAnalyst, RoleViewer:
		return r, true
	}
	return "", false
}

// Capability is one guarded action or screen.
type Capability string

const (
	CapDashboard        Capability = "dashboard:view"
	CapExceptionsView   Capability = "exceptions:view"
	CapExceptionsManage Capability = "exceptions:manage"
	CapRulesView        Capability = "rules:view"
	CapRulesEdit        Capability = "rules:edit"
	CapRulesRun         Capability = "rules:run"
	CapTemplatesView    Capability = "templates:view"
	CapConnectorsView   Capability = "connectors:view"
	CapConnectorsManage Capability = "connectors:manage"
	CapUsersManage      Capability = "users:manage"
	CapAuditView        Capability = "audit:view"
)

// Policy maps each capability to the role tags that grant it.
type Policy map[Capability][]Role

// DefaultPolicy is the built-in role model.
func DefaultPolicy() Policy {
	all := []Role{RoleAdmin, RoleAnalyst, RoleViewer}
	staff := []Role{RoleAdmin, RoleAnalyst}
	admin := []Role{RoleAdmin}
	return Policy{
		CapDashboard:        all,
		CapExceptionsView:   all,
		CapExceptionsManage: staff,
		CapRulesView:        all,
		CapRulesEdit:        staff,
		CapRulesRun:         staff,
		CapTemplatesView:    all,
		CapConnectorsView:   all,
		CapConnectorsManage: admin,
		CapUsersManage:      admin,
		CapAuditView:        staff,
	}
}

// Gate is the single authorization check. It is immutable after creation.
type Gate struct {
	grants map[Capability]map[Role]struct{}
}

func NewGate(p Policy) *Gate {
	g := &Gate{grants: make(map[Capability]map[Role]struct{}, len(p))}
	for c, roles := range p {
		set := make(map[Role]struct{}, len(roles))
		for _, r := range roles {
			set[r] = struct{}{}
		}
		g.grants[c] = set
	}
	return g
}

// Allows reports whether any of roles grants c. Unknown capabilities are
// denied.
func (g *Gate) Allows(roles []Role, c Capability) bool {
	set, ok := g.grants[c]
	if !ok {
		return false
	}
	for _, r := range roles {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// Check is Allows as an error.
func (g *Gate) Check(roles []Role, c Capability) error {
	if g.Allows(roles, c) {
		return nil
	}
	return ErrForbidden
}

// Capabilities lists what roles may do, sorted.
func (g *Gate) Capabilities(roles []Role) []Capability {
	var out []Capability
	for c := range g.grants {
		if g.Allows(roles, c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Roles  []Role `json:"roles"`
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
