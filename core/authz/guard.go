// Package authz holds the single authorization guard composed in front of
// every privileged operation: bearer credential in, typed allow/deny out.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"hackhub/core/idp"
	"hackhub/core/store"
	"hackhub/core/utils"
)

type Permission string

const (
	PermUsersView   Permission = "users.view"
	PermUsersCreate Permission = "users.create"
	PermUsersEdit   Permission = "users.edit"
	PermUsersDelete Permission = "users.delete"
	PermUsersImport Permission = "users.import"
	PermRolesEdit   Permission = "roles.edit"
)

var (
	ErrNoCredential    = errors.New("missing bearer credential")
	ErrUnknownIdentity = errors.New("credential does not resolve to a user")
	ErrForbidden       = errors.New("caller role not allowed")
)

// Decision is the guard's allow result: the verified caller identity.
type Decision struct {
	ActorID string
	Email   string
	Role    string
}

const modelText = `
[request_definition]
r = sub, perm

[policy_definition]
p = sub, perm

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.perm == p.perm
`

// Administrative permissions are all reserved to super_admin; the other roles
// in the enumeration hold none of them.
var policies = [][]string{
	{store.RoleSuperAdmin, string(PermUsersView)},
	{store.RoleSuperAdmin, string(PermUsersCreate)},
	{store.RoleSuperAdmin, string(PermUsersEdit)},
	{store.RoleSuperAdmin, string(PermUsersDelete)},
	{store.RoleSuperAdmin, string(PermUsersImport)},
	{store.RoleSuperAdmin, string(PermRolesEdit)},
}

type Guard struct {
	provider idp.Provider
	roles    store.RolesStore
	enforcer *casbin.Enforcer
	logger   *utils.Logger
}

func NewGuard(provider idp.Provider, roles store.RolesStore, logger *utils.Logger) (*Guard, error) {
	m, err := casbinmodel.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz enforcer: %w", err)
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1]); err != nil {
			return nil, fmt.Errorf("authz policy: %w", err)
		}
	}
	return &Guard{provider: provider, roles: roles, enforcer: e, logger: logger}, nil
}

// Require resolves the bearer credential and checks the caller's role against
// the permission. Every step fails closed. The role lookup runs on the
// process's own elevated store connection, never one scoped to the caller.
func (g *Guard) Require(ctx context.Context, bearer string, perm Permission) (*Decision, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(bearer), "Bearer "))
	if token == "" {
		return nil, ErrNoCredential
	}
	ident, err := g.provider.ResolveToken(ctx, token)
	if err != nil {
		if errors.Is(err, idp.ErrUnknownToken) {
			return nil, ErrUnknownIdentity
		}
		return nil, err
	}
	role, err := g.roles.RoleFor(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, ErrForbidden
	}
	ok, err := g.enforcer.Enforce(role, string(perm))
	if err != nil {
		return nil, err
	}
	if !ok {
		if g.logger != nil {
			g.logger.Printf("authz deny user=%s role=%s need=%s", ident.Email, role, perm)
		}
		return nil, ErrForbidden
	}
	return &Decision{ActorID: ident.ID, Email: ident.Email, Role: role}, nil
}

type contextKey struct{}

// DecisionContextKey carries the guard decision through request contexts.
var DecisionContextKey = contextKey{}

func WithDecision(ctx context.Context, d *Decision) context.Context {
	return context.WithValue(ctx, DecisionContextKey, d)
}

func FromContext(ctx context.Context) *Decision {
	if v := ctx.Value(DecisionContextKey); v != nil {
		if d, ok := v.(*Decision); ok {
			return d
		}
	}
	return nil
}
