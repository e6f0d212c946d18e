package auth

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Daemonophobic/phalerum-api/internal/database"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// PermissionResolver answers whether a set of roles grants a permission
// action. Role lookups are cached; Invalidate must be called when a role's
// permission set changes.
type PermissionResolver struct {
	roles database.RoleRepository
	cache *lru.Cache[string, []string]
}

// NewPermissionResolver creates a resolver caching up to cacheSize roles.
func NewPermissionResolver(roles database.RoleRepository, cacheSize int) (*PermissionResolver, error) {
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &PermissionResolver{
		roles: roles,
		cache: cache,
	}, nil
}

// Allowed reports whether any of the roles carries the given action.
// Unknown role names are skipped rather than treated as errors.
func (r *PermissionResolver) Allowed(ctx context.Context, roleNames []string, action string) (bool, error) {
	for _, name := range roleNames {
		actions, err := r.actionsFor(ctx, name)
		if err != nil {
			if errors.Is(err, operr.ErrNotFound) {
				continue
			}
			return false, err
		}
		for _, a := range actions {
			if a == action {
				return true, nil
			}
		}
	}
	return false, nil
}

// Require rejects the session with a forbidden error unless one of its
// roles grants the action.
func (r *PermissionResolver) Require(ctx context.Context, claims *models.SessionClaims, action string) error {
	if claims == nil {
		return operr.ErrUnauthenticated
	}
	allowed, err := r.Allowed(ctx, claims.Roles, action)
	if err != nil {
		return err
	}
	if !allowed {
		return operr.ErrForbidden
	}
	return nil
}

// Invalidate drops a role from the cache.
func (r *PermissionResolver) Invalidate(roleName string) {
	r.cache.Remove(roleName)
}

func (r *PermissionResolver) actionsFor(ctx context.Context, roleName string) ([]string, error) {
	if actions, ok := r.cache.Get(roleName); ok {
		return actions, nil
	}

	role, err := r.roles.GetByName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	r.cache.Add(roleName, role.Permissions)
	return role.Permissions, nil
}
