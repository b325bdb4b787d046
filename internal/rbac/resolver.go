// Package rbac resolves a user's effective permissions, caching the result.
//
// Resolution order is cache first, database second. The cache is best-effort:
// a miss, a timeout, or a disabled cache all land on the same database path,
// and the freshly computed result is written back for the next request.
// Invalidation is delegated to the cache layer, which also fans it out to
// other processes over pub/sub.
package rbac

import (
	"context"
	"encoding/json"

	"github.com/admin-backend/admin-backend/internal/auth"
	"github.com/admin-backend/admin-backend/internal/cache"
	"github.com/admin-backend/admin-backend/internal/telemetry"
)

// PermissionSource loads role and permission rows for a user. Implemented by
// repositories.RoleRepository.
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
	GetUserRoleNames(ctx context.Context, userID string) ([]string, error)
}

// Cache is the slice of the cache client the resolver needs. A nil
// *cache.Client satisfies it as a permanently missing cache.
type Cache interface {
	Enabled() bool
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	InvalidateUser(ctx context.Context, tenantID, userID string)
	InvalidateTenantRoles(ctx context.Context, tenantID, roleID string)
}

// Resolver answers permission questions about users
type Resolver struct {
	source PermissionSource
	cache  Cache
}

// NewResolver creates a resolver backed by the given source and cache. A nil
// cache means every lookup goes to the database.
func NewResolver(source PermissionSource, c Cache) *Resolver {
	if c == nil {
		c = (*cache.Client)(nil)
	}
	return &Resolver{source: source, cache: c}
}

// UserPermissions returns the user's effective permission set, aggregated
// across their unexpired roles.
func (r *Resolver) UserPermissions(ctx context.Context, tenantID, userID string) (auth.PermissionSet, error) {
	key := cache.Key(tenantID, cache.PrefixUserPermissions, userID)
	if data, ok := r.cache.Get(ctx, key); ok {
		var perms []string
		if err := json.Unmarshal(data, &perms); err == nil {
			telemetry.CacheHitsTotal.Inc()
			return auth.NewPermissionSet(perms), nil
		}
		// Corrupt entry; fall through and overwrite it.
	}
	if r.cache.Enabled() {
		telemetry.CacheMissesTotal.Inc()
	}

	perms, err := r.source.GetUserPermissions(ctx, userID)
	if err != nil {
		return auth.PermissionSet{}, err
	}
	set := auth.NewPermissionSet(perms)

	if payload, err := json.Marshal(set.Values()); err == nil {
		r.cache.Set(ctx, key, payload)
	}
	return set, nil
}

// UserRoleNames returns the names of the user's unexpired roles
func (r *Resolver) UserRoleNames(ctx context.Context, tenantID, userID string) ([]string, error) {
	key := cache.Key(tenantID, cache.PrefixUserRoles, userID)
	if data, ok := r.cache.Get(ctx, key); ok {
		var names []string
		if err := json.Unmarshal(data, &names); err == nil {
			telemetry.CacheHitsTotal.Inc()
			return names, nil
		}
	}
	if r.cache.Enabled() {
		telemetry.CacheMissesTotal.Inc()
	}

	names, err := r.source.GetUserRoleNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}

	if payload, err := json.Marshal(names); err == nil {
		r.cache.Set(ctx, key, payload)
	}
	return names, nil
}

// HasPermission reports whether the user holds the permission, directly or
// through the wildcard.
func (r *Resolver) HasPermission(ctx context.Context, tenantID, userID, permission string) (bool, error) {
	set, err := r.UserPermissions(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	return set.Has(permission), nil
}

// InvalidateUser drops the user's cached permissions here and in every other
// process. Called after role assignment changes.
func (r *Resolver) InvalidateUser(ctx context.Context, tenantID, userID string) {
	r.cache.InvalidateUser(ctx, tenantID, userID)
}

// InvalidateTenantRoles drops all cached permissions for a tenant. Called
// after a role's permission list changes or the role is deleted.
func (r *Resolver) InvalidateTenantRoles(ctx context.Context, tenantID, roleID string) {
	r.cache.InvalidateTenantRoles(ctx, tenantID, roleID)
}
