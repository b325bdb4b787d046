package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/admin-backend/admin-backend/internal/safego"
	"github.com/admin-backend/admin-backend/internal/telemetry"
)

// Invalidation message types carried on the broadcast channel.
const (
	MsgUserInvalidate = "user_permissions_invalidate"
	MsgRoleInvalidate = "role_invalidate"
)

// InvalidationMessage is the pub/sub payload broadcast after any permission
// mutation. Exactly one of UserID or RoleID is set, matching Type.
type InvalidationMessage struct {
	Type     string `json:"type"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	RoleID   string `json:"role_id,omitempty"`
}

// InvalidateUser drops every cached artifact for one user, then broadcasts so
// other processes do the same. The delete happens before the publish and
// before the caller returns, which is what guarantees the next permission
// read recomputes from the database.
func (c *Client) InvalidateUser(ctx context.Context, tenantID, userID string) {
	if c == nil {
		return
	}
	c.Delete(ctx,
		Key(tenantID, PrefixUserPermissions, userID),
		Key(tenantID, PrefixUserRoles, userID),
		Key(tenantID, PrefixUserData, userID),
	)
	c.publish(ctx, InvalidationMessage{
		Type:     MsgUserInvalidate,
		TenantID: tenantID,
		UserID:   userID,
	})
}

// InvalidateTenantRoles drops the cached permissions and role lists of every
// user in the tenant. Used after a role mutation, when the set of affected
// users is unknown, then broadcasts for other processes.
func (c *Client) InvalidateTenantRoles(ctx context.Context, tenantID, roleID string) {
	if c == nil {
		return
	}
	c.DeletePattern(ctx, Key(tenantID, PrefixUserPermissions, "*"))
	c.DeletePattern(ctx, Key(tenantID, PrefixUserRoles, "*"))
	c.publish(ctx, InvalidationMessage{
		Type:     MsgRoleInvalidate,
		TenantID: tenantID,
		RoleID:   roleID,
	})
}

// publish broadcasts an invalidation message. Best-effort like every other
// cache operation; a lost broadcast only means other processes serve stale
// entries until TTL expiry.
func (c *Client) publish(ctx context.Context, msg InvalidationMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("cache invalidation marshal failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Publish(ctx, c.channel, payload).Err(); err != nil {
		telemetry.CacheErrorsTotal.Inc()
		slog.Debug("cache invalidation publish failed", "error", err)
	}
}

// StartInvalidationListener subscribes to the broadcast channel and re-applies
// each received invalidation locally. Deletes are idempotent, so receiving our
// own broadcasts is harmless. The listener stops when ctx is cancelled.
func (c *Client) StartInvalidationListener(ctx context.Context) {
	if c == nil {
		return
	}
	sub := c.rdb.Subscribe(ctx, c.channel)

	safego.Go("cache-invalidation-listener", func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg InvalidationMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					slog.Warn("cache invalidation message unreadable", "error", err)
					continue
				}
				c.apply(ctx, msg)
			}
		}
	})
}

// apply performs the local half of a broadcast invalidation without
// republishing, which would loop forever.
func (c *Client) apply(ctx context.Context, msg InvalidationMessage) {
	switch msg.Type {
	case MsgUserInvalidate:
		c.Delete(ctx,
			Key(msg.TenantID, PrefixUserPermissions, msg.UserID),
			Key(msg.TenantID, PrefixUserRoles, msg.UserID),
			Key(msg.TenantID, PrefixUserData, msg.UserID),
		)
	case MsgRoleInvalidate:
		c.DeletePattern(ctx, Key(msg.TenantID, PrefixUserPermissions, "*"))
		c.DeletePattern(ctx, Key(msg.TenantID, PrefixUserRoles, "*"))
	default:
		slog.Warn("cache invalidation message with unknown type", "type", msg.Type)
	}
}
