// Package cache implements the best-effort Redis permission cache.
//
// Every operation is bounded by a short timeout and fails open: a Redis
// outage degrades reads to misses and writes to no-ops, it never fails the
// request that triggered them. The database remains the source of truth at
// all times.
//
// Keys follow the scheme <tenant_id>:<prefix>:<args...> so tenant-wide
// invalidation is a single pattern delete. A nil *Client is valid and
// behaves as a disabled cache, which keeps call sites free of enabled checks.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/admin-backend/admin-backend/internal/telemetry"
)

// Key prefixes for the cached per-user artifacts.
const (
	PrefixUserPermissions = "user_permissions"
	PrefixUserRoles       = "user_roles"
	PrefixUserData        = "user_data"
)

const (
	// opTimeout bounds single-key operations. A Redis call slower than this
	// is worse than a database query, so give up and fall through.
	opTimeout = 250 * time.Millisecond

	// patternTimeout bounds SCAN-based pattern deletes, which touch many keys.
	patternTimeout = 500 * time.Millisecond

	// connectTimeout bounds the startup liveness ping only.
	connectTimeout = 2 * time.Second
)

// Client wraps a Redis connection with the bounded, fail-open semantics the
// permission cache requires. Construct with New and share; all methods are
// safe for concurrent use and safe on a nil receiver.
type Client struct {
	rdb     *redis.Client
	ttl     time.Duration
	channel string
}

// New connects to Redis and returns a ready Client. An unreachable Redis is
// logged but not fatal; the client is still returned and every operation
// simply fails open until Redis comes back. Only an unparseable URL is an
// error.
func New(url, channel string, ttl time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("cache unreachable at startup, continuing without it", "error", err)
	} else {
		slog.Info("cache connected", "addr", opts.Addr)
	}

	return &Client{rdb: rdb, ttl: ttl, channel: channel}, nil
}

// Enabled reports whether a real cache backs this client.
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Redis exposes the underlying connection for components that share it, such
// as the Redis-backed rate limiter. Nil when the cache is disabled.
func (c *Client) Redis() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// Key builds a cache key in the canonical <tenant>:<prefix>:<args...> layout.
func Key(tenantID, prefix string, args ...string) string {
	parts := append([]string{tenantID, prefix}, args...)
	return strings.Join(parts, ":")
}

// Get returns the cached value and true on a hit. Misses, errors, and
// timeouts all return false; errors additionally bump the error counter so a
// dead Redis is visible without failing anything.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			telemetry.CacheErrorsTotal.Inc()
			slog.Debug("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

// Set stores a value under the client's TTL. Best-effort.
func (c *Client) Set(ctx context.Context, key string, value []byte) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		telemetry.CacheErrorsTotal.Inc()
		slog.Debug("cache set failed", "key", key, "error", err)
	}
}

// Delete removes the given keys. Best-effort.
func (c *Client) Delete(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		telemetry.CacheErrorsTotal.Inc()
		slog.Debug("cache delete failed", "keys", keys, "error", err)
	}
}

// DeletePattern removes every key matching the glob pattern using SCAN, so
// large keyspaces are walked without blocking Redis the way KEYS would.
// Bounded by patternTimeout; a partial delete is acceptable because entries
// also expire by TTL.
func (c *Client) DeletePattern(ctx context.Context, pattern string) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, patternTimeout)
	defer cancel()

	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			c.rdb.Del(ctx, batch...)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		c.rdb.Del(ctx, batch...)
	}
	if err := iter.Err(); err != nil && ctx.Err() == nil {
		telemetry.CacheErrorsTotal.Inc()
		slog.Debug("cache pattern delete failed", "pattern", pattern, "error", err)
	}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
