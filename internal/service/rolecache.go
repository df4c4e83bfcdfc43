package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/StudioGate/internal/domain/user"
)

// RoleCache keeps profile roles in an in-process L1 (ristretto) backed by
// an optional shared L2 (JetStream KV). L2 hits backfill L1. L2 failures
// degrade to a miss; the profile store remains the authority.
type RoleCache struct {
	l1  *ristretto.Cache[string, user.Role]
	l2  jetstream.KeyValue
	ttl time.Duration
}

// NewRoleCache creates a role cache. maxCostBytes bounds L1; l2 may be nil.
func NewRoleCache(maxCostBytes int64, ttl time.Duration, l2 jetstream.KeyValue) (*RoleCache, error) {
	if maxCostBytes < 1<<10 {
		maxCostBytes = 1 << 10
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, user.Role]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RoleCache{l1: c, l2: l2, ttl: ttl}, nil
}

// Get returns the cached role for userID.
func (c *RoleCache) Get(ctx context.Context, userID string) (user.Role, bool) {
	if role, ok := c.l1.Get(userID); ok {
		return role, true
	}
	if c.l2 == nil {
		return "", false
	}

	entry, err := c.l2.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			slog.WarnContext(ctx, "role cache l2 get failed", "error", err)
		}
		return "", false
	}
	role := user.Role(entry.Value())
	c.setL1(userID, role)
	return role, true
}

// Set stores role in both tiers. TTL on L2 is managed at bucket level.
func (c *RoleCache) Set(ctx context.Context, userID string, role user.Role) {
	c.setL1(userID, role)
	if c.l2 == nil {
		return
	}
	if _, err := c.l2.Put(ctx, userID, []byte(role)); err != nil {
		slog.WarnContext(ctx, "role cache l2 put failed", "error", err)
	}
}

func (c *RoleCache) setL1(userID string, role user.Role) {
	c.l1.SetWithTTL(userID, role, int64(len(userID)+len(role)), c.ttl)
	c.l1.Wait()
}

// Close shuts down the L1 cache.
func (c *RoleCache) Close() {
	c.l1.Close()
}
