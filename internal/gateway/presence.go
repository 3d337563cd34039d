package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/internal/session"
)

// Presence tracks which travelers are currently online per realm. Keys expire
// on their own, so a crashed gateway never leaves ghosts behind.
type Presence struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.ILogger
}

func NewPresence(rdb *redis.Client, ttl time.Duration, log logger.ILogger) *Presence {
	return &Presence{rdb: rdb, ttl: ttl, logger: log}
}

func presenceKey(realmID, userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s:%s", realmID, userID)
}

// Join marks a user online in a realm, refreshing the TTL.
func (p *Presence) Join(ctx context.Context, realmID uuid.UUID, user session.Identity) {
	if err := p.rdb.Set(ctx, presenceKey(realmID, user.ID), user.Name, p.ttl).Err(); err != nil {
		p.logger.Warn("Presence", "Failed to mark user online", map[string]interface{}{
			"realm_id": realmID, "user_id": user.ID, "error": err.Error(),
		})
	}
}

// Leave clears a user's presence in a realm.
func (p *Presence) Leave(ctx context.Context, realmID, userID uuid.UUID) {
	if err := p.rdb.Del(ctx, presenceKey(realmID, userID)).Err(); err != nil {
		p.logger.Warn("Presence", "Failed to clear presence", map[string]interface{}{
			"realm_id": realmID, "user_id": userID, "error": err.Error(),
		})
	}
}

// Online lists the display names of travelers currently online in a realm.
func (p *Presence) Online(ctx context.Context, realmID uuid.UUID) ([]string, error) {
	pattern := fmt.Sprintf("presence:%s:*", realmID)

	var names []string
	iter := p.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		name, err := p.rdb.Get(ctx, iter.Val()).Result()
		if err != nil {
			if err == redis.Nil {
				continue // expired between scan and get
			}
			return nil, fmt.Errorf("read presence key: %w", err)
		}
		names = append(names, name)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence keys: %w", err)
	}
	return names, nil
}
