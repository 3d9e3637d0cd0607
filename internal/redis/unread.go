package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BadgeCache caches per-user unread referral counts behind the notification
// badge. Entries are invalidated on any mutation that can change the count
// and expire on their own as a backstop.
type BadgeCache interface {
	Get(ctx context.Context, userID uuid.UUID) (int, bool, error)
	Set(ctx context.Context, userID uuid.UUID, count int) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type redisBadgeCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBadgeCache(client *redis.Client, ttl time.Duration) BadgeCache {
	return &redisBadgeCache{client: client, ttl: ttl}
}

func badgeKey(userID uuid.UUID) string {
	return fmt.Sprintf("badge:unread:%s", userID.String())
}

func (c *redisBadgeCache) Get(ctx context.Context, userID uuid.UUID) (int, bool, error) {
	n, err := c.client.Get(ctx, badgeKey(userID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get badge count: %w", err)
	}
	return n, true, nil
}

func (c *redisBadgeCache) Set(ctx context.Context, userID uuid.UUID, count int) error {
	if err := c.client.Set(ctx, badgeKey(userID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("set badge count: %w", err)
	}
	return nil
}

func (c *redisBadgeCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, badgeKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate badge count: %w", err)
	}
	return nil
}
