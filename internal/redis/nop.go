package redisclient

import (
	"context"

	"github.com/google/uuid"
)

// NopLocker runs the critical section without coordination. Used when the
// service runs single-process against the in-memory store, and by tests.
func NopLocker() Locker {
	return nopLocker{}
}

type nopLocker struct{}

func (nopLocker) WithReferralLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// NopBadgeCache never hits Redis; every read is a miss.
func NopBadgeCache() BadgeCache {
	return nopBadgeCache{}
}

type nopBadgeCache struct{}

func (nopBadgeCache) Get(context.Context, uuid.UUID) (int, bool, error) { return 0, false, nil }
func (nopBadgeCache) Set(context.Context, uuid.UUID, int) error         { return nil }
func (nopBadgeCache) Invalidate(context.Context, uuid.UUID) error       { return nil }
