package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL is how long a webhook delivery ID is remembered.
// Providers stop redelivering well within three days.
const DefaultDedupTTL = 72 * time.Hour

// Deduper remembers processed webhook deliveries in Redis.  A nil client
// disables it; order transitions are conditional anyway, so duplicates
// are still harmless, only more expensive.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduper returns a Deduper using rdb, which may be nil.
func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduper{rdb: rdb, ttl: ttl}
}

func dedupKey(provider, eventID string) string { return "webhook:" + provider + ":" + eventID }

// Claim marks a delivery as being processed.  It returns false when the
// delivery was already claimed.  Redis errors are returned with claimed
// set to true so processing goes ahead.
func (d *Deduper) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	if d == nil || d.rdb == nil || eventID == "" {
		return true, nil
	}
	ok, err := d.rdb.SetNX(ctx, dedupKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}

// Release forgets a claim so a failed delivery can be retried.
func (d *Deduper) Release(ctx context.Context, provider, eventID string) error {
	if d == nil || d.rdb == nil || eventID == "" {
		return nil
	}
	return d.rdb.Del(ctx, dedupKey(provider, eventID)).Err()
}
