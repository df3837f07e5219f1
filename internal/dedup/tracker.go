// Package dedup tracks which offers were already published per channel so
// the facade can skip repeats without a ledger round trip. Redis is a
// cache here; the post-history ledger stays authoritative.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

type Tracker struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger logger.Logger
}

func NewTracker(client redis.UniversalClient, ttl time.Duration, log logger.Logger) *Tracker {
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (t *Tracker) key(tenantID string, channel models.Channel, offerID string) string {
	return fmt.Sprintf("posted:%s:%s:%s", tenantID, channel, offerID)
}

// HasPosted checks whether an offer was already published on a channel.
// Redis errors are logged and treated as not-posted so a cache outage
// never blocks publishing.
func (t *Tracker) HasPosted(ctx context.Context, tenantID string, channel models.Channel, offerID string) bool {
	key := t.key(tenantID, channel, offerID)

	exists, err := t.client.Exists(ctx, key).Result()
	if err != nil {
		t.logger.Error("Redis error checking offer",
			logger.String("offer_id", offerID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return false
	}

	return exists == 1
}

// MarkPosted marks an offer as published on a channel.
func (t *Tracker) MarkPosted(ctx context.Context, tenantID string, channel models.Channel, offerID string) error {
	key := t.key(tenantID, channel, offerID)

	err := t.client.Set(ctx, key, "1", t.ttl).Err()
	if err != nil {
		t.logger.Error("Redis error marking offer as posted",
			logger.String("offer_id", offerID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return err
	}

	return nil
}

// Clear removes an offer from the posted cache.
func (t *Tracker) Clear(ctx context.Context, tenantID string, channel models.Channel, offerID string) error {
	key := t.key(tenantID, channel, offerID)

	err := t.client.Del(ctx, key).Err()
	if err != nil {
		t.logger.Error("Redis error clearing offer",
			logger.String("offer_id", offerID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return err
	}

	return nil
}
