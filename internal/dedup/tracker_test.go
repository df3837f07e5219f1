package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offercast/offercast/internal/dedup"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

func newTestTracker(t *testing.T) (*dedup.Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return dedup.NewTracker(client, time.Hour, logger.NewNopLogger()), mr
}

func TestTracker_MarkAndCheck(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	assert.False(t, tracker.HasPosted(ctx, "t1", models.ChannelWhatsApp, "o1"))

	require.NoError(t, tracker.MarkPosted(ctx, "t1", models.ChannelWhatsApp, "o1"))
	assert.True(t, tracker.HasPosted(ctx, "t1", models.ChannelWhatsApp, "o1"))
}

func TestTracker_ChannelsIndependent(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkPosted(ctx, "t1", models.ChannelWhatsApp, "o1"))
	assert.False(t, tracker.HasPosted(ctx, "t1", models.ChannelTwitter, "o1"),
		"posting on one channel must not mark the others")
	assert.False(t, tracker.HasPosted(ctx, "t2", models.ChannelWhatsApp, "o1"),
		"tenants are isolated")
}

func TestTracker_TTLExpires(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkPosted(ctx, "t1", models.ChannelWhatsApp, "o1"))
	mr.FastForward(2 * time.Hour)
	assert.False(t, tracker.HasPosted(ctx, "t1", models.ChannelWhatsApp, "o1"))
}

func TestTracker_Clear(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkPosted(ctx, "t1", models.ChannelWhatsApp, "o1"))
	require.NoError(t, tracker.Clear(ctx, "t1", models.ChannelWhatsApp, "o1"))
	assert.False(t, tracker.HasPosted(ctx, "t1", models.ChannelWhatsApp, "o1"))
}

func TestTracker_RedisDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tracker := dedup.NewTracker(client, time.Hour, logger.NewNopLogger())

	mr.Close()
	assert.False(t, tracker.HasPosted(context.Background(), "t1", models.ChannelWhatsApp, "o1"),
		"a cache outage reads as not-posted")
}
