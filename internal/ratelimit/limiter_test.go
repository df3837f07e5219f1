package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

type fakeLedger struct {
	count        int
	countErr     error
	last         *time.Time
	lastErr      error
	published    bool
	publishedErr error

	recorded []*models.PostAttempt
}

func (f *fakeLedger) CountSuccessesSince(_ context.Context, _ string, _ models.Channel, _ time.Time) (int, error) {
	return f.count, f.countErr
}

func (f *fakeLedger) LastSuccessAt(_ context.Context, _ string, _ models.Channel) (*time.Time, error) {
	return f.last, f.lastErr
}

func (f *fakeLedger) CreatePostHistory(_ context.Context, attempt *models.PostAttempt) (*models.PostHistoryRecord, error) {
	f.recorded = append(f.recorded, attempt)
	return &models.PostHistoryRecord{
		TenantID: attempt.TenantID,
		Channel:  attempt.Channel,
		OfferID:  attempt.OfferID,
		Status:   attempt.Status,
	}, nil
}

func (f *fakeLedger) CheckOfferPublished(_ context.Context, _ string, _ models.Channel, _ string) (bool, error) {
	return f.published, f.publishedErr
}

func testPolicies() *config.RateLimitConfig {
	return &config.RateLimitConfig{
		WhatsApp:  config.ChannelPolicy{MaxPerDay: 30, MinInterval: 10 * time.Minute},
		Instagram: config.ChannelPolicy{MaxPerDay: 25, MinInterval: 15 * time.Minute},
		Twitter:   config.ChannelPolicy{MaxPerDay: 48, MinInterval: 30 * time.Minute},
	}
}

func newTestLimiter(ledger Ledger, at time.Time) *Limiter {
	l := NewLimiter(ledger, testPolicies(), logger.NewNopLogger())
	l.now = func() time.Time { return at }
	return l
}

func TestCheckAdmission_UnderAllLimits(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Hour)
	l := newTestLimiter(&fakeLedger{count: 5, last: &last}, now)

	d := l.CheckAdmission(context.Background(), "t1", models.ChannelWhatsApp)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestCheckAdmission_DailyCapReached(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&fakeLedger{count: 48}, now)

	d := l.CheckAdmission(context.Background(), "t1", models.ChannelTwitter)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "daily cap reached")
	assert.Contains(t, d.Reason, "48")
}

func TestCheckAdmission_MinIntervalNotElapsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-3 * time.Minute)
	l := newTestLimiter(&fakeLedger{count: 2, last: &last}, now)

	d := l.CheckAdmission(context.Background(), "t1", models.ChannelWhatsApp)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "minimum interval not elapsed")
}

func TestCheckAdmission_NoPriorSends(t *testing.T) {
	l := newTestLimiter(&fakeLedger{count: 0, last: nil}, time.Now())

	d := l.CheckAdmission(context.Background(), "t1", models.ChannelInstagram)
	assert.True(t, d.Allowed)
}

func TestCheckAdmission_LedgerErrorsFailOpen(t *testing.T) {
	l := newTestLimiter(&fakeLedger{countErr: errors.New("db down")}, time.Now())

	d := l.CheckAdmission(context.Background(), "t1", models.ChannelWhatsApp)
	assert.True(t, d.Allowed, "a ledger outage must not halt publishing")

	l = newTestLimiter(&fakeLedger{count: 1, lastErr: errors.New("db down")}, time.Now())
	d = l.CheckAdmission(context.Background(), "t1", models.ChannelWhatsApp)
	assert.True(t, d.Allowed)
}

func TestCheckAdmission_UnknownChannelUnbounded(t *testing.T) {
	// An empty policy means no caps apply.
	l := newTestLimiter(&fakeLedger{count: 1000}, time.Now())

	d := l.CheckAdmission(context.Background(), "t1", models.Channel("other"))
	assert.True(t, d.Allowed)
}

func TestWasPublished(t *testing.T) {
	l := newTestLimiter(&fakeLedger{published: true}, time.Now())
	assert.True(t, l.WasPublished(context.Background(), "t1", models.ChannelTwitter, "o1"))

	l = newTestLimiter(&fakeLedger{published: false}, time.Now())
	assert.False(t, l.WasPublished(context.Background(), "t1", models.ChannelTwitter, "o1"))
}

func TestWasPublished_LedgerErrorFailsOpen(t *testing.T) {
	l := newTestLimiter(&fakeLedger{publishedErr: errors.New("db down")}, time.Now())
	assert.False(t, l.WasPublished(context.Background(), "t1", models.ChannelWhatsApp, "o1"),
		"a ledger outage must not block publishing")
}

func TestRecord_PersistsAttempt(t *testing.T) {
	ledger := &fakeLedger{}
	l := newTestLimiter(ledger, time.Now())

	_, err := l.Record(context.Background(), &models.PostAttempt{
		TenantID: "t1",
		Channel:  models.ChannelTwitter,
		OfferID:  "o1",
		Status:   models.PostStatusSuccess,
	})
	require.NoError(t, err)
	require.Len(t, ledger.recorded, 1)
	assert.Equal(t, "o1", ledger.recorded[0].OfferID)
}

func TestGetStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-5 * time.Minute)
	l := newTestLimiter(&fakeLedger{count: 7, last: &last}, now)

	status, err := l.GetStatus(context.Background(), "t1", models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, 7, status.SentLast24h)
	assert.Equal(t, 30, status.MaxPerDay)
	require.NotNil(t, status.NextAllowed)
	assert.Equal(t, last.Add(10*time.Minute), *status.NextAllowed)
}

func TestGetStatus_IntervalElapsedNoNextAllowed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-2 * time.Hour)
	l := newTestLimiter(&fakeLedger{count: 1, last: &last}, now)

	status, err := l.GetStatus(context.Background(), "t1", models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Nil(t, status.NextAllowed)
}
