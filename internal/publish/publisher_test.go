package publish_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offercast/offercast/internal/channels"
	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/content"
	"github.com/offercast/offercast/internal/dedup"
	"github.com/offercast/offercast/internal/linkcheck"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/metrics"
	"github.com/offercast/offercast/internal/models"
	"github.com/offercast/offercast/internal/publish"
	"github.com/offercast/offercast/internal/ratelimit"
)

// fakeManager is a scriptable channel.
type fakeManager struct {
	name   models.Channel
	err    error
	panics bool

	sentBodies []string
}

func (f *fakeManager) Name() models.Channel { return f.name }

func (f *fakeManager) Initialize(context.Context) error { return nil }

func (f *fakeManager) SendOffer(_ context.Context, _ *models.Offer, body string) (string, error) {
	if f.panics {
		panic("integration defect")
	}
	if f.err != nil {
		return "", f.err
	}
	f.sentBodies = append(f.sentBodies, body)
	return "msg-" + string(f.name), nil
}

func (f *fakeManager) IsReady() bool { return true }

func (f *fakeManager) ReloadCredentials(context.Context) error { return nil }

func (f *fakeManager) Status() channels.Status {
	return channels.Status{Channel: f.name, Configured: true, Ready: true}
}

type fakeLedger struct {
	count     int
	published bool
	recorded  []*models.PostAttempt
}

func (f *fakeLedger) CountSuccessesSince(context.Context, string, models.Channel, time.Time) (int, error) {
	return f.count, nil
}

func (f *fakeLedger) LastSuccessAt(context.Context, string, models.Channel) (*time.Time, error) {
	return nil, nil
}

func (f *fakeLedger) CreatePostHistory(_ context.Context, attempt *models.PostAttempt) (*models.PostHistoryRecord, error) {
	f.recorded = append(f.recorded, attempt)
	return &models.PostHistoryRecord{}, nil
}

func (f *fakeLedger) CheckOfferPublished(context.Context, string, models.Channel, string) (bool, error) {
	return f.published, nil
}

type fakeVerifier struct{ alive bool }

func (f *fakeVerifier) Verify(context.Context, string) bool { return f.alive }

var _ linkcheck.Verifier = (*fakeVerifier)(nil)

type harness struct {
	publisher *publish.Publisher
	ledger    *fakeLedger
	managers  map[models.Channel]*fakeManager
}

func newHarness(t *testing.T, ledger *fakeLedger, alive bool) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.NewNopLogger()
	tracker := dedup.NewTracker(client, time.Hour, log)

	policies := &config.RateLimitConfig{
		WhatsApp:  config.ChannelPolicy{MaxPerDay: 10},
		Instagram: config.ChannelPolicy{MaxPerDay: 10},
		Twitter:   config.ChannelPolicy{MaxPerDay: 10},
	}
	limiter := ratelimit.NewLimiter(ledger, policies, log)
	generator := content.NewGenerator(nil, 0, log)

	fakes := map[models.Channel]*fakeManager{
		models.ChannelWhatsApp:  {name: models.ChannelWhatsApp},
		models.ChannelInstagram: {name: models.ChannelInstagram},
		models.ChannelTwitter:   {name: models.ChannelTwitter},
	}
	mgrs := make(map[models.Channel]channels.Manager, len(fakes))
	for ch, m := range fakes {
		mgrs[ch] = m
	}

	return &harness{
		publisher: publish.NewPublisher(
			"t1", mgrs, limiter, generator, tracker,
			&fakeVerifier{alive: alive}, metrics.NewNop(), log,
		),
		ledger:   ledger,
		managers: fakes,
	}
}

func pubOffer() *models.Offer {
	return &models.Offer{
		ID:                 "offer-1",
		Title:              "Blender",
		OriginalPrice:      100,
		CurrentPrice:       60,
		DiscountPercentage: 40,
		AffiliateURL:       "https://shop.example/blender",
	}
}

func outcomeByChannel(results []publish.Result) map[models.Channel]publish.Result {
	m := make(map[models.Channel]publish.Result, len(results))
	for _, r := range results {
		m[r.Channel] = r
	}
	return m
}

func TestPublish_AllChannelsSucceed(t *testing.T) {
	h := newHarness(t, &fakeLedger{}, true)

	results := h.publisher.Publish(context.Background(), pubOffer(),
		[]models.Channel{models.ChannelWhatsApp, models.ChannelInstagram, models.ChannelTwitter})
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, publish.OutcomeSent, r.Outcome)
		assert.NotEmpty(t, r.MessageID)
	}

	require.Len(t, h.ledger.recorded, 3)
	for _, attempt := range h.ledger.recorded {
		assert.Equal(t, models.PostStatusSuccess, attempt.Status)
	}
}

func TestPublish_TwitterBodyWithin280(t *testing.T) {
	h := newHarness(t, &fakeLedger{}, true)

	offer := pubOffer()
	offer.Title = "An Extremely Long Product Name That Goes On And On For Quite A While Indeed"

	h.publisher.Publish(context.Background(), offer, []models.Channel{models.ChannelTwitter})

	tw := h.managers[models.ChannelTwitter]
	require.Len(t, tw.sentBodies, 1)
	assert.LessOrEqual(t, len([]rune(tw.sentBodies[0])), 280)
	assert.Contains(t, tw.sentBodies[0], offer.AffiliateURL)
}

func TestPublish_DeadLinkSkipsEverything(t *testing.T) {
	h := newHarness(t, &fakeLedger{}, false)

	results := h.publisher.Publish(context.Background(), pubOffer(),
		[]models.Channel{models.ChannelWhatsApp, models.ChannelTwitter})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, publish.OutcomeSkipped, r.Outcome)
		assert.Contains(t, r.Reason, "link")
	}

	assert.Empty(t, h.ledger.recorded, "skipped offers leave no ledger rows")
	assert.Empty(t, h.managers[models.ChannelWhatsApp].sentBodies)
}

func TestPublish_DuplicateSkipped(t *testing.T) {
	h := newHarness(t, &fakeLedger{}, true)
	chs := []models.Channel{models.ChannelWhatsApp}

	first := h.publisher.Publish(context.Background(), pubOffer(), chs)
	require.Equal(t, publish.OutcomeSent, first[0].Outcome)

	second := h.publisher.Publish(context.Background(), pubOffer(), chs)
	require.Equal(t, publish.OutcomeSkipped, second[0].Outcome)
	assert.Contains(t, second[0].Reason, "already published")
	assert.Len(t, h.managers[models.ChannelWhatsApp].sentBodies, 1)
}

func TestPublish_LedgerDuplicateSkippedOnColdCache(t *testing.T) {
	// Fresh redis with no posted keys, but the ledger already holds a
	// successful send. The cache miss must not cause a duplicate.
	h := newHarness(t, &fakeLedger{published: true}, true)

	results := h.publisher.Publish(context.Background(), pubOffer(),
		[]models.Channel{models.ChannelWhatsApp})
	require.Len(t, results, 1)
	assert.Equal(t, publish.OutcomeSkipped, results[0].Outcome)
	assert.Contains(t, results[0].Reason, "already published")
	assert.Empty(t, h.managers[models.ChannelWhatsApp].sentBodies)
	assert.Empty(t, h.ledger.recorded)
}

func TestPublish_RateLimited(t *testing.T) {
	h := newHarness(t, &fakeLedger{count: 10}, true)

	results := h.publisher.Publish(context.Background(), pubOffer(),
		[]models.Channel{models.ChannelInstagram})
	require.Len(t, results, 1)
	assert.Equal(t, publish.OutcomeRateLimited, results[0].Outcome)
	assert.Contains(t, results[0].Reason, "daily cap reached")
	assert.Empty(t, h.managers[models.ChannelInstagram].sentBodies)
	assert.Empty(t, h.ledger.recorded, "denied sends are not attempts")
}

func TestPublish_ChannelIndependence(t *testing.T) {
	h := newHarness(t, &fakeLedger{}, true)
	h.managers[models.ChannelWhatsApp].err = errors.New("gateway down")
	h.managers[models.ChannelInstagram].panics = true

	results := h.publisher.Publish(context.Background(), pubOffer(),
		[]models.Channel{models.ChannelWhatsApp, models.ChannelInstagram, models.ChannelTwitter})

	byChannel := outcomeByChannel(results)
	assert.Equal(t, publish.OutcomeFailed, byChannel[models.ChannelWhatsApp].Outcome)
	assert.Equal(t, publish.OutcomeFailed, byChannel[models.ChannelInstagram].Outcome)
	assert.Contains(t, byChannel[models.ChannelInstagram].Reason, "panicked")
	assert.Equal(t, publish.OutcomeSent, byChannel[models.ChannelTwitter].Outcome,
		"one broken channel must not stop the others")

	// Every attempt, success or failure, lands in the ledger.
	require.Len(t, h.ledger.recorded, 3)
	statuses := map[models.PostStatus]int{}
	for _, a := range h.ledger.recorded {
		statuses[a.Status]++
	}
	assert.Equal(t, 2, statuses[models.PostStatusFailed])
	assert.Equal(t, 1, statuses[models.PostStatusSuccess])
}

func TestPublish_UnwiredChannel(t *testing.T) {
	h := newHarness(t, &fakeLedger{}, true)

	results := h.publisher.Publish(context.Background(), pubOffer(),
		[]models.Channel{models.Channel("telegram")})
	require.Len(t, results, 1)
	assert.Equal(t, publish.OutcomeSkipped, results[0].Outcome)
	assert.Contains(t, results[0].Reason, "not wired")
}
