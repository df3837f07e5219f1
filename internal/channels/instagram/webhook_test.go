package instagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

type nopCredStore struct{}

func (nopCredStore) GetCredential(_ context.Context, _ string, _ models.Channel) (*models.ChannelCredential, error) {
	return nil, models.ErrNotFound
}

func (nopCredStore) UpsertCredential(_ context.Context, _ *models.ChannelCredential) error {
	return nil
}

func newWebhookManager(t *testing.T) (*Manager, *fakeSender, *fakeConversions) {
	t.Helper()
	cfg := config.InstagramConfig{VerifyToken: "secret-token"}
	conversions := &fakeConversions{}
	m := NewManager("t1", cfg, nopCredStore{}, conversions, logger.NewNopLogger())

	// Route funnel replies through a test sender instead of the graph
	// client.
	sender := &fakeSender{offer: funnelOffer()}
	m.funnel.sender = sender
	return m, sender, conversions
}

func TestVerifyWebhook(t *testing.T) {
	m, _, _ := newWebhookManager(t)

	challenge, ok := m.VerifyWebhook("subscribe", "secret-token", "challenge-123")
	assert.True(t, ok)
	assert.Equal(t, "challenge-123", challenge)

	_, ok = m.VerifyWebhook("subscribe", "wrong-token", "challenge-123")
	assert.False(t, ok)

	_, ok = m.VerifyWebhook("unsubscribe", "secret-token", "challenge-123")
	assert.False(t, ok)
}

func TestHandleWebhook_RoutesMessagesToFunnel(t *testing.T) {
	m, sender, _ := newWebhookManager(t)

	payload := []byte(`{
		"object": "instagram",
		"entry": [{
			"id": "acct-1",
			"time": 1700000000,
			"messaging": [{
				"sender": {"id": "user-42"},
				"recipient": {"id": "acct-1"},
				"message": {"mid": "m1", "text": "quero o link"}
			}]
		}]
	}`)

	m.HandleWebhook(context.Background(), payload)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "user-42", sender.to[0])
	assert.Contains(t, sender.sent[0], "https://shop.example/fryer")
}

func TestHandleWebhook_GarbageAbsorbed(t *testing.T) {
	m, sender, _ := newWebhookManager(t)

	m.HandleWebhook(context.Background(), []byte("not json at all"))
	m.HandleWebhook(context.Background(), []byte(`{"object":"instagram","entry":[{"messaging":[{"sender":{"id":"u"}}]}]}`))
	assert.Empty(t, sender.sent)
}
