package instagram

import (
	"context"
	"encoding/json"

	"github.com/offercast/offercast/internal/logger"
)

// WebhookEvent is the platform webhook envelope.
type WebhookEvent struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging,omitempty"`
	Changes   []ChangeEvent    `json:"changes,omitempty"`
}

// MessagingEvent is one inbound direct message.
type MessagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message,omitempty"`
}

// ChangeEvent is a content-change notification (comments, mentions).
type ChangeEvent struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// VerifyWebhook answers the platform's subscription handshake. Returns
// the challenge to echo and whether the token matched.
func (m *Manager) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && token == m.cfg.VerifyToken {
		return challenge, true
	}
	return "", false
}

// HandleWebhook classifies inbound events: direct messages go through the
// conversation funnel, content changes are logged. Processing failures
// are absorbed here; the HTTP layer always acknowledges the platform so
// delivery retries cannot amplify into retry storms.
func (m *Manager) HandleWebhook(ctx context.Context, payload []byte) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		m.logger.Warn("unparseable webhook payload", logger.Error(err))
		return
	}

	for _, entry := range event.Entry {
		for _, msg := range entry.Messaging {
			if msg.Message == nil || msg.Message.Text == "" {
				continue
			}
			m.funnel.HandleMessage(ctx, msg.Sender.ID, msg.Message.Text)
		}
		for _, change := range entry.Changes {
			m.logger.Info("content change event",
				logger.String("field", change.Field),
			)
		}
	}
}
