package instagram

import (
	"context"
	"fmt"
	"strings"

	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

// Intent is the classified purpose of an inbound message.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentWantsLink
	IntentAsksPrice
	IntentGreeting
)

// ConversionStore is the persistence the funnel needs for per-recipient
// link dedup.
type ConversionStore interface {
	HasConversion(ctx context.Context, tenantID string, channel models.Channel, recipient, offerID string) (bool, error)
	CreateConversion(ctx context.Context, tenantID string, channel models.Channel, recipient, offerID string) error
}

// messageSender is what the funnel needs from the manager.
type messageSender interface {
	sendMessage(ctx context.Context, recipientID, text string) error
	currentOffer() *models.Offer
}

var (
	linkKeywords     = []string{"link", "buy", "where", "want", "quero", "comprar", "onde"}
	priceKeywords    = []string{"price", "cost", "how much", "preço", "quanto"}
	greetingKeywords = []string{"hi", "hello", "hey", "oi", "olá", "ola"}

	// bannedTerms blocks messages the funnel must never engage with.
	bannedTerms = []string{"refund", "lawsuit", "scam", "fraud"}
)

// Funnel is the inbound-message classification pipeline that decides
// whether to release an affiliate link to a user. The same (recipient,
// offer) pair receives at most one link; repeats get a notice instead.
type Funnel struct {
	sender      messageSender
	conversions ConversionStore
	tenantID    string
	logger      logger.Logger
}

// NewFunnel creates the funnel for one manager.
func NewFunnel(m *Manager, conversions ConversionStore, log logger.Logger) *Funnel {
	return &Funnel{
		sender:      m,
		conversions: conversions,
		tenantID:    m.tenantID,
		logger:      log,
	}
}

// ClassifyIntent buckets a message by keyword match.
func ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)

	for _, kw := range linkKeywords {
		if strings.Contains(lower, kw) {
			return IntentWantsLink
		}
	}
	for _, kw := range priceKeywords {
		if strings.Contains(lower, kw) {
			return IntentAsksPrice
		}
	}
	for _, kw := range greetingKeywords {
		if strings.Contains(lower, kw) {
			return IntentGreeting
		}
	}
	return IntentUnknown
}

// containsBannedTerm reports whether the message trips the term filter.
func containsBannedTerm(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range bannedTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// HandleMessage runs one inbound DM through the funnel: term filter,
// intent classification, dedup, then the reply. Failures are logged and
// absorbed; the webhook acknowledgement never depends on this.
func (f *Funnel) HandleMessage(ctx context.Context, senderID, text string) {
	if containsBannedTerm(text) {
		f.logger.Info("message blocked by term filter",
			logger.String("recipient", senderID))
		return
	}

	offer := f.sender.currentOffer()

	switch ClassifyIntent(text) {
	case IntentWantsLink:
		f.releaseLink(ctx, senderID, offer)
	case IntentAsksPrice:
		f.replyPrice(ctx, senderID, offer)
	case IntentGreeting, IntentUnknown:
		f.reply(ctx, senderID, "Hi! 👋 Ask for the link and I'll send you today's deal.")
	}
}

// releaseLink sends the affiliate link at most once per (recipient,
// offer). A prior conversion gets an "already received" notice.
func (f *Funnel) releaseLink(ctx context.Context, senderID string, offer *models.Offer) {
	if offer == nil {
		f.reply(ctx, senderID, "No active deal right now, check back soon!")
		return
	}

	already, err := f.conversions.HasConversion(ctx, f.tenantID, models.ChannelInstagram, senderID, offer.ID)
	if err != nil {
		f.logger.Error("conversion lookup failed",
			logger.String("recipient", senderID),
			logger.String("offer_id", offer.ID),
			logger.Error(err),
		)
		return
	}
	if already {
		f.reply(ctx, senderID, "You already received this link 😉 Check your messages above!")
		return
	}

	msg := fmt.Sprintf("Here you go! %s for %s 👉 %s",
		offer.Title, models.FormatPrice(offer.CurrentPrice), offer.AffiliateURL)
	if sendErr := f.sender.sendMessage(ctx, senderID, msg); sendErr != nil {
		f.logger.Warn("link delivery failed",
			logger.String("recipient", senderID),
			logger.Error(sendErr),
		)
		return
	}

	if recErr := f.conversions.CreateConversion(ctx, f.tenantID, models.ChannelInstagram, senderID, offer.ID); recErr != nil {
		f.logger.Error("failed to record conversion",
			logger.String("recipient", senderID),
			logger.String("offer_id", offer.ID),
			logger.Error(recErr),
		)
	}
}

func (f *Funnel) replyPrice(ctx context.Context, senderID string, offer *models.Offer) {
	if offer == nil {
		f.reply(ctx, senderID, "No active deal right now, check back soon!")
		return
	}
	msg := fmt.Sprintf("%s is down from %s to %s (%d%% off). Want the link?",
		offer.Title,
		models.FormatPrice(offer.OriginalPrice),
		models.FormatPrice(offer.CurrentPrice),
		offer.DiscountPercentage,
	)
	f.reply(ctx, senderID, msg)
}

func (f *Funnel) reply(ctx context.Context, senderID, text string) {
	if err := f.sender.sendMessage(ctx, senderID, text); err != nil {
		f.logger.Warn("reply failed",
			logger.String("recipient", senderID),
			logger.Error(err),
		)
	}
}
