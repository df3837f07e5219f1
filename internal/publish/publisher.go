// Package publish is the facade that drives one offer through link
// verification, duplicate tracking, rate-limit admission, content
// generation, and the channel send, recording every attempt in the
// post-history ledger. Channels are independent: one channel failing,
// even by panicking, never stops the others.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/offercast/offercast/internal/channels"
	"github.com/offercast/offercast/internal/content"
	"github.com/offercast/offercast/internal/dedup"
	"github.com/offercast/offercast/internal/linkcheck"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/metrics"
	"github.com/offercast/offercast/internal/models"
	"github.com/offercast/offercast/internal/ratelimit"
)

// Outcome classifies the per-channel result of a publish request.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
)

// Result is what happened on one channel for one offer.
type Result struct {
	Channel   models.Channel `json:"channel"`
	Outcome   Outcome        `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
}

// dedupTTL bounds how long the duplicate cache remembers a published
// offer. Offers cycle out of catalogs well inside this window.
const dedupTTL = 30 * 24 * time.Hour

// DefaultDedupTTL is the tracker TTL the facade expects.
func DefaultDedupTTL() time.Duration { return dedupTTL }

// Publisher fans one offer out to the requested channels.
type Publisher struct {
	tenantID  string
	managers  map[models.Channel]channels.Manager
	limiter   *ratelimit.Limiter
	generator *content.Generator
	tracker   *dedup.Tracker
	verifier  linkcheck.Verifier
	metrics   *metrics.Metrics
	logger    logger.Logger
}

// NewPublisher wires the facade for one tenant.
func NewPublisher(
	tenantID string,
	managers map[models.Channel]channels.Manager,
	limiter *ratelimit.Limiter,
	generator *content.Generator,
	tracker *dedup.Tracker,
	verifier linkcheck.Verifier,
	m *metrics.Metrics,
	log logger.Logger,
) *Publisher {
	return &Publisher{
		tenantID:  tenantID,
		managers:  managers,
		limiter:   limiter,
		generator: generator,
		tracker:   tracker,
		verifier:  verifier,
		metrics:   m,
		logger:    log.With(logger.String("tenant_id", tenantID)),
	}
}

// Managers exposes the wired channel managers, keyed by channel.
func (p *Publisher) Managers() map[models.Channel]channels.Manager {
	return p.managers
}
// Publish runs the offer through every requested channel and returns one
// result per channel. An empty channel list means all wired channels.
// The affiliate link is verified once up front; a dead link skips the
// whole batch because publishing a broken link on any channel burns
// audience trust.
func (p *Publisher) Publish(ctx context.Context, offer *models.Offer, requested []models.Channel) []Result {
	if len(requested) == 0 {
		for ch := range p.managers {
			requested = append(requested, ch)
		}
	}

	if !p.verifier.Verify(ctx, offer.AffiliateURL) {
		p.metrics.DeadLinks.Inc()
		p.logger.Warn("offer skipped, affiliate link unreachable",
			logger.String("offer_id", offer.ID),
			logger.String("url", offer.AffiliateURL),
		)
		results := make([]Result, 0, len(requested))
		for _, ch := range requested {
			results = append(results, Result{
				Channel: ch,
				Outcome: OutcomeSkipped,
				Reason:  "affiliate link failed verification",
			})
		}
		return results
	}

	results := make([]Result, 0, len(requested))
	for _, ch := range requested {
		results = append(results, p.publishOne(ctx, offer, ch))
	}
	return results
}

// publishOne handles a single channel end to end.
func (p *Publisher) publishOne(ctx context.Context, offer *models.Offer, ch models.Channel) Result {
	mgr, ok := p.managers[ch]
	if !ok {
		return Result{Channel: ch, Outcome: OutcomeSkipped, Reason: "channel not wired"}
	}

	// The tracker is a cache; the ledger is the duplicate authority. A
	// cache miss (cold redis, expired key) still must not re-send an
	// offer the ledger knows about.
	if p.tracker.HasPosted(ctx, p.tenantID, ch, offer.ID) ||
		p.limiter.WasPublished(ctx, p.tenantID, ch, offer.ID) {
		return Result{Channel: ch, Outcome: OutcomeSkipped, Reason: "offer already published on this channel"}
	}

	decision := p.limiter.CheckAdmission(ctx, p.tenantID, ch)
	if !decision.Allowed {
		p.metrics.RateLimited.WithLabelValues(string(ch)).Inc()
		p.logger.Info("send denied by rate limit",
			logger.String("offer_id", offer.ID),
			logger.String("channel", string(ch)),
			logger.String("reason", decision.Reason),
		)
		return Result{Channel: ch, Outcome: OutcomeRateLimited, Reason: decision.Reason}
	}

	post := p.generator.Generate(ctx, offer, optionsFor(ch))

	p.metrics.SendAttempts.WithLabelValues(string(ch)).Inc()
	msgID, err := p.send(ctx, mgr, offer, post.FullPost)

	attempt := &models.PostAttempt{
		TenantID:          p.tenantID,
		Channel:           ch,
		OfferID:           offer.ID,
		OfferTitle:        offer.Title,
		PlatformMessageID: msgID,
	}

	if err != nil {
		attempt.Status = models.PostStatusFailed
		attempt.ErrorText = err.Error()
		p.metrics.SendFailures.WithLabelValues(string(ch)).Inc()
		p.logger.Error("send failed",
			logger.String("offer_id", offer.ID),
			logger.String("channel", string(ch)),
			logger.Error(err),
		)
		if _, recErr := p.limiter.Record(ctx, attempt); recErr != nil {
			p.logger.Error("ledger write failed for failed send", logger.Error(recErr))
		}
		return Result{Channel: ch, Outcome: OutcomeFailed, Reason: err.Error()}
	}

	attempt.Status = models.PostStatusSuccess
	p.metrics.SendSuccesses.WithLabelValues(string(ch)).Inc()

	if _, recErr := p.limiter.Record(ctx, attempt); recErr != nil {
		// The send already happened; a ledger write failure is loud but
		// must not flip the result to a failure.
		p.logger.Error("ledger write failed for successful send",
			logger.String("offer_id", offer.ID),
			logger.String("channel", string(ch)),
			logger.Error(recErr),
		)
	}
	if markErr := p.tracker.MarkPosted(ctx, p.tenantID, ch, offer.ID); markErr != nil {
		p.logger.Warn("dedup mark failed",
			logger.String("offer_id", offer.ID),
			logger.String("channel", string(ch)),
			logger.Error(markErr),
		)
	}

	p.logger.Info("offer published",
		logger.String("offer_id", offer.ID),
		logger.String("channel", string(ch)),
		logger.String("message_id", msgID),
	)
	return Result{Channel: ch, Outcome: OutcomeSent, MessageID: msgID}
}

// send invokes the manager with panic isolation so a defect in one
// channel integration cannot take down the rest of the batch.
func (p *Publisher) send(ctx context.Context, mgr channels.Manager, offer *models.Offer, body string) (msgID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", mgr.Name(), r)
		}
	}()
	return mgr.SendOffer(ctx, offer, body)
}

// optionsFor returns the content shape for a channel. The microblogging
// channel gets a hard length cap; chat-style channels take long-form
// copy.
func optionsFor(ch models.Channel) content.Options {
	opts := content.DefaultOptions()
	switch ch {
	case models.ChannelTwitter:
		opts.MaxLength = 280
		opts.Tone = content.ToneUrgent
	case models.ChannelInstagram:
		opts.Tone = content.ToneEnthusiast
	case models.ChannelWhatsApp:
		opts.Tone = content.ToneCasual
	}
	return opts
}
