// Package ratelimit implements ledger-backed admission control for
// outbound sends. Admission is computed from the post-history ledger at
// call time, not from in-process counters, so decisions survive restarts
// and stay correct across concurrent senders.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

// rollingWindow is the admission window for the daily cap.
const rollingWindow = 24 * time.Hour

// Ledger is the subset of the post-history repository the limiter reads.
type Ledger interface {
	CountSuccessesSince(ctx context.Context, tenantID string, channel models.Channel, since time.Time) (int, error)
	LastSuccessAt(ctx context.Context, tenantID string, channel models.Channel) (*time.Time, error)
	CreatePostHistory(ctx context.Context, attempt *models.PostAttempt) (*models.PostHistoryRecord, error)
	CheckOfferPublished(ctx context.Context, tenantID string, channel models.Channel, offerID string) (bool, error)
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Status is the read-only rate-limit view exposed to the dashboard.
type Status struct {
	Channel     models.Channel `json:"channel"`
	SentLast24h int            `json:"sent_last_24h"`
	MaxPerDay   int            `json:"max_per_day"`
	LastSentAt  *time.Time     `json:"last_sent_at,omitempty"`
	NextAllowed *time.Time     `json:"next_allowed,omitempty"`
}

// Limiter evaluates per-channel, per-tenant send admission.
type Limiter struct {
	ledger   Ledger
	policies *config.RateLimitConfig
	logger   logger.Logger
	now      func() time.Time
}

// NewLimiter creates a new ledger-backed limiter.
func NewLimiter(ledger Ledger, policies *config.RateLimitConfig, log logger.Logger) *Limiter {
	return &Limiter{
		ledger:   ledger,
		policies: policies,
		logger:   log,
		now:      time.Now,
	}
}

// CheckAdmission decides whether a send may proceed on the channel under
// the channel's policy. Ledger read errors fail open: a transient read
// problem must not halt all publishing.
func (l *Limiter) CheckAdmission(ctx context.Context, tenantID string, channel models.Channel) Decision {
	policy := l.policies.Policy(string(channel))
	now := l.now()

	count, err := l.ledger.CountSuccessesSince(ctx, tenantID, channel, now.Add(-rollingWindow))
	if err != nil {
		l.logger.Warn("ledger count query failed, allowing send",
			logger.String("tenant_id", tenantID),
			logger.String("channel", string(channel)),
			logger.Error(err),
		)
		return Decision{Allowed: true}
	}

	if policy.MaxPerDay > 0 && count >= policy.MaxPerDay {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("daily cap reached: %d of %d sends in the last 24h", count, policy.MaxPerDay),
		}
	}

	last, err := l.ledger.LastSuccessAt(ctx, tenantID, channel)
	if err != nil {
		l.logger.Warn("ledger last-success query failed, allowing send",
			logger.String("tenant_id", tenantID),
			logger.String("channel", string(channel)),
			logger.Error(err),
		)
		return Decision{Allowed: true}
	}

	if last != nil && policy.MinInterval > 0 {
		elapsed := now.Sub(*last)
		if elapsed < policy.MinInterval {
			return Decision{
				Allowed: false,
				Reason: fmt.Sprintf("minimum interval not elapsed: %s since last send, need %s",
					elapsed.Round(time.Second), policy.MinInterval),
			}
		}
	}

	return Decision{Allowed: true}
}

// Record writes one send attempt to the ledger. Every attempt, success or
// failure, is recorded exactly once.
func (l *Limiter) Record(ctx context.Context, attempt *models.PostAttempt) (*models.PostHistoryRecord, error) {
	record, err := l.ledger.CreatePostHistory(ctx, attempt)
	if err != nil {
		l.logger.Error("failed to record send attempt",
			logger.String("tenant_id", attempt.TenantID),
			logger.String("channel", string(attempt.Channel)),
			logger.String("offer_id", attempt.OfferID),
			logger.Error(err),
		)
		return nil, err
	}

	return record, nil
}

// WasPublished reports whether the ledger already holds a successful send
// of the offer on the channel. This is the authoritative duplicate check;
// the redis tracker in front of it is only a cache. Ledger read errors
// fail open, same as admission.
func (l *Limiter) WasPublished(ctx context.Context, tenantID string, channel models.Channel, offerID string) bool {
	published, err := l.ledger.CheckOfferPublished(ctx, tenantID, channel, offerID)
	if err != nil {
		l.logger.Warn("ledger duplicate query failed, allowing send",
			logger.String("tenant_id", tenantID),
			logger.String("channel", string(channel)),
			logger.String("offer_id", offerID),
			logger.Error(err),
		)
		return false
	}
	return published
}

// GetStatus returns the current rate-limit state for a channel.
func (l *Limiter) GetStatus(ctx context.Context, tenantID string, channel models.Channel) (*Status, error) {
	policy := l.policies.Policy(string(channel))
	now := l.now()

	count, err := l.ledger.CountSuccessesSince(ctx, tenantID, channel, now.Add(-rollingWindow))
	if err != nil {
		return nil, fmt.Errorf("count successes: %w", err)
	}

	last, err := l.ledger.LastSuccessAt(ctx, tenantID, channel)
	if err != nil {
		return nil, fmt.Errorf("last success: %w", err)
	}

	status := &Status{
		Channel:     channel,
		SentLast24h: count,
		MaxPerDay:   policy.MaxPerDay,
		LastSentAt:  last,
	}

	if last != nil && policy.MinInterval > 0 {
		next := last.Add(policy.MinInterval)
		if next.After(now) {
			status.NextAllowed = &next
		}
	}

	return status, nil
}
