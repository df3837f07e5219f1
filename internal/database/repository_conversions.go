package database

import (
	"context"
	"fmt"
	"time"

	"github.com/offercast/offercast/internal/models"
)

// ====================
// Conversion Records
// ====================

// HasConversion reports whether a recipient already received the affiliate
// link for an offer.
func (r *Repository) HasConversion(ctx context.Context, tenantID string, channel models.Channel, recipient, offerID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM conversions
			WHERE tenant_id = $1 AND channel = $2 AND recipient = $3 AND offer_id = $4
		)
	`

	err := r.db.GetContext(ctx, &exists, query, tenantID, channel, recipient, offerID)
	if err != nil {
		return false, fmt.Errorf("failed to check conversion: %w", err)
	}

	return exists, nil
}

// CreateConversion records a link release to a recipient. The unique
// constraint on (tenant_id, channel, recipient, offer_id) makes repeat
// inserts a no-op, so concurrent funnel handlers cannot double-record.
func (r *Repository) CreateConversion(ctx context.Context, tenantID string, channel models.Channel, recipient, offerID string) error {
	query := `
		INSERT INTO conversions (tenant_id, channel, recipient, offer_id, link_sent_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, channel, recipient, offer_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, tenantID, channel, recipient, offerID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create conversion: %w", err)
	}

	return nil
}

// ListConversions retrieves conversions for an offer, newest first.
func (r *Repository) ListConversions(ctx context.Context, tenantID, offerID string) ([]models.ConversionRecord, error) {
	records := []models.ConversionRecord{}
	query := `
		SELECT id, tenant_id, channel, recipient, offer_id, link_sent_at
		FROM conversions
		WHERE tenant_id = $1 AND offer_id = $2
		ORDER BY link_sent_at DESC
	`

	err := r.db.SelectContext(ctx, &records, query, tenantID, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}

	return records, nil
}
