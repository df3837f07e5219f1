package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/offercast/offercast/internal/models"
)

// ====================
// Post History Ledger
// ====================

// CreatePostHistory appends a new ledger row for one send attempt.
func (r *Repository) CreatePostHistory(ctx context.Context, attempt *models.PostAttempt) (*models.PostHistoryRecord, error) {
	record := &models.PostHistoryRecord{
		ID:                uuid.New(),
		TenantID:          attempt.TenantID,
		Channel:           attempt.Channel,
		OfferID:           attempt.OfferID,
		OfferTitle:        attempt.OfferTitle,
		Status:            attempt.Status,
		ErrorText:         attempt.ErrorText,
		PlatformMessageID: attempt.PlatformMessageID,
		CreatedAt:         time.Now(),
	}

	query := `
		INSERT INTO post_history (id, tenant_id, channel, offer_id, offer_title, status, error_text, platform_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, tenant_id, channel, offer_id, offer_title, status, error_text, platform_message_id, engagement, created_at
	`

	err := r.db.QueryRowxContext(
		ctx, query,
		record.ID, record.TenantID, record.Channel, record.OfferID, record.OfferTitle,
		record.Status, record.ErrorText, record.PlatformMessageID, record.CreatedAt,
	).StructScan(record)

	if err != nil {
		return nil, fmt.Errorf("failed to create post history: %w", err)
	}

	return record, nil
}

// CountSuccessesSince counts successful sends on a channel for a tenant
// since the given time. Used for rolling-window admission checks.
func (r *Repository) CountSuccessesSince(ctx context.Context, tenantID string, channel models.Channel, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM post_history
		WHERE tenant_id = $1 AND channel = $2 AND status = $3 AND created_at >= $4
	`

	err := r.db.GetContext(ctx, &count, query, tenantID, channel, models.PostStatusSuccess, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count successes: %w", err)
	}

	return count, nil
}

// LastSuccessAt returns the time of the most recent successful send on a
// channel for a tenant, or nil when there is none.
func (r *Repository) LastSuccessAt(ctx context.Context, tenantID string, channel models.Channel) (*time.Time, error) {
	var last sql.NullTime
	query := `
		SELECT MAX(created_at) FROM post_history
		WHERE tenant_id = $1 AND channel = $2 AND status = $3
	`

	err := r.db.GetContext(ctx, &last, query, tenantID, channel, models.PostStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to get last success: %w", err)
	}

	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// CheckOfferPublished reports whether an offer was already successfully
// sent on a channel for a tenant.
func (r *Repository) CheckOfferPublished(ctx context.Context, tenantID string, channel models.Channel, offerID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM post_history
			WHERE tenant_id = $1 AND channel = $2 AND offer_id = $3 AND status = $4
		)
	`

	err := r.db.GetContext(ctx, &exists, query, tenantID, channel, offerID, models.PostStatusSuccess)
	if err != nil {
		return false, fmt.Errorf("failed to check if offer published: %w", err)
	}

	return exists, nil
}

// ListPostHistory retrieves ledger rows with optional filters.
func (r *Repository) ListPostHistory(ctx context.Context, filter *models.PostHistoryFilter) ([]models.PostHistoryRecord, error) {
	records := []models.PostHistoryRecord{}

	if filter.Limit == 0 {
		filter.Limit = 100
	}
	const maxLimit = 1000
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	query := `
		SELECT id, tenant_id, channel, offer_id, offer_title, status, error_text, platform_message_id, engagement, created_at
		FROM post_history
		WHERE 1=1
	`

	args := []any{}
	argPos := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argPos)
		args = append(args, filter.TenantID)
		argPos++
	}

	if filter.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argPos)
		args = append(args, filter.Channel)
		argPos++
	}

	if filter.OfferID != "" {
		query += fmt.Sprintf(" AND offer_id = $%d", argPos)
		args = append(args, filter.OfferID)
		argPos++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *filter.StartDate)
		argPos++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argPos)
		args = append(args, *filter.EndDate)
		argPos++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	err := r.db.SelectContext(ctx, &records, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list post history: %w", err)
	}

	return records, nil
}

// AnnotateEngagement appends engagement metadata to an existing ledger
// row. This is the only mutation a ledger row ever receives.
func (r *Repository) AnnotateEngagement(ctx context.Context, id uuid.UUID, engagement json.RawMessage) error {
	query := `UPDATE post_history SET engagement = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, engagement)
	if err != nil {
		return fmt.Errorf("failed to annotate engagement: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}

	return nil
}

// GetChannelStats retrieves per-channel totals and the last published
// timestamp for a tenant, for the dashboard.
func (r *Repository) GetChannelStats(ctx context.Context, tenantID string) (map[models.Channel]models.ChannelStats, error) {
	query := `
		SELECT
			channel,
			COUNT(*) FILTER (WHERE status = 'success') AS total_sent,
			COUNT(*) FILTER (WHERE status = 'failed') AS total_failed,
			MAX(created_at) FILTER (WHERE status = 'success') AS last_published
		FROM post_history
		WHERE tenant_id = $1
		GROUP BY channel
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.Channel]models.ChannelStats)

	for rows.Next() {
		var channel models.Channel
		var sent, failed int
		var lastPublished sql.NullTime

		if scanErr := rows.Scan(&channel, &sent, &failed, &lastPublished); scanErr != nil {
			return nil, fmt.Errorf("failed to scan row: %w", scanErr)
		}

		entry := models.ChannelStats{TotalSent: sent, TotalFailed: failed}
		if lastPublished.Valid {
			entry.LastPublished = &lastPublished.Time
		}
		stats[channel] = entry
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("row iteration error: %w", rowsErr)
	}

	return stats, nil
}

// GetPostHistoryByID retrieves one ledger row by ID.
func (r *Repository) GetPostHistoryByID(ctx context.Context, id uuid.UUID) (*models.PostHistoryRecord, error) {
	record := &models.PostHistoryRecord{}
	query := `
		SELECT id, tenant_id, channel, offer_id, offer_title, status, error_text, platform_message_id, engagement, created_at
		FROM post_history
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, record, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post history: %w", err)
	}

	return record, nil
}
