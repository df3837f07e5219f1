package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/offercast/offercast/internal/models"
)

// ====================
// Channel Credentials
// ====================

// GetCredential retrieves one tenant's credential for a channel.
// Returns models.ErrNotFound when the channel is not configured.
func (r *Repository) GetCredential(ctx context.Context, tenantID string, channel models.Channel) (*models.ChannelCredential, error) {
	cred := &models.ChannelCredential{}
	query := `
		SELECT id, tenant_id, channel, params, token_status, expires_at, updated_at
		FROM channel_credentials
		WHERE tenant_id = $1 AND channel = $2
	`

	err := r.db.GetContext(ctx, cred, query, tenantID, channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return cred, nil
}

// ListCredentialsByChannel retrieves every tenant's credential for a
// channel. The token lifecycle sweep iterates the result.
func (r *Repository) ListCredentialsByChannel(ctx context.Context, channel models.Channel) ([]models.ChannelCredential, error) {
	creds := []models.ChannelCredential{}
	query := `
		SELECT id, tenant_id, channel, params, token_status, expires_at, updated_at
		FROM channel_credentials
		WHERE channel = $1
		ORDER BY tenant_id
	`

	err := r.db.SelectContext(ctx, &creds, query, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	return creds, nil
}

// UpsertCredential stores a tenant's credential for a channel, replacing
// any existing row atomically.
func (r *Repository) UpsertCredential(ctx context.Context, cred *models.ChannelCredential) error {
	query := `
		INSERT INTO channel_credentials (tenant_id, channel, params, token_status, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, channel)
		DO UPDATE SET params = $3, token_status = $4, expires_at = $5, updated_at = $6
	`

	_, err := r.db.ExecContext(
		ctx, query,
		cred.TenantID, cred.Channel, cred.Params, cred.TokenStatus, cred.ExpiresAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

// UpdateCredentialStatus flags a credential's token status. Idempotent:
// updating to the current status is a no-op at the row level.
func (r *Repository) UpdateCredentialStatus(ctx context.Context, tenantID string, channel models.Channel, status models.TokenStatus) error {
	query := `
		UPDATE channel_credentials
		SET token_status = $3, updated_at = $4
		WHERE tenant_id = $1 AND channel = $2
	`

	result, err := r.db.ExecContext(ctx, query, tenantID, channel, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update credential status: %w", err)
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

// DeleteCredential removes a tenant's credential for a channel. Used when
// a platform invalidates a device session and pairing must start over.
func (r *Repository) DeleteCredential(ctx context.Context, tenantID string, channel models.Channel) error {
	query := `DELETE FROM channel_credentials WHERE tenant_id = $1 AND channel = $2`

	_, err := r.db.ExecContext(ctx, query, tenantID, channel)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	return nil
}
