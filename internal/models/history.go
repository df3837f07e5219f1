package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PostStatus is the outcome of one send attempt.
type PostStatus string

const (
	PostStatusSuccess PostStatus = "success"
	PostStatusFailed  PostStatus = "failed"
)

// PostHistoryRecord is one append-only ledger row per send attempt. Rows
// are created exactly once and never updated, except for engagement
// metadata appended later by asynchronous insight fetches. The ledger is
// the source of truth for rate-limit window queries and duplicate checks;
// it never triggers a send by itself.
type PostHistoryRecord struct {
	ID                uuid.UUID       `db:"id"                  json:"id"`
	TenantID          string          `db:"tenant_id"           json:"tenant_id"`
	Channel           Channel         `db:"channel"             json:"channel"`
	OfferID           string          `db:"offer_id"            json:"offer_id"`
	OfferTitle        string          `db:"offer_title"         json:"offer_title"`
	Status            PostStatus      `db:"status"              json:"status"`
	ErrorText         string          `db:"error_text"          json:"error_text,omitempty"`
	PlatformMessageID string          `db:"platform_message_id" json:"platform_message_id,omitempty"`
	Engagement        json.RawMessage `db:"engagement"          json:"engagement,omitempty"`
	CreatedAt         time.Time       `db:"created_at"          json:"created_at"`
}

// PostAttempt is the data needed to record one send attempt.
type PostAttempt struct {
	TenantID          string
	Channel           Channel
	OfferID           string
	OfferTitle        string
	Status            PostStatus
	ErrorText         string
	PlatformMessageID string
}

// PostHistoryFilter selects ledger rows for dashboard queries.
type PostHistoryFilter struct {
	TenantID  string     `form:"tenant_id"`
	Channel   Channel    `form:"channel"`
	OfferID   string     `form:"offer_id"`
	StartDate *time.Time `form:"start_date" time_format:"2006-01-02"`
	EndDate   *time.Time `form:"end_date"   time_format:"2006-01-02"`
	Limit     int        `form:"limit"      binding:"omitempty,min=1,max=1000"`
	Offset    int        `form:"offset"     binding:"omitempty,min=0"`
}

// ChannelStats summarises ledger activity for one channel.
type ChannelStats struct {
	TotalSent     int        `json:"total_sent"`
	TotalFailed   int        `json:"total_failed"`
	LastPublished *time.Time `json:"last_published,omitempty"`
}
