package models

import "time"

// ConversionRecord marks that an affiliate link for one offer was released
// to one chat recipient. There is at most one record per (recipient,
// offer); the conversation funnel checks it before sending a link so the
// same user never receives the same link twice.
type ConversionRecord struct {
	ID         int64     `db:"id"           json:"id"`
	TenantID   string    `db:"tenant_id"    json:"tenant_id"`
	Channel    Channel   `db:"channel"      json:"channel"`
	Recipient  string    `db:"recipient"    json:"recipient"`
	OfferID    string    `db:"offer_id"     json:"offer_id"`
	LinkSentAt time.Time `db:"link_sent_at" json:"link_sent_at"`
}
