package models

import (
	"encoding/json"
	"time"
)

// Channel identifies one external platform integration.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelTwitter   Channel = "twitter"
)

// AllChannels lists every channel the engine can publish to.
var AllChannels = []Channel{ChannelWhatsApp, ChannelInstagram, ChannelTwitter}

// TokenStatus describes the usability of a stored credential.
type TokenStatus string

const (
	TokenStatusActive   TokenStatus = "active"
	TokenStatusExpiring TokenStatus = "expiring"
	TokenStatusExpired  TokenStatus = "expired"
)

// ChannelCredential holds one tenant's connection parameters for one
// channel. Params is an opaque JSON blob whose shape is owned by the
// channel manager that uses it. A credential with status expired must not
// be used to send.
type ChannelCredential struct {
	ID          int64           `db:"id"           json:"id"`
	TenantID    string          `db:"tenant_id"    json:"tenant_id"`
	Channel     Channel         `db:"channel"      json:"channel"`
	Params      json.RawMessage `db:"params"       json:"params"`
	TokenStatus TokenStatus     `db:"token_status" json:"token_status"`
	ExpiresAt   *time.Time      `db:"expires_at"   json:"expires_at,omitempty"`
	UpdatedAt   time.Time       `db:"updated_at"   json:"updated_at"`
}

// Usable reports whether the credential may be used for sends.
func (c *ChannelCredential) Usable() bool {
	return c.TokenStatus != TokenStatusExpired
}

// DaysToExpiry returns the number of whole days until the credential
// expires, or -1 when no expiry is set.
func (c *ChannelCredential) DaysToExpiry(now time.Time) int {
	if c.ExpiresAt == nil {
		return -1
	}
	return int(c.ExpiresAt.Sub(now).Hours() / 24)
}
