// Package channels defines the contract every platform integration
// implements. The publishing facade talks to channels only through this
// interface.
package channels

import (
	"context"

	"github.com/offercast/offercast/internal/models"
)

// Status is the read-only state a channel reports to the dashboard.
// Status calls are best effort and never fail: a broken channel degrades
// its own affordances, not the whole settings page.
type Status struct {
	Channel     models.Channel `json:"channel"`
	Configured  bool           `json:"configured"`
	Ready       bool           `json:"ready"`
	State       string         `json:"state,omitempty"`
	PairingCode string         `json:"pairing_code,omitempty"`
	AccountID   string         `json:"account_id,omitempty"`
	Detail      string         `json:"detail,omitempty"`
}

// Manager is the uniform publish contract per channel. Managers never
// return errors for expected states (not configured, not ready, rate
// limited); they report a negative result instead.
type Manager interface {
	// Name returns the channel identity.
	Name() models.Channel

	// Initialize prepares the channel from stored credentials. Missing
	// credentials are a valid quiescent state, not an error.
	Initialize(ctx context.Context) error

	// SendOffer publishes one offer with the given body text. Returns the
	// platform message id on success.
	SendOffer(ctx context.Context, offer *models.Offer, body string) (string, error)

	// IsReady reports whether the channel can send right now.
	IsReady() bool

	// ReloadCredentials re-reads stored credentials after an external
	// change (re-authorization, sweep refresh).
	ReloadCredentials(ctx context.Context) error

	// Status returns the current best-effort channel state.
	Status() Status
}

// SendOffers publishes a batch through a manager and returns the number
// of successful sends. Shared helper so every manager behaves the same.
func SendOffers(ctx context.Context, m Manager, offers []*models.Offer, bodies []string) int {
	sent := 0
	for i, offer := range offers {
		if ctx.Err() != nil {
			break
		}
		body := ""
		if i < len(bodies) {
			body = bodies[i]
		}
		if _, err := m.SendOffer(ctx, offer, body); err == nil {
			sent++
		}
	}
	return sent
}
