package models

import "errors"

// Common errors shared across packages.
var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrNotConfigured is returned when a channel has no credentials.
	// This is a valid quiescent state, not a failure.
	ErrNotConfigured = errors.New("channel not configured")

	// ErrNotReady is returned when a channel connection is not established
	ErrNotReady = errors.New("channel not ready")

	// ErrCredentialExpired is returned when a send is attempted with an
	// expired credential. Terminal until re-authorization.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrQuotaExhausted marks a platform-side 429 response, distinct from
	// other transient failures for operator diagnostics.
	ErrQuotaExhausted = errors.New("platform quota exhausted")
)
