// Package linkcheck verifies that affiliate URLs are live before any
// send.
package linkcheck

import (
	"context"
	"net/http"
	"time"

	"github.com/offercast/offercast/internal/logger"
)

// Verifier reports whether a URL is reachable.
type Verifier interface {
	Verify(ctx context.Context, url string) bool
}

// HTTPVerifier checks links with a HEAD request, falling back to GET for
// servers that reject HEAD.
type HTTPVerifier struct {
	client *http.Client
	logger logger.Logger
}

// NewHTTPVerifier creates a verifier with the given request timeout.
func NewHTTPVerifier(timeout time.Duration, log logger.Logger) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPVerifier{
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

// Verify returns true when the URL answers with a non-5xx, non-404
// status. Redirects are followed; affiliate links usually redirect at
// least once.
func (v *HTTPVerifier) Verify(ctx context.Context, url string) bool {
	if ok, decided := v.attempt(ctx, http.MethodHead, url); decided {
		return ok
	}
	// Some storefronts reject HEAD outright; retry with GET
	ok, _ := v.attempt(ctx, http.MethodGet, url)
	return ok
}

// attempt performs one request. The second return value is false when the
// method itself was rejected (405) and the caller should retry with GET.
func (v *HTTPVerifier) attempt(ctx context.Context, method, url string) (alive, decided bool) {
	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		v.logger.Warn("link check request build failed",
			logger.String("url", url),
			logger.Error(err),
		)
		return false, true
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("link check request failed",
			logger.String("url", url),
			logger.String("method", method),
			logger.Error(err),
		)
		return false, true
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return false, false
	}

	alive = resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusNotFound
	return alive, true
}
