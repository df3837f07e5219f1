package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/offercast/offercast/internal/logger"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// verifyInstagramWebhook handles the platform's GET subscription
// handshake.
func (r *Router) verifyInstagramWebhook(c *gin.Context) {
	t, ok := r.tenantRuntime(c)
	if !ok {
		return
	}

	challenge, ok := t.Instagram.VerifyWebhook(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if !ok {
		c.String(http.StatusForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// handleInstagramWebhook handles POST deliveries. The platform retries on
// non-200, so this endpoint acknowledges everything it can read; event
// processing failures are absorbed downstream.
func (r *Router) handleInstagramWebhook(c *gin.Context) {
	t, ok := r.tenantRuntime(c)
	if !ok {
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		r.logger.Warn("webhook body read failed", logger.Error(err))
		c.Status(http.StatusOK)
		return
	}

	t.Instagram.HandleWebhook(c.Request.Context(), payload)
	c.Status(http.StatusOK)
}
