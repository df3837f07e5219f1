package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/offercast/offercast/internal/channels"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

// channelStatuses handles GET /api/v1/channels/status. Every wired
// channel reports, even ones with no credentials; the settings page
// shows the full list.
func (r *Router) channelStatuses(c *gin.Context) {
	t, ok := r.tenantRuntime(c)
	if !ok {
		return
	}

	statuses := make([]channels.Status, 0, len(t.Publisher.Managers()))
	for _, mgr := range t.Publisher.Managers() {
		statuses = append(statuses, mgr.Status())
	}

	c.JSON(http.StatusOK, gin.H{"channels": statuses})
}

// rateLimitStatus handles GET /api/v1/channels/:channel/ratelimit.
func (r *Router) rateLimitStatus(c *gin.Context) {
	ch := models.Channel(c.Param("channel"))
	if !validChannel(ch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
		return
	}

	status, err := r.limiter.GetStatus(c.Request.Context(), tenantOf(c), ch)
	if err != nil {
		r.logger.Error("rate limit status query failed",
			logger.String("channel", string(ch)),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rate limit status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// reloadChannel handles POST /api/v1/channels/:channel/reload. Used after
// an out-of-band credential change.
func (r *Router) reloadChannel(c *gin.Context) {
	ch := models.Channel(c.Param("channel"))
	if !validChannel(ch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
		return
	}

	t, ok := r.tenantRuntime(c)
	if !ok {
		return
	}
	mgr, ok := t.Publisher.Managers()[ch]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not wired for this tenant"})
		return
	}

	if err := mgr.ReloadCredentials(c.Request.Context()); err != nil {
		r.logger.Error("credential reload failed",
			logger.String("channel", string(ch)),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credential reload failed"})
		return
	}

	c.JSON(http.StatusOK, mgr.Status())
}

// whatsappPairingEvents handles GET /api/v1/whatsapp/pairing-events.
// Streams connection state changes as server-sent events so the pairing
// screen shows fresh QR codes without polling. The manager publishes to
// one event channel, so the dashboard opens at most one stream.
func (r *Router) whatsappPairingEvents(c *gin.Context) {
	t, ok := r.tenantRuntime(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	events := t.WhatsApp.Events()
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("state", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// instagramAuthURL handles GET /api/v1/instagram/auth-url.
func (r *Router) instagramAuthURL(c *gin.Context) {
	t, ok := r.tenantRuntime(c)
	if !ok {
		return
	}
	state := c.DefaultQuery("state", tenantOf(c))
	c.JSON(http.StatusOK, gin.H{"url": t.Instagram.AuthorizationURL(state)})
}

// instagramCallback handles GET /api/v1/instagram/callback, the OAuth
// redirect target. Exchanges the code and activates the channel.
func (r *Router) instagramCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code parameter"})
		return
	}

	t, ok := r.tenantRuntime(c)
	if !ok {
		return
	}

	if err := t.Instagram.ExchangeCode(c.Request.Context(), code); err != nil {
		r.logger.Error("oauth code exchange failed",
			logger.String("tenant_id", tenantOf(c)),
			logger.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "authorization exchange failed"})
		return
	}

	c.JSON(http.StatusOK, t.Instagram.Status())
}
