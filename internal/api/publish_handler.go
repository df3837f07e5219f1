package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
	"github.com/offercast/offercast/internal/publish"
)

// publishRequest is the body of POST /api/v1/publish.
type publishRequest struct {
	Offer    models.Offer     `json:"offer" binding:"required"`
	Channels []models.Channel `json:"channels"`
}

// publishOffer handles POST /api/v1/publish. The response carries one
// result per channel; the call answers 200 even when individual channels
// fail, because partial success is the normal case.
func (r *Router) publishOffer(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Offer.ID == "" || req.Offer.AffiliateURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offer id and affiliate_url are required"})
		return
	}
	for _, ch := range req.Channels {
		if !validChannel(ch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel: " + string(ch)})
			return
		}
	}

	t, ok := r.tenantRuntime(c)
	if !ok {
		return
	}

	results := t.Publisher.Publish(c.Request.Context(), &req.Offer, req.Channels)

	sent := 0
	for _, res := range results {
		if res.Outcome == publish.OutcomeSent {
			sent++
		}
	}

	r.logger.Info("publish request completed",
		logger.String("tenant_id", tenantOf(c)),
		logger.String("offer_id", req.Offer.ID),
		logger.Int("channels", len(results)),
		logger.Int("sent", sent),
	)

	c.JSON(http.StatusOK, gin.H{
		"offer_id": req.Offer.ID,
		"results":  results,
		"sent":     sent,
	})
}

func validChannel(ch models.Channel) bool {
	switch ch {
	case models.ChannelWhatsApp, models.ChannelInstagram, models.ChannelTwitter:
		return true
	default:
		return false
	}
}
