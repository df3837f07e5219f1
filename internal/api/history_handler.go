package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

// listHistory handles GET /api/v1/history with optional filters.
func (r *Router) listHistory(c *gin.Context) {
	var filter models.PostHistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter.TenantID = tenantOf(c)
	if filter.Limit == 0 {
		filter.Limit = 50
	}

	records, err := r.repo.ListPostHistory(c.Request.Context(), &filter)
	if err != nil {
		r.logger.Error("history query failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// getHistory handles GET /api/v1/history/:id.
func (r *Router) getHistory(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	record, err := r.repo.GetPostHistoryByID(c.Request.Context(), id)
	if err != nil {
		handleRepositoryError(c, err, "history record")
		return
	}

	c.JSON(http.StatusOK, record)
}

// annotateEngagement handles POST /api/v1/history/:id/engagement. The
// body is stored verbatim as the record's engagement blob; this is the
// only mutation the ledger permits.
func (r *Router) annotateEngagement(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a valid JSON object"})
		return
	}

	if err := r.repo.AnnotateEngagement(c.Request.Context(), id, body); err != nil {
		handleRepositoryError(c, err, "history record")
		return
	}

	c.Status(http.StatusNoContent)
}

// listConversions handles GET /api/v1/conversions. Shows who already
// received an offer's affiliate link through the conversation funnel.
func (r *Router) listConversions(c *gin.Context) {
	offerID := c.Query("offer_id")
	if offerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offer_id is required"})
		return
	}

	records, err := r.repo.ListConversions(c.Request.Context(), tenantOf(c), offerID)
	if err != nil {
		r.logger.Error("conversions query failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversions": records,
		"count":       len(records),
	})
}

// channelStats handles GET /api/v1/stats.
func (r *Router) channelStats(c *gin.Context) {
	stats, err := r.repo.GetChannelStats(c.Request.Context(), tenantOf(c))
	if err != nil {
		r.logger.Error("stats query failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
