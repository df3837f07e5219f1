package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/offercast/offercast/internal/models"
)

// tenantOf returns the tenant resolved by the middleware.
func tenantOf(c *gin.Context) string {
	return c.GetString(tenantContextKey)
}

// tenantRuntime fetches the wired runtime for the request's tenant,
// answering 404 itself when the tenant is unknown.
func (r *Router) tenantRuntime(c *gin.Context) (*Tenant, bool) {
	t, ok := r.tenants[tenantOf(c)]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
		return nil, false
	}
	return t, true
}

// parseUUID parses a UUID path parameter, answering 400 on bad input.
func parseUUID(c *gin.Context, paramName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(paramName))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id format"})
		return uuid.Nil, false
	}
	return id, true
}

// handleRepositoryError maps repository errors to HTTP responses.
func handleRepositoryError(c *gin.Context, err error, entityType string) {
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": entityType + " not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load " + entityType})
}
