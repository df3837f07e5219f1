package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/offercast/offercast/internal/logger"
)

const tenantContextKey = "tenant_id"

// tenantMiddleware resolves the tenant for the request. Header wins,
// query parameter is the fallback for callers that cannot set headers
// (platform webhook deliveries), and a single-tenant install just uses
// the default.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader("X-Tenant-ID")
		if tenant == "" {
			tenant = c.Query("tenant_id")
		}
		if tenant == "" {
			tenant = "default"
		}
		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// requestLogger logs each request with latency and status.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
		)
	}
}

// corsMiddleware applies a permissive-by-config CORS policy.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Tenant-ID")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
