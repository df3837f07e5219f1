// Package api exposes the HTTP surface: publish requests, channel
// status, OAuth callbacks, webhooks, ledger queries, and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/offercast/offercast/internal/channels/instagram"
	"github.com/offercast/offercast/internal/channels/twitter"
	"github.com/offercast/offercast/internal/channels/whatsapp"
	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/database"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/publish"
	"github.com/offercast/offercast/internal/ratelimit"
)

const (
	healthCheckTimeout = 2 * time.Second
	serviceVersion     = "1.0.0"
)

// Tenant bundles one tenant's wired runtime for the HTTP layer. Channel
// operations that go beyond the uniform publish contract (OAuth
// exchange, webhook handling, pairing state) need the concrete managers.
type Tenant struct {
	Publisher *publish.Publisher
	WhatsApp  *whatsapp.Manager
	Instagram *instagram.Manager
	Twitter   *twitter.Manager
}

// Router holds the API dependencies.
type Router struct {
	cfg         *config.Config
	repo        *database.Repository
	redisClient *redis.Client
	limiter     *ratelimit.Limiter
	tenants     map[string]*Tenant
	registry    *prometheus.Registry
	logger      logger.Logger
}

// NewRouter creates a new API router.
func NewRouter(
	cfg *config.Config,
	repo *database.Repository,
	redisClient *redis.Client,
	limiter *ratelimit.Limiter,
	tenants map[string]*Tenant,
	registry *prometheus.Registry,
	log logger.Logger,
) *Router {
	return &Router{
		cfg:         cfg,
		repo:        repo,
		redisClient: redisClient,
		limiter:     limiter,
		tenants:     tenants,
		registry:    registry,
		logger:      log,
	}
}

// Engine builds the gin engine with all routes registered.
func (r *Router) Engine() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(r.logger))
	engine.Use(corsMiddleware(r.cfg.Server.CORSOrigins))

	engine.GET("/health", r.health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))

	v1 := engine.Group("/api/v1")
	v1.Use(tenantMiddleware())

	v1.POST("/publish", r.publishOffer)

	ch := v1.Group("/channels")
	ch.GET("/status", r.channelStatuses)
	ch.GET("/:channel/ratelimit", r.rateLimitStatus)
	ch.POST("/:channel/reload", r.reloadChannel)

	ig := v1.Group("/instagram")
	ig.GET("/auth-url", r.instagramAuthURL)
	ig.GET("/callback", r.instagramCallback)

	v1.GET("/whatsapp/pairing-events", r.whatsappPairingEvents)

	wh := v1.Group("/webhooks")
	wh.GET("/instagram", r.verifyInstagramWebhook)
	wh.POST("/instagram", r.handleInstagramWebhook)

	v1.GET("/history", r.listHistory)
	v1.GET("/history/:id", r.getHistory)
	v1.POST("/history/:id/engagement", r.annotateEngagement)
	v1.GET("/conversions", r.listConversions)
	v1.GET("/stats", r.channelStats)

	return engine
}

// NewServer wraps the engine in an http.Server with the configured
// timeouts.
func (r *Router) NewServer() *http.Server {
	return &http.Server{
		Addr:         r.cfg.Server.Address,
		Handler:      r.Engine(),
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: r.cfg.Server.WriteTimeout,
	}
}

// health reports dependency liveness. A failed dependency degrades the
// report but still answers 200 so orchestrators distinguish slow from
// dead.
func (r *Router) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbOK := r.repo.Ping(ctx) == nil
	redisOK := r.redisClient == nil || r.redisClient.Ping(ctx).Err() == nil

	status := "healthy"
	if !dbOK || !redisOK {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "offercast",
		"version":  serviceVersion,
		"postgres": dbOK,
		"redis":    redisOK,
	})
}
