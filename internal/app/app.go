// Package app provides the main application lifecycle management for the
// publishing engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/offercast/offercast/internal/api"
	"github.com/offercast/offercast/internal/channels"
	"github.com/offercast/offercast/internal/channels/instagram"
	"github.com/offercast/offercast/internal/channels/twitter"
	"github.com/offercast/offercast/internal/channels/whatsapp"
	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/content"
	"github.com/offercast/offercast/internal/database"
	"github.com/offercast/offercast/internal/dedup"
	"github.com/offercast/offercast/internal/linkcheck"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/metrics"
	"github.com/offercast/offercast/internal/models"
	"github.com/offercast/offercast/internal/publish"
	"github.com/offercast/offercast/internal/ratelimit"
	redispkg "github.com/offercast/offercast/internal/redis"
	"github.com/offercast/offercast/internal/tokens"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	defaultTenant = "default"
)

// App represents the publishing engine with all its dependencies.
type App struct {
	config     *config.Config
	logger     logger.Logger
	repo       *database.Repository
	sweeper    *tokens.Sweeper
	whatsapp   *whatsapp.Manager
	httpServer *http.Server
	version    string

	closeRedis func() error
}

// Options contains configuration for creating a new App.
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "offercast"),
		logger.String("version", opts.Version),
	)

	redisClient, err := redispkg.NewClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	repo := database.NewRepository(db)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	limiter := ratelimit.NewLimiter(repo, &cfg.RateLimit, appLogger)

	var provider content.Provider
	if p := content.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model); p != nil {
		provider = p
	}
	generator := content.NewGenerator(provider, cfg.OpenAI.Timeout, appLogger)

	tracker := dedup.NewTracker(redisClient, publish.DefaultDedupTTL(), appLogger)
	verifier := linkcheck.NewHTTPVerifier(cfg.LinkCheck.Timeout, appLogger)

	wa := whatsapp.NewManager(defaultTenant, cfg.WhatsApp, repo, whatsapp.DialGateway, appLogger)
	ig := instagram.NewManager(defaultTenant, cfg.Instagram, repo, repo, appLogger)
	tw := twitter.NewManager(defaultTenant, cfg.Twitter, repo, appLogger)

	managers := map[models.Channel]channels.Manager{
		models.ChannelWhatsApp:  wa,
		models.ChannelInstagram: ig,
		models.ChannelTwitter:   tw,
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for name, mgr := range managers {
		if initErr := mgr.Initialize(initCtx); initErr != nil {
			// One channel failing to initialize must not take the
			// service down; it stays not-ready until reloaded.
			appLogger.Warn("channel initialization failed",
				logger.String("channel", string(name)),
				logger.Error(initErr),
			)
		}
	}

	publisher := publish.NewPublisher(
		defaultTenant, managers, limiter, generator, tracker, verifier, m, appLogger,
	)

	sweeper := tokens.NewSweeper(cfg.Sweep, repo, map[string]tokens.Refresher{
		defaultTenant: tw,
	}, appLogger)

	tenants := map[string]*api.Tenant{
		defaultTenant: {
			Publisher: publisher,
			WhatsApp:  wa,
			Instagram: ig,
			Twitter:   tw,
		},
	}

	router := api.NewRouter(cfg, repo, redisClient, limiter, tenants, registry, appLogger)

	return &App{
		config:     cfg,
		logger:     appLogger,
		repo:       repo,
		sweeper:    sweeper,
		whatsapp:   wa,
		httpServer: router.NewServer(),
		version:    opts.Version,
		closeRedis: redisClient.Close,
	}, nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	a.sweeper.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting API server",
			logger.String("address", a.config.Server.Address))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		a.shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	a.shutdown()
	return nil
}

// shutdown stops everything in dependency order.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("server forced to shut down", logger.Error(err))
	}

	a.sweeper.Stop()
	a.whatsapp.Close()

	if err := a.closeRedis(); err != nil {
		a.logger.Warn("redis close failed", logger.Error(err))
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("database close failed", logger.Error(err))
	}

	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}
