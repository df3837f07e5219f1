// Command tokensweep runs one credential lifecycle pass and exits. Meant
// for cron-style schedulers; the API server also runs the sweep
// internally.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/offercast/offercast/internal/channels/twitter"
	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/database"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/tokens"
)

const sweepTimeout = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	repo := database.NewRepository(db)
	defer func() { _ = repo.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	tw := twitter.NewManager("default", cfg.Twitter, repo, appLogger)
	if err := tw.Initialize(ctx); err != nil {
		appLogger.Warn("twitter credentials unavailable, refresh pass will skip",
			logger.Error(err))
	}

	sweeper := tokens.NewSweeper(cfg.Sweep, repo, map[string]tokens.Refresher{
		"default": tw,
	}, appLogger)

	sweeper.RunOnce(ctx)
	appLogger.Info("sweep complete")
}
