package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/offercast/offercast/internal/app"
)

var version = "1.0.0"

func main() {
	// .env is optional; real deployments set environment variables
	// directly.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yml"
	}

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
