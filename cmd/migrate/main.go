package main

import (
	"log"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/database"
	"crypto-exchange-bot/internal/logger"
)

// Applies the additive schema migrations and exits
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Database, cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Printf("Applying migrations (%s)", cfg.Database.Driver)
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Println("✅ Migrations applied successfully!")
}
