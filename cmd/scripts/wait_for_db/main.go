package main

import (
	"context"
	"log"

	"github.com/realmate/conversations/internal/db"
	"github.com/realmate/conversations/internal/utils"
)

// Blocks until Postgres accepts connections or DB_WAIT_TIMEOUT elapses.
func main() {
	if err := utils.LoadEnvFiles(); err != nil {
		log.Printf("config: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging).Sugar()
	defer func() { _ = logger.Sync() }()

	if err := db.WaitForPostgres(context.Background(), cfg.Postgres, logger); err != nil {
		logger.Fatalw("database unavailable", "error", err)
	}

	logger.Info("database available")
}
