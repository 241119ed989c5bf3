package main

import (
	"context"
	"log"

	"github.com/realmate/conversations/internal/db"
	"github.com/realmate/conversations/internal/utils"
)

func main() {
	if err := utils.LoadEnvFiles(); err != nil {
		log.Printf("config: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	log.Println("postgres schema is up to date")

	if cfg.AuditSink != utils.AuditSinkMongo {
		return
	}

	mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		log.Fatalf("connect mongo: %v", err)
	}
	defer func() { _ = mongoStore.Close(context.Background()) }()

	if err := mongoStore.EnsureCollections(ctx); err != nil {
		log.Fatalf("ensure mongo collections: %v", err)
	}
	log.Println("mongo collections are up to date")
}
