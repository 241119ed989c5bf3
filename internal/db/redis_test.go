package db_test

import (
	"context"
	"os"
	"testing"

	"github.com/realmate/conversations/internal/db"
	"github.com/realmate/conversations/internal/utils"
)

func TestNewRedisClientRequiresAddress(t *testing.T) {
	if _, err := db.NewRedisClient(context.Background(), utils.RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestNewRedisClientPing(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client, err := db.NewRedisClient(context.Background(), utils.RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	defer client.Close()
}
