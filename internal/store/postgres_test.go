package store_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmate/conversations/internal/db"
	"github.com/realmate/conversations/internal/models"
	"github.com/realmate/conversations/internal/store"
	"github.com/realmate/conversations/internal/utils"
)

func newTestPostgres(t *testing.T) (*db.Postgres, utils.PostgresConfig) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	cfg := utils.PostgresConfig{DSN: dsn, ConnectTimeout: 5 * time.Second}
	pg, err := db.NewPostgres(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, pg.EnsureSchema(context.Background()))
	return pg, cfg
}

func TestPostgresStoreLifecycle(t *testing.T) {
	pg, cfg := newTestPostgres(t)
	ctx := context.Background()
	s := store.NewPostgres(pg.Pool)

	convID := uuid.NewString()
	t.Cleanup(func() {
		pg.Pool.Exec(context.Background(), "DELETE FROM conversations WHERE id = $1", convID)
	})

	conv, created, err := s.CreateIfAbsent(ctx, convID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ConversationOpen, conv.Status)

	_, created, err = s.CreateIfAbsent(ctx, convID)
	require.NoError(t, err)
	assert.False(t, created)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 123456000, time.UTC)
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Direction:      models.DirectionSent,
		Content:        "hi",
		Timestamp:      ts,
	}
	require.NoError(t, s.AppendMessage(ctx, msg))
	assert.ErrorIs(t, s.AppendMessage(ctx, msg), store.ErrDuplicateMessage)

	require.NoError(t, s.SetStatus(ctx, conv, models.ConversationClosed))
	closedAt := conv.UpdatedAt
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.SetStatus(ctx, conv, models.ConversationClosed))
	assert.True(t, conv.UpdatedAt.Equal(closedAt), "repeating the status must not touch updated_at")

	late := *msg
	late.ID = uuid.NewString()
	assert.ErrorIs(t, s.AppendMessage(ctx, &late), store.ErrConversationClosed)

	gormDB, err := db.NewGORM(cfg)
	require.NoError(t, err)
	reader := store.NewGormReader(gormDB)

	got, err := reader.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, got.Status)
	require.Len(t, got.Messages, 1)
	assert.True(t, got.Messages[0].Timestamp.Equal(ts))

	_, err = reader.GetConversation(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresStoreConcurrentCreate(t *testing.T) {
	pg, _ := newTestPostgres(t)
	ctx := context.Background()
	s := store.NewPostgres(pg.Pool)

	convID := uuid.NewString()
	t.Cleanup(func() {
		pg.Pool.Exec(context.Background(), "DELETE FROM conversations WHERE id = $1", convID)
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.CreateIfAbsent(ctx, convID)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, creates)
}
