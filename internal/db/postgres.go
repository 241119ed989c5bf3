package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/realmate/conversations/internal/utils"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg utils.PostgresConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.BuildDSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close() {
	if p == nil || p.Pool == nil {
		return
	}
	p.Pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.Pool.Ping(ctx)
}

// WaitForPostgres blocks until the database accepts connections or the
// configured wait timeout elapses.
func WaitForPostgres(ctx context.Context, cfg utils.PostgresConfig, logger *zap.SugaredLogger) error {
	timeout := timeoutOrDefault(cfg.WaitTimeout)
	interval := cfg.WaitInterval
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Infof("waiting for postgres at %s:%d", cfg.Host, cfg.Port)
	for attempt := 1; ; attempt++ {
		err := pingOnce(ctx, cfg)
		if err == nil {
			logger.Infof("postgres available after %d attempt(s)", attempt)
			return nil
		}

		logger.Warnf("postgres unavailable (attempt %d), retrying in %s: %v", attempt, interval, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres: not available after %s: %w", timeout, errors.Join(ctx.Err(), err))
		case <-time.After(interval):
		}
	}
}

func pingOnce(ctx context.Context, cfg utils.PostgresConfig) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	conn, err := pgx.Connect(dialCtx, cfg.BuildDSN())
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	return conn.Ping(dialCtx)
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	statements := []string{
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS conversations (",
			"    id UUID PRIMARY KEY,",
			"    status VARCHAR(10) NOT NULL DEFAULT 'OPEN' CHECK (status IN ('OPEN', 'CLOSED')),",
			"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),",
			"    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			")",
		}, "\n"),
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS messages (",
			"    id UUID PRIMARY KEY,",
			"    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,",
			"    direction VARCHAR(10) NOT NULL CHECK (direction IN ('SENT', 'RECEIVED')),",
			"    content TEXT NOT NULL,",
			"    timestamp TIMESTAMPTZ NOT NULL",
			")",
		}, "\n"),
		"CREATE INDEX IF NOT EXISTS messages_conversation_id_idx ON messages (conversation_id, timestamp)",
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS webhook_logs (",
			"    id UUID PRIMARY KEY,",
			"    event TEXT NOT NULL,",
			"    conversation_id TEXT,",
			"    status VARCHAR(20) NOT NULL DEFAULT 'error',",
			"    message TEXT NOT NULL,",
			"    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			")",
		}, "\n"),
		// audit rows echo whatever the sender supplied; no length limit may reject them
		"ALTER TABLE webhook_logs ALTER COLUMN event TYPE TEXT, ALTER COLUMN conversation_id TYPE TEXT",
		"CREATE INDEX IF NOT EXISTS webhook_logs_timestamp_idx ON webhook_logs (timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS webhook_logs_event_status_idx ON webhook_logs (event, status)",
	}

	for _, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}

	return nil
}

func timeoutOrDefault(value time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return 10 * time.Second
}
