package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/realmate/conversations/internal/models"
)

// PostgresSink stores entries in the webhook_logs table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (p *PostgresSink) Append(ctx context.Context, entry *models.WebhookLog) error {
	const insert = `INSERT INTO webhook_logs (id, event, conversation_id, status, message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := p.pool.Exec(ctx, insert,
		entry.ID,
		entry.Event,
		entry.ConversationID,
		entry.Status,
		entry.Message,
		entry.Timestamp,
	); err != nil {
		return fmt.Errorf("postgres: insert webhook log: %w", err)
	}
	return nil
}

func (p *PostgresSink) List(ctx context.Context, filter Filter) ([]models.WebhookLog, error) {
	filter = filter.Normalize()

	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Event != "" {
		clauses = append(clauses, "event = "+arg(filter.Event))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(filter.Status))
	}
	if filter.ConversationID != "" {
		clauses = append(clauses, "conversation_id = "+arg(filter.ConversationID))
	}
	if filter.Search != "" {
		like := arg("%" + filter.Search + "%")
		clauses = append(clauses, fmt.Sprintf("(event ILIKE %[1]s OR message ILIKE %[1]s OR conversation_id ILIKE %[1]s)", like))
	}

	query := "SELECT id::text, event, conversation_id, status, message, timestamp FROM webhook_logs"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT " + arg(filter.Limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query webhook logs: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WebhookLog, error) {
		var entry models.WebhookLog
		err := row.Scan(&entry.ID, &entry.Event, &entry.ConversationID, &entry.Status, &entry.Message, &entry.Timestamp)
		return entry, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan webhook logs: %w", err)
	}
	return entries, nil
}
