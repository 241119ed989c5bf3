package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/realmate/conversations/internal/models"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) CreateIfAbsent(ctx context.Context, id string) (*models.Conversation, bool, error) {
	const insert = `INSERT INTO conversations (id, status) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
		RETURNING id::text, status, created_at, updated_at`

	conv, err := scanConversation(p.pool.QueryRow(ctx, insert, id, models.ConversationOpen))
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("postgres: create conversation: %w", classify(err))
	}

	// lost the race or a replay: the row exists
	conv, err = p.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*models.Conversation, error) {
	const query = `SELECT id::text, status, created_at, updated_at FROM conversations WHERE id = $1`

	conv, err := scanConversation(p.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get conversation: %w", classify(err))
	}
	return conv, nil
}

func (p *Postgres) SetStatus(ctx context.Context, conv *models.Conversation, status models.ConversationStatus) error {
	// updated_at only moves when the status actually changes
	const update = `UPDATE conversations
		SET updated_at = CASE WHEN status = $2 THEN updated_at ELSE NOW() END,
		    status = $2
		WHERE id = $1
		RETURNING updated_at`

	if err := p.pool.QueryRow(ctx, update, conv.ID, status).Scan(&conv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("postgres: set conversation status: %w", classify(err))
	}
	conv.Status = status
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, msg *models.Message) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var status models.ConversationStatus
		err := tx.QueryRow(ctx, `SELECT status FROM conversations WHERE id = $1 FOR UPDATE`, msg.ConversationID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("postgres: lock conversation: %w", classify(err))
		}
		if status == models.ConversationClosed {
			return ErrConversationClosed
		}

		const insert = `INSERT INTO messages (id, conversation_id, direction, content, timestamp)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, insert, msg.ID, msg.ConversationID, msg.Direction, msg.Content, msg.Timestamp); err != nil {
			return fmt.Errorf("postgres: insert message: %w", classify(err))
		}
		return nil
	})
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conv models.Conversation
	if err := row.Scan(&conv.ID, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	return &conv, nil
}

// classify maps constraint violations onto the store sentinels using the
// SQLSTATE code, leaving other errors untouched.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, pgErr.Detail)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrNotFound, pgErr.Detail)
	case pgerrcode.NotNullViolation, pgerrcode.CheckViolation, pgerrcode.InvalidTextRepresentation:
		return fmt.Errorf("%w: %s", ErrIntegrity, pgErr.Message)
	}
	if pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
		return fmt.Errorf("%w: %s", ErrIntegrity, pgErr.Message)
	}
	return err
}
