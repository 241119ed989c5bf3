// Package audit records every webhook processing attempt.
//
// Logger.Log never fails from the caller's point of view: a sink error is
// reported on the zap logger and dropped, so the outcome of the event being
// processed cannot change because the audit trail is unavailable.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/realmate/conversations/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	writeTimeout     = 5 * time.Second
)

// Sink is the durable store behind the Logger.
type Sink interface {
	Append(ctx context.Context, entry *models.WebhookLog) error
	// List returns entries matching filter, newest first.
	List(ctx context.Context, filter Filter) ([]models.WebhookLog, error)
}

type Filter struct {
	Event          string
	Status         models.LogStatus
	ConversationID string
	// Search matches event, message or conversation id, case-insensitively.
	Search string
	Limit  int
}

// Normalize trims the filter and clamps Limit into [1, 1000].
func (f Filter) Normalize() Filter {
	f.Event = strings.TrimSpace(f.Event)
	f.Status = models.LogStatus(strings.ToLower(strings.TrimSpace(string(f.Status))))
	f.ConversationID = strings.TrimSpace(f.ConversationID)
	f.Search = strings.TrimSpace(f.Search)
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	return f
}

type Logger struct {
	sink   Sink
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewLogger(sink Sink, logger *zap.SugaredLogger) *Logger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Logger{
		sink:   sink,
		logger: logger.Named("audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Log appends one record. An empty event is stored as UNKNOWN and an empty
// conversationID as NULL.
func (l *Logger) Log(ctx context.Context, event, conversationID string, status models.LogStatus, message string) {
	if l == nil {
		return
	}

	entry := &models.WebhookLog{
		ID:        uuid.NewString(),
		Event:     strings.TrimSpace(event),
		Status:    status,
		Message:   message,
		Timestamp: l.now(),
	}
	if entry.Event == "" {
		entry.Event = models.UnknownEvent
	}
	if id := strings.TrimSpace(conversationID); id != "" {
		entry.ConversationID = &id
	}

	if err := l.append(ctx, entry); err != nil {
		l.logger.Errorw("failed to persist webhook log",
			"event", entry.Event,
			"conversation_id", conversationID,
			"status", entry.Status,
			"message", entry.Message,
			"error", err,
		)
	}
}

func (l *Logger) append(ctx context.Context, entry *models.WebhookLog) (err error) {
	if l.sink == nil {
		return fmt.Errorf("audit: no sink configured")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit: sink panicked: %v", r)
		}
	}()

	// the write outlives a cancelled request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	return l.sink.Append(ctx, entry)
}

func (l *Logger) List(ctx context.Context, filter Filter) ([]models.WebhookLog, error) {
	if l == nil || l.sink == nil {
		return nil, fmt.Errorf("audit: no sink configured")
	}
	return l.sink.List(ctx, filter.Normalize())
}
