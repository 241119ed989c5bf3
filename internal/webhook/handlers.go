package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/realmate/conversations/internal/models"
	"github.com/realmate/conversations/internal/store"
)

// Result is what a handler reports on success.
type Result struct {
	StatusCode     int
	Message        string
	ConversationID string
	// AuditMessage is recorded in the audit log; it may carry more detail
	// than the client-facing Message.
	AuditMessage string
}

// Handler applies one event type to the store.
type Handler interface {
	Apply(ctx context.Context, data map[string]any, timestamp any) (Result, error)
}

type NewConversationHandler struct {
	Store store.Store
}

func (h NewConversationHandler) Apply(ctx context.Context, data map[string]any, _ any) (Result, error) {
	id, err := uuidField(data, "id")
	if err != nil {
		return Result{}, err
	}

	_, created, err := h.Store.CreateIfAbsent(ctx, id)
	if err != nil {
		return Result{}, storeFailure(id, err)
	}

	audit := fmt.Sprintf("conversation %s created", id)
	if !created {
		audit = fmt.Sprintf("conversation %s already exists", id)
	}

	return Result{
		StatusCode:     http.StatusCreated,
		Message:        "conversation processed successfully",
		ConversationID: id,
		AuditMessage:   audit,
	}, nil
}

type CloseConversationHandler struct {
	Store store.Store
}

func (h CloseConversationHandler) Apply(ctx context.Context, data map[string]any, _ any) (Result, error) {
	id, err := uuidField(data, "id")
	if err != nil {
		return Result{}, err
	}

	conv, err := h.Store.Get(ctx, id)
	if err != nil {
		return Result{}, storeFailure(id, err)
	}

	audit := fmt.Sprintf("conversation %s closed", id)
	if conv.IsClosed() {
		// a replayed close leaves the row untouched
		audit = fmt.Sprintf("conversation %s was already closed", id)
	} else if err := h.Store.SetStatus(ctx, conv, models.ConversationClosed); err != nil {
		return Result{}, storeFailure(id, err)
	}

	return Result{
		StatusCode:     http.StatusOK,
		Message:        "conversation closed successfully",
		ConversationID: id,
		AuditMessage:   audit,
	}, nil
}

type NewMessageHandler struct {
	Store store.Store
}

func (h NewMessageHandler) Apply(ctx context.Context, data map[string]any, timestamp any) (Result, error) {
	// required fields are reported in this order
	conversationRaw, err := stringField(data, "conversation_id")
	if err != nil {
		return Result{}, err
	}
	messageRaw, err := stringField(data, "id")
	if err != nil {
		return Result{}, err
	}
	directionRaw, err := stringField(data, "direction")
	if err != nil {
		return Result{}, err
	}
	content, err := stringField(data, "content")
	if err != nil {
		return Result{}, err
	}
	if isBlank(timestamp) {
		return Result{}, missingField("timestamp")
	}

	conversationID, err := parseUUID("conversation_id", conversationRaw)
	if err != nil {
		return Result{}, err
	}

	conv, err := h.Store.Get(ctx, conversationID)
	if err != nil {
		return Result{}, storeFailure(conversationID, err)
	}
	if conv.IsClosed() {
		return Result{}, conversationClosed(conversationID)
	}

	ts, err := ParseTimestamp(timestamp)
	if err != nil {
		return Result{}, withConversation(err, conversationID)
	}

	messageID, err := parseUUID("id", messageRaw)
	if err != nil {
		return Result{}, withConversation(err, conversationID)
	}

	direction := models.MessageDirection(directionRaw)
	if !direction.Valid() {
		return Result{}, withConversation(
			invalidValue("direction", "invalid direction: %s (expected %s or %s)", directionRaw, models.DirectionSent, models.DirectionReceived),
			conversationID,
		)
	}

	msg := &models.Message{
		ID:             messageID,
		ConversationID: conversationID,
		Direction:      direction,
		Content:        content,
		Timestamp:      ts,
	}
	if err := h.Store.AppendMessage(ctx, msg); err != nil {
		return Result{}, storeFailure(conversationID, err)
	}

	return Result{
		StatusCode:     http.StatusCreated,
		Message:        "message created successfully",
		ConversationID: conversationID,
		AuditMessage:   fmt.Sprintf("message %s created in conversation %s", messageID, conversationID),
	}, nil
}

// isBlank reports whether an optional envelope value is absent or an empty
// string.
func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func uuidField(data map[string]any, key string) (string, error) {
	raw, err := stringField(data, key)
	if err != nil {
		return "", err
	}
	return parseUUID(key, raw)
}

// parseUUID returns the canonical form of raw.
func parseUUID(field, raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", invalidValue(field, "%s is not a valid UUID: %s", field, raw)
	}
	return id.String(), nil
}

// storeFailure translates store sentinels into handler errors.
func storeFailure(conversationID string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return conversationNotFound(conversationID)
	case errors.Is(err, store.ErrConversationClosed):
		return conversationClosed(conversationID)
	case errors.Is(err, store.ErrDuplicateMessage), errors.Is(err, store.ErrIntegrity):
		return integrityViolation(conversationID, err)
	default:
		return unexpected(conversationID, err)
	}
}

func withConversation(err error, conversationID string) error {
	var werr *Error
	if errors.As(err, &werr) && werr.ConversationID == "" {
		werr.ConversationID = conversationID
	}
	return err
}
