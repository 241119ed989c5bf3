// Package store persists conversations and their messages.
//
// Writers go through Store, which the webhook handlers consume directly.
// Readers go through Reader, which backs the list/detail endpoints and must
// observe every committed write immediately.
package store

import (
	"context"
	"errors"

	"github.com/realmate/conversations/internal/models"
)

var (
	ErrNotFound           = errors.New("store: conversation not found")
	ErrConversationClosed = errors.New("store: conversation is closed")
	ErrDuplicateMessage   = errors.New("store: message id already exists")
	ErrIntegrity          = errors.New("store: integrity violation")
)

type Store interface {
	// CreateIfAbsent creates an OPEN conversation with the given id. created
	// is false when the conversation already existed; that is not an error.
	CreateIfAbsent(ctx context.Context, id string) (conv *models.Conversation, created bool, err error)
	// Get returns ErrNotFound when no conversation has the id.
	Get(ctx context.Context, id string) (*models.Conversation, error)
	// SetStatus is a no-op, updated_at included, when conv already has status.
	SetStatus(ctx context.Context, conv *models.Conversation, status models.ConversationStatus) error
	// AppendMessage stores msg only while its conversation is OPEN. The status
	// check and the insert are atomic with respect to SetStatus.
	AppendMessage(ctx context.Context, msg *models.Message) error
}

type ListOptions struct {
	Status   models.ConversationStatus
	Page     int
	PageSize int
}

type Reader interface {
	// ListConversations returns conversations newest first with their
	// messages ordered by timestamp, plus the total matching count.
	ListConversations(ctx context.Context, opts ListOptions) ([]models.Conversation, int64, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
}
