package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/realmate/conversations/internal/models"
)

// Memory is an in-process Store and Reader. It backs tests and the
// STORE_DRIVER=memory development mode.
type Memory struct {
	mu            sync.RWMutex
	now           func() time.Time
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
	messageIDs    map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		now:           func() time.Time { return time.Now().UTC() },
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		messageIDs:    make(map[string]struct{}),
	}
}

func (m *Memory) CreateIfAbsent(ctx context.Context, id string) (*models.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.conversations[id]; ok {
		conv := *existing
		return &conv, false, nil
	}

	now := m.now()
	conv := &models.Conversation{
		ID:        id,
		Status:    models.ConversationOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[id] = conv

	out := *conv
	return &out, true, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	conv := *existing
	return &conv, nil
}

func (m *Memory) SetStatus(ctx context.Context, conv *models.Conversation, status models.ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.conversations[conv.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status != status {
		existing.Status = status
		existing.UpdatedAt = m.now()
	}

	conv.Status = existing.Status
	conv.UpdatedAt = existing.UpdatedAt
	return nil
}

func (m *Memory) AppendMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}
	if conv.IsClosed() {
		return ErrConversationClosed
	}
	if _, dup := m.messageIDs[msg.ID]; dup {
		return ErrDuplicateMessage
	}

	m.messageIDs[msg.ID] = struct{}{}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

func (m *Memory) ListConversations(ctx context.Context, opts ListOptions) ([]models.Conversation, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]models.Conversation, 0, len(m.conversations))
	for id, conv := range m.conversations {
		if opts.Status != "" && conv.Status != opts.Status {
			continue
		}
		out := *conv
		out.Messages = m.messagesLocked(id)
		matched = append(matched, out)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if opts.PageSize > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * opts.PageSize
		if start >= len(matched) {
			return []models.Conversation{}, total, nil
		}
		end := start + opts.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}

	return matched, total, nil
}

func (m *Memory) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	conv := *existing
	conv.Messages = m.messagesLocked(id)
	return &conv, nil
}

// Delete removes a conversation together with its messages.
func (m *Memory) Delete(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.messages[id] {
		delete(m.messageIDs, msg.ID)
	}
	delete(m.messages, id)
	delete(m.conversations, id)
}

func (m *Memory) messagesLocked(id string) []models.Message {
	src := m.messages[id]
	out := make([]models.Message, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
