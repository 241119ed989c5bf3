package audit

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/realmate/conversations/internal/models"
)

type MemorySink struct {
	mu      sync.RWMutex
	entries []models.WebhookLog
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Append(ctx context.Context, entry *models.WebhookLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MemorySink) List(ctx context.Context, filter Filter) ([]models.WebhookLog, error) {
	filter = filter.Normalize()

	m.mu.RLock()
	matched := make([]models.WebhookLog, 0, len(m.entries))
	for _, entry := range m.entries {
		if filter.matches(entry) {
			matched = append(matched, entry)
		}
	}
	m.mu.RUnlock()

	// stable over insertion order so equal timestamps keep newest-appended first
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Len reports the number of stored entries.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (f Filter) matches(entry models.WebhookLog) bool {
	if f.Event != "" && entry.Event != f.Event {
		return false
	}
	if f.Status != "" && entry.Status != f.Status {
		return false
	}
	convID := ""
	if entry.ConversationID != nil {
		convID = *entry.ConversationID
	}
	if f.ConversationID != "" && convID != f.ConversationID {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(entry.Event), needle) &&
			!strings.Contains(strings.ToLower(entry.Message), needle) &&
			!strings.Contains(strings.ToLower(convID), needle) {
			return false
		}
	}
	return true
}
