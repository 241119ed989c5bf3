package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/realmate/conversations/internal/models"
)

const maxPageSize = 100

// GormReader serves the list/detail endpoints straight from Postgres.
type GormReader struct {
	db *gorm.DB
}

func NewGormReader(db *gorm.DB) *GormReader {
	return &GormReader{db: db}
}

func (r *GormReader) ListConversations(ctx context.Context, opts ListOptions) ([]models.Conversation, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Conversation{})
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	query = query.Preload("Messages", orderMessages).Order("created_at DESC").Order("id DESC")
	if opts.PageSize > 0 {
		pageSize := opts.PageSize
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		page := opts.Page
		if page < 1 {
			page = 1
		}
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}

	conversations := make([]models.Conversation, 0)
	if err := query.Find(&conversations).Error; err != nil {
		return nil, 0, fmt.Errorf("query conversations: %w", err)
	}
	for i := range conversations {
		ensureMessages(&conversations[i])
	}

	return conversations, total, nil
}

func (r *GormReader) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Preload("Messages", orderMessages).First(&conv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	ensureMessages(&conv)
	return &conv, nil
}

// ensureMessages makes an empty thread encode as [] rather than null.
func ensureMessages(conv *models.Conversation) {
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
}

func orderMessages(db *gorm.DB) *gorm.DB {
	return db.Order("timestamp ASC")
}
