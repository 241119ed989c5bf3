package models

import "time"

// ConversationStatus is the lifecycle state of a conversation. OPEN is the
// initial state and CLOSED is terminal.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "OPEN"
	ConversationClosed ConversationStatus = "CLOSED"
)

// Conversation is a thread opened by the webhook sender. Its ID is supplied
// by the caller on the first NEW_CONVERSATION event.
type Conversation struct {
	ID        string             `json:"id" gorm:"type:uuid;primaryKey"`
	Status    ConversationStatus `json:"status" gorm:"type:varchar(10);not null;default:OPEN"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Messages  []Message          `json:"messages" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// IsClosed reports whether the conversation rejects new messages.
func (c Conversation) IsClosed() bool {
	return c.Status == ConversationClosed
}
