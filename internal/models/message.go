package models

import "time"

type MessageDirection string

const (
	DirectionSent     MessageDirection = "SENT"
	DirectionReceived MessageDirection = "RECEIVED"
)

// Valid reports whether d is one of the known directions.
func (d MessageDirection) Valid() bool {
	return d == DirectionSent || d == DirectionReceived
}

// Message belongs to exactly one conversation. Timestamp comes from the
// event payload, not from the server clock.
type Message struct {
	ID             string           `json:"id" gorm:"type:uuid;primaryKey"`
	ConversationID string           `json:"-" gorm:"type:uuid;not null;index"`
	Direction      MessageDirection `json:"direction" gorm:"type:varchar(10);not null"`
	Content        string           `json:"content" gorm:"type:text;not null"`
	Timestamp      time.Time        `json:"timestamp" gorm:"not null"`
}

func (Message) TableName() string {
	return "messages"
}
