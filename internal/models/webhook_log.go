package models

import "time"

type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
)

// UnknownEvent is recorded when the envelope carries no usable type.
const UnknownEvent = "UNKNOWN"

// WebhookLog is one append-only audit record of a processing attempt.
type WebhookLog struct {
	ID             string    `json:"id" bson:"_id" gorm:"type:uuid;primaryKey"`
	Event          string    `json:"event" bson:"event" gorm:"type:text;not null;index"`
	ConversationID *string   `json:"conversation_id" bson:"conversation_id,omitempty" gorm:"type:text;index"`
	Status         LogStatus `json:"status" bson:"status" gorm:"type:varchar(20);not null"`
	Message        string    `json:"message" bson:"message" gorm:"type:text;not null"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp" gorm:"not null;index"`
}

func (WebhookLog) TableName() string {
	return "webhook_logs"
}
