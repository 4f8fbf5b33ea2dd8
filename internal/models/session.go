package models

import "time"

// ConversationSession persists a user's dialogue state for multi-process deployments
type ConversationSession struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Data      string    `gorm:"type:text;not null" json:"data"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (ConversationSession) TableName() string {
	return "conversation_sessions"
}
