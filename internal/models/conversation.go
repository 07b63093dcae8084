package models

import "time"

// Conversation is a direct-message thread.
type Conversation struct {
	BaseModel

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
	Messages     []Message                 `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// ConversationParticipant records membership; Position preserves join order.
type ConversationParticipant struct {
	ConversationID string    `gorm:"primaryKey;type:uuid" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;type:uuid;index" json:"user_id"`
	User           *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Position       int       `gorm:"not null" json:"position"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Message is one entry in a conversation.
type Message struct {
	BaseModel

	ConversationID string `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID       string `gorm:"type:uuid;not null;index" json:"sender_id"`
	Sender         *User  `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content        string `gorm:"type:text;not null" json:"content"`
	IsRead         bool   `gorm:"not null;default:false" json:"is_read"`
}
