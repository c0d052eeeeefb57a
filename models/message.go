package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation 代表使用者與系統之間的對話，每位使用者只有一個系統對話
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;<-:create"`
	CreatedAt time.Time

	Messages []Message `gorm:"constraint:OnDelete:CASCADE"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		c.ID = id
	}
	return nil
}

// Message 代表對話中的一則訊息，系統訊息沒有寄件者
type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index;<-:create"`
	SenderID       *uuid.UUID `gorm:"type:uuid;<-:create"`
	RecipientID    uuid.UUID  `gorm:"type:uuid;not null;index;<-:create"`
	Content        string     `gorm:"type:text;not null;<-:create"`
	IsSystem       bool       `gorm:"not null;default:false;<-:create"`
	IsRead         bool       `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id
	}
	return nil
}
