package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeOutbid NotificationType = "outbid"
	NotificationTypeWon    NotificationType = "won"
)

// AuctionNotification 代表使用者在某場拍賣中收到的事件通知
type AuctionNotification struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index:idx_notification_user_read,priority:1;<-:create"`
	AuctionID uuid.UUID        `gorm:"type:uuid;not null;index;<-:create"`
	Type      NotificationType `gorm:"type:varchar(16);not null;<-:create"`
	Amount    *int64           `gorm:"<-:create"`
	IsRead    bool             `gorm:"not null;default:false;index:idx_notification_user_read,priority:2"`
	CreatedAt time.Time        `gorm:"not null;<-:create"`
}

func (n *AuctionNotification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		n.ID = id
	}
	return nil
}
