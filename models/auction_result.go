package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClosedReason string

const (
	ClosedReasonExpired ClosedReason = "expired"
	ClosedReasonBuyNow  ClosedReason = "buy_now"
)

// AuctionResult 代表一場拍賣的最終結果，每場拍賣只會有一筆
// WinnerID 為 nil 代表拍賣期間沒有任何出價
type AuctionResult struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey"`
	AuctionID      uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex;<-:create"`
	WinnerID       *uuid.UUID   `gorm:"type:uuid;<-:create"`
	FinalBid       *int64       `gorm:"<-:create"`
	ClosedReason   ClosedReason `gorm:"type:varchar(16);not null;<-:create"`
	ClosedAt       time.Time    `gorm:"not null;<-:create"`
	IsPaid         bool         `gorm:"not null;default:false"`
	TrackingNumber *string      `gorm:"type:varchar(255)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *AuctionResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ID = id
	}
	return nil
}
