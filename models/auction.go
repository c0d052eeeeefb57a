package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Auction 代表拍賣系統中的一場限時拍賣
// IsActive 只會由 true 轉為 false 一次，EndTime 會因為延長規則而往後推
type Auction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatorID   uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	Title       string    `gorm:"type:varchar(255);not null"`
	Description string    `gorm:"type:text;not null"`
	StartPrice  int64     `gorm:"not null;<-:create"`
	BuyNowPrice *int64    `gorm:"<-:create"`
	// CurrentBid 僅供顯示參考，最高出價以 bids 表為準
	CurrentBid *int64
	StartTime  time.Time `gorm:"not null"`
	EndTime    time.Time `gorm:"not null;index:idx_auction_open_end_time,priority:2"`
	IsActive   bool      `gorm:"not null;index:idx_auction_open_end_time,priority:1"`
	ClosedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// 外鍵關聯
	Bids   []Bid          `gorm:"constraint:OnDelete:CASCADE"`
	Result *AuctionResult `gorm:"constraint:OnDelete:CASCADE"`
}

func (a *Auction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		a.ID = id
	}
	return nil
}
