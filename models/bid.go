package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bid 代表拍賣商品的出價紀錄
// 只會新增，不會更新；同一場拍賣的最高出價為金額最大者，同金額以最早出價者為準
type Bid struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;index:idx_bid_ranking,priority:1;<-:create"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	Amount    int64     `gorm:"not null;index:idx_bid_ranking,priority:2,sort:desc;<-:create"`
	CreatedAt time.Time `gorm:"not null;index:idx_bid_ranking,priority:3;<-:create"`
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}
