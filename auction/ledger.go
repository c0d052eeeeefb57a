package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gavel/models"
)

// Ledger 是只允許新增的出價帳本
// 不檢查拍賣是否仍在進行，這由呼叫端在同一個交易中負責
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx 回傳綁定在指定交易上的 Ledger
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// HighestBid 回傳目前領先的出價，沒有出價時回傳 nil
// 排序: 金額由高到低，同金額以較早出價者優先
func (l *Ledger) HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	const op = "Ledger.HighestBid"
	bid := models.Bid{}
	result := l.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC").
		Order("created_at ASC").
		Order("id ASC").
		Limit(1).
		Find(&bid)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to find highest bid, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &bid, nil
}

// PlaceBid 在出價嚴格高於目前最高出價時寫入，並回傳新出價與被超越的前一個最高出價
// 出價不夠高時回傳 *BidConflictError
func (l *Ledger) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64, at time.Time) (*models.Bid, *models.Bid, error) {
	const op = "Ledger.PlaceBid"
	previous, err := l.HighestBid(ctx, auctionID)
	if err != nil {
		return nil, nil, fmt.Errorf("[%s] Fail to check highest bid, err=%w", op, err)
	}
	if previous != nil && amount <= previous.Amount {
		return nil, previous, &BidConflictError{Highest: previous.Amount}
	}
	bid, err := l.Record(ctx, auctionID, bidderID, amount, at)
	if err != nil {
		return nil, previous, err
	}
	return bid, previous, nil
}

// Record 無條件寫入一筆出價，用於直購
func (l *Ledger) Record(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64, at time.Time) (*models.Bid, error) {
	const op = "Ledger.Record"
	bid := models.Bid{
		AuctionID: auctionID,
		UserID:    bidderID,
		Amount:    amount,
		CreatedAt: at,
	}
	if result := l.db.WithContext(ctx).Create(&bid); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid, err=%w", op, result.Error)
	}
	return &bid, nil
}

// ListBids 依出價時間由新到舊回傳拍賣的所有出價
func (l *Ledger) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	const op = "Ledger.ListBids"
	var bids []models.Bid
	if result := l.db.WithContext(ctx).Where("auction_id = ?", auctionID).Order("created_at DESC").Find(&bids); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, result.Error)
	}
	return bids, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
