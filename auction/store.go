package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gavel/models"
)

// Store 負責拍賣、拍賣結果以及拍賣通知的持久化
// 透過 WithTx 可以讓所有操作參與呼叫端的交易
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx 回傳綁定在指定交易上的 Store
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

func (s *Store) Create(ctx context.Context, auction *models.Auction) error {
	const op = "Store.Create"
	if result := s.db.WithContext(ctx).Create(auction); result.Error != nil {
		return fmt.Errorf("[%s] Fail to create auction, err=%w", op, result.Error)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return s.get(ctx, s.db, id)
}

// GetForUpdate 讀取拍賣並鎖住該列直到交易結束，必須在交易中呼叫
func (s *Store) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return s.get(ctx, s.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *Store) get(ctx context.Context, db *gorm.DB, id uuid.UUID) (*models.Auction, error) {
	const op = "Store.Get"
	auction := models.Auction{}
	if result := db.WithContext(ctx).Where("id = ?", id).First(&auction); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("[%s] Fail to find auction, err=%w", op, result.Error)
	}
	return &auction, nil
}

// ListOpen 回傳所有尚未結束的拍賣（包含已過結束時間但尚未結算者）
func (s *Store) ListOpen(ctx context.Context) ([]models.Auction, error) {
	const op = "Store.ListOpen"
	var auctions []models.Auction
	if result := s.db.WithContext(ctx).Where("is_active = ?", true).Order("end_time").Find(&auctions); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list open auctions, err=%w", op, result.Error)
	}
	return auctions, nil
}

// CloseIfExpired 條件式關閉拍賣：只有在仍進行中且結束時間已過時才會更新
// 回傳 false 代表拍賣已被其他觸發來源關閉或尚未到期
func (s *Store) CloseIfExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	const op = "Store.CloseIfExpired"
	result := s.db.WithContext(ctx).Model(&models.Auction{}).
		Where("id = ? AND is_active = ? AND end_time <= ?", id, true, now).
		Updates(map[string]any{"is_active": false, "closed_at": now})
	if result.Error != nil {
		return false, fmt.Errorf("[%s] Fail to close auction, err=%w", op, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// CloseForBuyNow 條件式關閉拍賣，不檢查結束時間，只要求拍賣仍在進行中
func (s *Store) CloseForBuyNow(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	const op = "Store.CloseForBuyNow"
	result := s.db.WithContext(ctx).Model(&models.Auction{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{"is_active": false, "closed_at": now})
	if result.Error != nil {
		return false, fmt.Errorf("[%s] Fail to close auction, err=%w", op, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// CloseExpired 以單一語句關閉所有已到期的拍賣，並回傳被關閉的拍賣 ID
func (s *Store) CloseExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	const op = "Store.CloseExpired"
	var closed []models.Auction
	result := s.db.WithContext(ctx).Model(&closed).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("is_active = ? AND end_time <= ?", true, now).
		Updates(map[string]any{"is_active": false, "closed_at": now})
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to close expired auctions, err=%w", op, result.Error)
	}
	return lo.Map(closed, func(a models.Auction, _ int) uuid.UUID { return a.ID }), nil
}

// ListUnresolved 回傳已關閉但沒有結果紀錄的拍賣
func (s *Store) ListUnresolved(ctx context.Context) ([]uuid.UUID, error) {
	const op = "Store.ListUnresolved"
	var rows []struct {
		ID uuid.UUID
	}
	result := s.db.WithContext(ctx).Model(&models.Auction{}).
		Select("auctions.id AS id").
		Joins("LEFT JOIN auction_results ON auction_results.auction_id = auctions.id").
		Where("auctions.is_active = ? AND auction_results.id IS NULL", false).
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list unresolved auctions, err=%w", op, result.Error)
	}
	return lo.Map(rows, func(r struct{ ID uuid.UUID }, _ int) uuid.UUID { return r.ID }), nil
}

func (s *Store) ExtendEndTime(ctx context.Context, id uuid.UUID, endTime time.Time) error {
	const op = "Store.ExtendEndTime"
	result := s.db.WithContext(ctx).Model(&models.Auction{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("end_time", endTime)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to extend auction, err=%w", op, result.Error)
	}
	return nil
}

func (s *Store) SetCurrentBid(ctx context.Context, id uuid.UUID, amount int64) error {
	const op = "Store.SetCurrentBid"
	result := s.db.WithContext(ctx).Model(&models.Auction{}).Where("id = ?", id).Update("current_bid", amount)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to update current bid, err=%w", op, result.Error)
	}
	return nil
}

// CreateResult 寫入拍賣結果，同一場拍賣重複寫入會回傳 gorm.ErrDuplicatedKey
func (s *Store) CreateResult(ctx context.Context, result *models.AuctionResult) error {
	const op = "Store.CreateResult"
	if res := s.db.WithContext(ctx).Create(result); res.Error != nil {
		return fmt.Errorf("[%s] Fail to create auction result, err=%w", op, res.Error)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, auctionID uuid.UUID) (*models.AuctionResult, error) {
	const op = "Store.GetResult"
	result := models.AuctionResult{}
	if res := s.db.WithContext(ctx).Where("auction_id = ?", auctionID).First(&result); res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("[%s] Fail to find auction result, err=%w", op, res.Error)
	}
	return &result, nil
}

func (s *Store) CreateNotification(ctx context.Context, notification *models.AuctionNotification) error {
	const op = "Store.CreateNotification"
	if res := s.db.WithContext(ctx).Create(notification); res.Error != nil {
		return fmt.Errorf("[%s] Fail to create notification, err=%w", op, res.Error)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.AuctionNotification, error) {
	const op = "Store.ListNotifications"
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var notifications []models.AuctionNotification
	if res := query.Order("created_at DESC").Find(&notifications); res.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list notifications, err=%w", op, res.Error)
	}
	return notifications, nil
}

// MarkNotificationRead 將使用者自己的通知標記為已讀，回傳 false 代表通知不存在
func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) (bool, error) {
	const op = "Store.MarkNotificationRead"
	res := s.db.WithContext(ctx).Model(&models.AuctionNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if res.Error != nil {
		return false, fmt.Errorf("[%s] Fail to mark notification read, err=%w", op, res.Error)
	}
	return res.RowsAffected > 0, nil
}
