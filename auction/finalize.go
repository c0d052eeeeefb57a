package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"gavel/adapters/metrics"
	"gavel/models"
)

// 觸發結算的來源，用於日誌與指標
const (
	TriggerTimer  = "timer"
	TriggerSweep  = "sweep"
	TriggerBuyNow = "buy_now"
	TriggerManual = "manual"
)

// Outcome 描述一次結算的結果
// Closed 為 false 代表拍賣已被其他觸發來源結算，本次為 no-op
type Outcome struct {
	AuctionID uuid.UUID
	Title     string
	Closed    bool
	Result    *models.AuctionResult
	Message   *models.Message
}

// Finalizer 是拍賣由進行中轉為結束的唯一入口
// 以條件式更新的影響列數作為並發判斷依據，任何觸發來源重複呼叫都是安全的
type Finalizer struct {
	db         *gorm.DB
	store      *Store
	ledger     *Ledger
	messenger  Messenger
	dispatcher Dispatcher
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// onClosed 在交易提交後呼叫，用於清除計時器
	onClosed func(auctionID uuid.UUID)
}

// CompleteAuction 在拍賣到期時結算
// 錯誤已在內部記錄，呼叫端不需要再處理，回傳只供測試與手動觸發使用
func (f *Finalizer) CompleteAuction(ctx context.Context, auctionID uuid.UUID) (Outcome, error) {
	return f.complete(ctx, auctionID, TriggerManual)
}

func (f *Finalizer) complete(ctx context.Context, auctionID uuid.UUID, trigger string) (Outcome, error) {
	const op = "CompleteAuction"
	now := f.clock.Now().UTC()
	outcome := Outcome{AuctionID: auctionID}
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := f.store.WithTx(tx)
		closed, err := store.CloseIfExpired(ctx, auctionID, now)
		if err != nil {
			return err
		}
		if !closed {
			return nil
		}
		auction, err := store.Get(ctx, auctionID)
		if err != nil {
			return err
		}
		outcome, err = f.resolve(ctx, tx, auction, now)
		return err
	})
	return f.finish(op, trigger, outcome, err)
}

// ResolveClosed 為已關閉但尚未有結果的拍賣寫入結果，不會再次執行關閉步驟
func (f *Finalizer) ResolveClosed(ctx context.Context, auctionID uuid.UUID, trigger string) (Outcome, error) {
	const op = "ResolveClosed"
	now := f.clock.Now().UTC()
	outcome := Outcome{AuctionID: auctionID}
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := f.store.WithTx(tx)
		auction, err := store.GetForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if auction.IsActive {
			return nil
		}
		existing, err := store.GetResult(ctx, auctionID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		closedAt := now
		if auction.ClosedAt != nil {
			closedAt = auction.ClosedAt.UTC()
		}
		outcome, err = f.resolve(ctx, tx, auction, closedAt)
		return err
	})
	if isDuplicate(err) {
		f.logger.Debug("Auction already resolved", slog.String("auctionID", auctionID.String()))
		return f.finish(op, trigger, Outcome{AuctionID: auctionID}, nil)
	}
	return f.finish(op, trigger, outcome, err)
}

// resolve 讀取最高出價並寫入結果、通知與得標訊息，必須在交易中呼叫
func (f *Finalizer) resolve(ctx context.Context, tx *gorm.DB, auction *models.Auction, closedAt time.Time) (Outcome, error) {
	const op = "resolve"
	highest, err := f.ledger.WithTx(tx).HighestBid(ctx, auction.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("[%s] Fail to read highest bid, err=%w", op, err)
	}
	result := &models.AuctionResult{
		AuctionID:    auction.ID,
		ClosedReason: models.ClosedReasonExpired,
		ClosedAt:     closedAt,
	}
	if highest != nil {
		result.WinnerID = &highest.UserID
		result.FinalBid = &highest.Amount
	}
	return f.record(ctx, tx, auction, result)
}

// record 寫入結果，有得標者時一併寫入 won 通知與系統訊息
func (f *Finalizer) record(ctx context.Context, tx *gorm.DB, auction *models.Auction, result *models.AuctionResult) (Outcome, error) {
	const op = "record"
	store := f.store.WithTx(tx)
	if err := store.CreateResult(ctx, result); err != nil {
		return Outcome{}, err
	}
	outcome := Outcome{
		AuctionID: auction.ID,
		Title:     auction.Title,
		Closed:    true,
		Result:    result,
	}
	if result.WinnerID == nil {
		return outcome, nil
	}
	notification := models.AuctionNotification{
		UserID:    *result.WinnerID,
		AuctionID: auction.ID,
		Type:      models.NotificationTypeWon,
		Amount:    result.FinalBid,
		CreatedAt: result.ClosedAt,
	}
	if err := store.CreateNotification(ctx, &notification); err != nil {
		return Outcome{}, err
	}
	message, err := deliverWinnerMessage(ctx, tx, f.messenger, *result.WinnerID, winnerMessage(auction, *result.FinalBid, result.ClosedReason))
	if err != nil {
		return Outcome{}, fmt.Errorf("[%s] Fail to deliver winner message, err=%w", op, err)
	}
	outcome.Message = message
	return outcome, nil
}

// finish 處理交易提交後的日誌、指標與推播
func (f *Finalizer) finish(op, trigger string, outcome Outcome, err error) (Outcome, error) {
	logger := f.logger.With(slog.String("auctionID", outcome.AuctionID.String()), slog.String("trigger", trigger))
	if err != nil {
		logger.Error("Fail to finalize auction", slog.Any("error", err))
		f.metrics.ObserveFinalization(trigger, "error")
		return Outcome{AuctionID: outcome.AuctionID}, fmt.Errorf("[%s] Fail to finalize auction, err=%w", op, err)
	}
	if !outcome.Closed {
		logger.Debug("Auction already finalized or not due")
		f.metrics.ObserveFinalization(trigger, "noop")
		return outcome, nil
	}
	logger.Info("Auction finalized", slog.String("reason", string(outcome.Result.ClosedReason)), slog.Bool("hasWinner", outcome.Result.WinnerID != nil))
	f.metrics.ObserveFinalization(trigger, "closed")
	if f.onClosed != nil {
		f.onClosed(outcome.AuctionID)
	}
	f.dispatcher.AuctionEnded(outcome)
	return outcome, nil
}
