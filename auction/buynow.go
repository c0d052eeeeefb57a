package auction

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gavel/models"
)

// BuyItNow 以直購價立即結束拍賣
// 出價、關閉、結果與得標訊息在同一個交易中完成，任一步驟失敗則全部回滾
func (f *Finalizer) BuyItNow(ctx context.Context, auctionID, buyerID uuid.UUID) (Outcome, error) {
	const op = "BuyItNow"
	// 事前檢查僅為盡力而為，真正的競爭判斷在條件式更新
	auction, err := f.store.Get(ctx, auctionID)
	if err != nil {
		return Outcome{AuctionID: auctionID}, err
	}
	if !auction.IsActive {
		return Outcome{AuctionID: auctionID}, ErrAuctionClosed
	}
	if auction.BuyNowPrice == nil {
		return Outcome{AuctionID: auctionID}, ErrBuyNowUnavailable
	}
	if auction.CreatorID == buyerID {
		return Outcome{AuctionID: auctionID}, ErrSelfBid
	}

	// 已過結束時間但尚未結算的拍賣仍可直購，與到期結算的競爭由條件式更新決定
	now := f.clock.Now().UTC()
	if now.Before(auction.StartTime) {
		return Outcome{AuctionID: auctionID}, ErrAuctionNotStarted
	}
	price := *auction.BuyNowPrice
	outcome := Outcome{AuctionID: auctionID}
	err = f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := f.store.WithTx(tx)
		ledger := f.ledger.WithTx(tx)
		// 鎖定拍賣列與出價流程互斥，出價已達直購價後不再提供直購
		if _, err := store.GetForUpdate(ctx, auctionID); err != nil {
			return err
		}
		highest, err := ledger.HighestBid(ctx, auctionID)
		if err != nil {
			return err
		}
		if highest != nil && highest.Amount >= price {
			return ErrBuyNowUnavailable
		}
		bid, err := ledger.Record(ctx, auctionID, buyerID, price, now)
		if err != nil {
			return err
		}
		closed, err := store.CloseForBuyNow(ctx, auctionID, now)
		if err != nil {
			return err
		}
		if !closed {
			return ErrAuctionClosed
		}
		if err := store.SetCurrentBid(ctx, auctionID, price); err != nil {
			return err
		}
		outcome, err = f.record(ctx, tx, auction, &models.AuctionResult{
			AuctionID:    auctionID,
			WinnerID:     &bid.UserID,
			FinalBid:     &bid.Amount,
			ClosedReason: models.ClosedReasonBuyNow,
			ClosedAt:     now,
		})
		return err
	})
	if IsRejection(err) {
		f.logger.Info("Buy-now rejected", slog.String("auctionID", auctionID.String()), slog.Any("error", err))
		f.metrics.ObserveFinalization(TriggerBuyNow, "noop")
		return Outcome{AuctionID: auctionID}, err
	}
	return f.finish(op, TriggerBuyNow, outcome, err)
}
