package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gavel/models"
)

// BidResult 描述一次成功的出價
type BidResult struct {
	Bid      models.Bid
	Previous *models.Bid
	EndTime  time.Time
	Extended bool
}

// PlaceBid 出價流程：鎖定拍賣列、驗證、寫入帳本、必要時延長結束時間並寫入被超越通知
// 鎖定拍賣列讓出價與結算互斥，拍賣一旦關閉就不會再有出價寫入
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (BidResult, error) {
	const op = "PlaceBid"
	logger := e.logger.With(slog.String("auctionID", auctionID.String()), slog.String("bidderID", bidderID.String()))
	if amount <= 0 {
		e.metrics.ObserveBid("rejected")
		return BidResult{}, ErrInvalidAmount
	}

	now := e.clock.Now().UTC()
	var res BidResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := e.store.WithTx(tx)
		auction, err := store.GetForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if !auction.IsActive || !now.Before(auction.EndTime) {
			return ErrAuctionClosed
		}
		if now.Before(auction.StartTime) {
			return ErrAuctionNotStarted
		}
		if auction.CreatorID == bidderID {
			return ErrSelfBid
		}
		if amount < auction.StartPrice {
			return ErrBelowStartPrice
		}

		bid, previous, err := e.ledger.WithTx(tx).PlaceBid(ctx, auctionID, bidderID, amount, now)
		if err != nil {
			return err
		}
		if err := store.SetCurrentBid(ctx, auctionID, amount); err != nil {
			return err
		}
		res = BidResult{Bid: *bid, Previous: previous, EndTime: auction.EndTime}

		if endTime, extend := e.policy.Apply(auction.EndTime, now); extend {
			if err := store.ExtendEndTime(ctx, auctionID, endTime); err != nil {
				return err
			}
			res.EndTime = endTime
			res.Extended = true
		}

		if previous != nil && previous.UserID != bidderID {
			return store.CreateNotification(ctx, &models.AuctionNotification{
				UserID:    previous.UserID,
				AuctionID: auctionID,
				Type:      models.NotificationTypeOutbid,
				Amount:    &bid.Amount,
				CreatedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			logger.Info("Bid rejected", slog.Int64("amount", amount), slog.Any("error", err))
			e.metrics.ObserveBid("rejected")
			return BidResult{}, err
		}
		logger.Error("Fail to place bid", slog.Any("error", err))
		e.metrics.ObserveBid("error")
		return BidResult{}, fmt.Errorf("[%s] Fail to place bid, err=%w", op, err)
	}

	logger.Info("Bid placed", slog.Int64("amount", amount), slog.Bool("extended", res.Extended))
	e.metrics.ObserveBid("accepted")
	if res.Extended {
		e.metrics.IncExtensions()
		if !e.timers.Schedule(auctionID, res.EndTime) {
			logger.Warn("Fail to reschedule extended auction", slog.Time("endTime", res.EndTime))
		}
		e.dispatcher.AuctionExtended(auctionID, res.EndTime)
	}
	e.dispatcher.BidPlaced(res.Bid)
	if res.Previous != nil && res.Previous.UserID != bidderID {
		e.dispatcher.Outbid(res.Previous.UserID, auctionID, amount)
	}
	return res, nil
}
