//go:generate mockgen -package=api -destination=mock.go -source=interfaces.go

package api

import (
	"context"

	"github.com/google/uuid"

	"gavel/auction"
	"gavel/models"
)

// AuctionService 是 HTTP 層需要的拍賣操作，由 auction.Engine 實作
type AuctionService interface {
	CreateAuction(ctx context.Context, input auction.CreateAuctionInput) (*models.Auction, error)
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	GetResult(ctx context.Context, auctionID uuid.UUID) (*models.AuctionResult, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (auction.BidResult, error)
	BuyItNow(ctx context.Context, auctionID, buyerID uuid.UUID) (auction.Outcome, error)
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.AuctionNotification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) (bool, error)
}

// EventStream 依頻道名稱訂閱即時事件，由 sse.Hub 實作
type EventStream interface {
	Subscribe(channelName string) (<-chan auction.LiveEvent, error)
	Unsubscribe(channelName string, ch <-chan auction.LiveEvent)
}
