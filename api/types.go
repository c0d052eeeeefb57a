package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"gavel/auction"
	"gavel/models"
)

type errorResponse struct {
	Message    string `json:"message"`
	CurrentBid *int64 `json:"currentBid,omitempty"`
}

type createAuctionRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	StartPrice  int64      `json:"startPrice"`
	BuyNowPrice *int64     `json:"buyNowPrice"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     time.Time  `json:"endTime" binding:"required"`
}

type placeBidRequest struct {
	Amount int64 `json:"amount"`
}

type auctionResponse struct {
	ID          uuid.UUID  `json:"id"`
	CreatorID   uuid.UUID  `json:"creatorId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartPrice  int64      `json:"startPrice"`
	BuyNowPrice *int64     `json:"buyNowPrice,omitempty"`
	CurrentBid  *int64     `json:"currentBid,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	IsActive    bool       `json:"isActive"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

type bidResponse struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auctionId"`
	UserID    uuid.UUID `json:"userId"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type placeBidResponse struct {
	Bid      bidResponse `json:"bid"`
	EndTime  time.Time   `json:"endTime"`
	Extended bool        `json:"extended"`
}

type resultResponse struct {
	AuctionID    uuid.UUID  `json:"auctionId"`
	WinnerID     *uuid.UUID `json:"winnerId,omitempty"`
	FinalBid     *int64     `json:"finalBid,omitempty"`
	ClosedReason string     `json:"closedReason"`
	ClosedAt     time.Time  `json:"closedAt"`
}

type auctionDetailResponse struct {
	Auction auctionResponse `json:"auction"`
	Result  *resultResponse `json:"result,omitempty"`
	Bids    []bidResponse   `json:"bids"`
}

type notificationResponse struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auctionId"`
	Type      string    `json:"type"`
	Amount    *int64    `json:"amount,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r createAuctionRequest) toInput(creatorID uuid.UUID) auction.CreateAuctionInput {
	return auction.CreateAuctionInput{
		CreatorID:   creatorID,
		Title:       r.Title,
		Description: r.Description,
		StartPrice:  r.StartPrice,
		BuyNowPrice: r.BuyNowPrice,
		StartTime:   lo.FromPtr(r.StartTime),
		EndTime:     r.EndTime,
	}
}

func newAuctionResponse(a *models.Auction) auctionResponse {
	return auctionResponse{
		ID:          a.ID,
		CreatorID:   a.CreatorID,
		Title:       a.Title,
		Description: a.Description,
		StartPrice:  a.StartPrice,
		BuyNowPrice: a.BuyNowPrice,
		CurrentBid:  a.CurrentBid,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		IsActive:    a.IsActive,
		ClosedAt:    a.ClosedAt,
	}
}

func newBidResponse(b models.Bid) bidResponse {
	return bidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		UserID:    b.UserID,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt,
	}
}

func newResultResponse(r *models.AuctionResult) *resultResponse {
	if r == nil {
		return nil
	}
	return &resultResponse{
		AuctionID:    r.AuctionID,
		WinnerID:     r.WinnerID,
		FinalBid:     r.FinalBid,
		ClosedReason: string(r.ClosedReason),
		ClosedAt:     r.ClosedAt,
	}
}

func newNotificationResponse(n models.AuctionNotification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		AuctionID: n.AuctionID,
		Type:      string(n.Type),
		Amount:    n.Amount,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
