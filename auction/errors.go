package auction

import (
	"errors"
	"fmt"
)

var (
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAuctionClosed     = errors.New("auction is closed")
	ErrAuctionNotStarted = errors.New("auction has not started")
	ErrBidTooLow         = errors.New("bid must exceed the current highest bid")
	ErrBelowStartPrice   = errors.New("bid is below the start price")
	ErrInvalidAmount     = errors.New("bid amount must be positive")
	ErrSelfBid           = errors.New("creator cannot bid on own auction")
	ErrBuyNowUnavailable = errors.New("buy-now is not available for this auction")
	ErrInvalidSchedule   = errors.New("invalid auction schedule")
	ErrInvalidPrice      = errors.New("invalid auction price")
)

// BidConflictError 表示出價沒有嚴格高於目前最高出價
// Highest 為目前的最高出價，讓呼叫端可以告知出價者
type BidConflictError struct {
	Highest int64
}

func (e *BidConflictError) Error() string {
	return fmt.Sprintf("%s: current highest is %d", ErrBidTooLow, e.Highest)
}

func (e *BidConflictError) Is(target error) bool {
	return target == ErrBidTooLow
}

// IsRejection 判斷錯誤是否為驗證拒絕（非系統錯誤）
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrAuctionNotFound,
		ErrAuctionClosed,
		ErrAuctionNotStarted,
		ErrBidTooLow,
		ErrBelowStartPrice,
		ErrInvalidAmount,
		ErrSelfBid,
		ErrBuyNowUnavailable,
		ErrInvalidSchedule,
		ErrInvalidPrice,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
