package auction

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gavel/models"
)

// Dispatcher 將結算結果與出價事件推送給訂閱者
// 推送是盡力而為，失敗只記錄日誌，不影響已提交的交易
type Dispatcher interface {
	AuctionEnded(outcome Outcome)
	AuctionExtended(auctionID uuid.UUID, endTime time.Time)
	BidPlaced(bid models.Bid)
	Outbid(userID, auctionID uuid.UUID, highest int64)
}

type EventDispatcher struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewEventDispatcher(publisher Publisher, logger *slog.Logger) *EventDispatcher {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventDispatcher{
		publisher: publisher,
		logger:    logger.With(slog.String("caller", "EventDispatcher")),
	}
}

func (d *EventDispatcher) AuctionEnded(outcome Outcome) {
	if !outcome.Closed || outcome.Result == nil {
		return
	}
	result := outcome.Result
	data := map[string]any{
		"auctionId": outcome.AuctionID.String(),
		"reason":    string(result.ClosedReason),
		"closedAt":  result.ClosedAt,
	}
	if result.WinnerID != nil {
		data["winnerId"] = result.WinnerID.String()
	}
	if result.FinalBid != nil {
		data["finalBid"] = *result.FinalBid
	}

	name := EventAuctionEnded
	if result.ClosedReason == models.ClosedReasonBuyNow {
		name = EventAuctionBIN
	}
	d.publish(LiveEvent{Name: name, Channel: GlobalChannel, Data: data})
	d.publish(LiveEvent{Name: name, Channel: AuctionChannel(outcome.AuctionID), Data: data})

	if result.WinnerID == nil {
		return
	}
	d.publish(LiveEvent{
		Name:    EventUserWon,
		Channel: UserChannel(*result.WinnerID),
		Data: map[string]any{
			"auctionId": outcome.AuctionID.String(),
			"title":     outcome.Title,
			"finalBid":  data["finalBid"],
			"reason":    string(result.ClosedReason),
		},
	})
	if outcome.Message != nil {
		d.publish(LiveEvent{
			Name:    EventMessage,
			Channel: UserChannel(*result.WinnerID),
			Data: map[string]any{
				"messageId":      outcome.Message.ID.String(),
				"conversationId": outcome.Message.ConversationID.String(),
				"content":        outcome.Message.Content,
			},
		})
	}
}

func (d *EventDispatcher) AuctionExtended(auctionID uuid.UUID, endTime time.Time) {
	data := map[string]any{
		"auctionId": auctionID.String(),
		"endTime":   endTime,
	}
	d.publish(LiveEvent{Name: EventAuctionExtended, Channel: AuctionChannel(auctionID), Data: data})
	d.publish(LiveEvent{Name: EventAuctionExtended, Channel: GlobalChannel, Data: data})
}

func (d *EventDispatcher) BidPlaced(bid models.Bid) {
	d.publish(LiveEvent{
		Name:    EventBidPlaced,
		Channel: AuctionChannel(bid.AuctionID),
		Data: map[string]any{
			"auctionId": bid.AuctionID.String(),
			"userId":    bid.UserID.String(),
			"amount":    bid.Amount,
			"time":      bid.CreatedAt,
		},
	})
}

func (d *EventDispatcher) Outbid(userID, auctionID uuid.UUID, highest int64) {
	d.publish(LiveEvent{
		Name:    EventUserOutbid,
		Channel: UserChannel(userID),
		Data: map[string]any{
			"auctionId": auctionID.String(),
			"highest":   highest,
		},
	})
}

func (d *EventDispatcher) publish(event LiveEvent) {
	if err := d.publisher.Publish(event); err != nil {
		d.logger.Warn("Fail to publish live event", slog.String("event", event.Name), slog.String("channel", event.Channel), slog.Any("error", err))
	}
}
