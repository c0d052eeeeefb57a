package auction

import (
	"fmt"

	"github.com/google/uuid"
)

// 即時事件名稱
const (
	EventAuctionEnded    = "auction-ended"
	EventAuctionExtended = "auction-extended"
	EventUserWon         = "user-won"
	EventUserOutbid      = "user-outbid"
	EventAuctionBIN      = "auction-BIN"
	EventBidPlaced       = "bid-placed"
	EventMessage         = "message"
)

// GlobalChannel 是所有訂閱者都會收到的頻道
const GlobalChannel = "auctions"

// LiveEvent 代表一則推送給前端的即時事件
// Channel 決定事件要送到哪些訂閱者
type LiveEvent struct {
	Name    string         `msgpack:"name" json:"name"`
	Channel string         `msgpack:"channel" json:"channel"`
	Data    map[string]any `msgpack:"data" json:"data"`
}

// Publisher 是即時事件的發送端，發送失敗不影響交易結果
type Publisher interface {
	Publish(event LiveEvent) error
}

// AuctionChannel 回傳單一拍賣的頻道名稱
func AuctionChannel(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s", auctionID)
}

// UserChannel 回傳針對單一使用者的頻道名稱
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}

type discardPublisher struct{}

func (discardPublisher) Publish(LiveEvent) error { return nil }
