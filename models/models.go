package models

// All 回傳所有需要建立資料表的模型，順序依照外鍵相依
func All() []any {
	return []any{
		&Auction{},
		&Bid{},
		&AuctionResult{},
		&AuctionNotification{},
		&Conversation{},
		&Message{},
	}
}
