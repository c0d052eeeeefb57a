//go:generate mockgen -package=sse -destination=mock.go -source=interfaces.go

package sse

// IChannel 定義了單一頻道的訂閱與廣播
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱並關閉它
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息送給所有訂閱者，回傳因緩衝已滿而丟棄的數量
	Broadcast(message T) int
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// IHub 定義了多頻道的本地分派器
type IHub[T any] interface {
	// Start 開始從來源讀取訊息並依頻道分派
	Start(source <-chan T)
	// Subscribe 訂閱指定頻道
	Subscribe(channelName string) (<-chan T, error)
	// Unsubscribe 取消訂閱指定頻道
	Unsubscribe(channelName string, ch <-chan T)
	// Close 停止分派並關閉所有訂閱
	Close()
}
