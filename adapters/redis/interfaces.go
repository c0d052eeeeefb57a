//go:generate mockgen -package=redis -destination=mock.go -source=interfaces.go

package redis

import (
	"context"
)

// IStreamPublisher 定義了將事件寫入 Redis Stream 的操作介面
type IStreamPublisher[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IStreamSubscriber 定義了從 Redis Stream 讀取事件的操作介面
type IStreamSubscriber[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// ILease 定義了單一執行者租約的操作介面
type ILease interface {
	Acquire(ctx context.Context) error
	Lost() <-chan struct{}
	Held() bool
	Release() error
}
