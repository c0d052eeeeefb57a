package sse

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrHubClosed 表示分派器已關閉
var ErrHubClosed = errors.New("hub is closed")

type hubOptions struct {
	logger     *slog.Logger
	bufferSize int
}

type HubOption func(*hubOptions)

// WithHubLogger 設置日誌記錄器
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(o *hubOptions) {
		o.logger = logger
	}
}

// WithHubBufferSize 設置每個訂閱者的緩衝大小
func WithHubBufferSize(size int) HubOption {
	return func(o *hubOptions) {
		o.bufferSize = size
	}
}

// Hub 將來源 channel 的訊息依 route 回傳的頻道名稱分派給本地訂閱者
// 來源通常是 Redis Stream 的訂閱端，讓多個服務實例都能收到同樣的事件
type Hub[T any] struct {
	route  func(T) string
	logger *slog.Logger
	opts   hubOptions

	mu       sync.RWMutex
	wg       sync.WaitGroup
	done     chan struct{}
	active   bool
	channels map[string]*Channel[T]
}

func NewHub[T any](route func(T) string, opts ...HubOption) *Hub[T] {
	options := hubOptions{
		logger:     slog.Default(),
		bufferSize: 16,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Hub[T]{
		route:    route,
		logger:   options.logger.With(slog.String("caller", "Hub")),
		opts:     options,
		done:     make(chan struct{}),
		active:   true,
		channels: make(map[string]*Channel[T]),
	}
}

// Start 開始分派，來源被關閉或 Close 時結束
func (h *Hub[T]) Start(source <-chan T) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.logger.Info("hub goroutine stopped")
		for {
			select {
			case <-h.done:
				return
			case message, ok := <-source:
				if !ok {
					return
				}
				h.dispatch(message)
			}
		}
	}()
}

func (h *Hub[T]) dispatch(message T) {
	name := h.route(message)
	h.mu.RLock()
	defer h.mu.RUnlock()
	channel, ok := h.channels[name]
	if !ok {
		return
	}
	if dropped := channel.Broadcast(message); dropped > 0 {
		h.logger.Warn("Dropped message for slow subscribers", slog.String("channel", name), slog.Int("dropped", dropped))
	}
}

func (h *Hub[T]) Subscribe(channelName string) (<-chan T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return nil, ErrHubClosed
	}
	c, ok := h.channels[channelName]
	if !ok {
		c = NewChannel[T](h.opts.bufferSize)
		h.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

func (h *Hub[T]) Unsubscribe(channelName string, ch <-chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[channelName]
	if !ok {
		return
	}
	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(h.channels, channelName)
	}
}

func (h *Hub[T]) Close() {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return
	}
	h.active = false
	close(h.done)
	h.mu.Unlock()

	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, channel := range h.channels {
		channel.UnsubscribeAll()
	}
	clear(h.channels)
}
