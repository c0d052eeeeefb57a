package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type subscriberOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
	retryDelay   time.Duration
	decodeFunc   func(map[string]any) (T, error)
}

type SubscriberOption[T any] func(*subscriberOptions[T])

// WithSubscriberLogger 設置日誌記錄器
func WithSubscriberLogger[T any](logger *slog.Logger) SubscriberOption[T] {
	return func(o *subscriberOptions[T]) {
		o.logger = logger
	}
}

// WithSubscriberBufferSize 設置下游 channel 的緩衝大小
func WithSubscriberBufferSize[T any](size int) SubscriberOption[T] {
	return func(o *subscriberOptions[T]) {
		o.bufferSize = size
	}
}

// WithSubscriberBlockTimeout 設置阻塞讀取超時時間，同時決定 Close 最長的等待時間
func WithSubscriberBlockTimeout[T any](d time.Duration) SubscriberOption[T] {
	return func(o *subscriberOptions[T]) {
		o.blockTimeout = d
	}
}

// WithSubscriberRetryDelay 設置讀取失敗後的等待時間
func WithSubscriberRetryDelay[T any](d time.Duration) SubscriberOption[T] {
	return func(o *subscriberOptions[T]) {
		o.retryDelay = d
	}
}

// WithSubscriberDecodeFunc 設置自定義解析函數
func WithSubscriberDecodeFunc[T any](fn func(map[string]any) (T, error)) SubscriberOption[T] {
	return func(o *subscriberOptions[T]) {
		o.decodeFunc = fn
	}
}

// StreamSubscriber 從 Redis Stream 讀取啟動後寫入的事件並送往下游 channel
// 每個服務實例各自讀取完整的 Stream，沒有消費者群組
type StreamSubscriber[T any] struct {
	client     *redis.Client
	stream     string
	lastID     string
	downStream chan T
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
	logger     *slog.Logger
	options    subscriberOptions[T]
}

func NewStreamSubscriber[T any](client *redis.Client, stream string, opts ...SubscriberOption[T]) (*StreamSubscriber[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := subscriberOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
		retryDelay:   100 * time.Millisecond,
		decodeFunc:   DecodeEntry[T],
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &StreamSubscriber[T]{
		client:     client,
		stream:     stream,
		downStream: make(chan T, options.bufferSize),
		closed:     true,
		logger:     options.logger.With(slog.String("caller", "StreamSubscriber"), slog.String("stream", stream)),
		options:    options,
	}, nil
}

// Start 記下目前 Stream 的最後一筆 ID 後開始讀取，之後發布的事件都會被收到
func (s *StreamSubscriber[T]) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed || s.cancelFunc != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.closed = false
	s.lastID = s.tailID(ctx)
	s.logger.Info("starting stream subscriber", slog.String("from", s.lastID))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("subscriber goroutine stopped")
		defer close(s.downStream)

		for ctx.Err() == nil {
			messages, err := s.read(ctx)
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("read stream error", slog.Any("error", err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.options.retryDelay):
				}
				continue
			}

			for _, message := range messages {
				s.lastID = message.ID
				data, err := s.options.decodeFunc(message.Values)
				if err != nil {
					s.logger.Error("failed to decode message", slog.String("messageId", message.ID), slog.Any("error", err))
					continue
				}
				select {
				case <-ctx.Done():
					return
				case s.downStream <- data:
				}
			}
		}
	}()
}

// tailID 回傳 Stream 目前最後一筆的 ID，空 Stream 從頭開始讀
func (s *StreamSubscriber[T]) tailID(ctx context.Context) string {
	messages, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", 1).Result()
	if err != nil {
		s.logger.Warn("Fail to read stream tail, falling back to new entries only", slog.Any("error", err))
		return "$"
	}
	if len(messages) == 0 {
		return "0-0"
	}
	return messages[0].ID
}

func (s *StreamSubscriber[T]) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, s.lastID},
		Count:   100,
		Block:   s.options.blockTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, redis.Nil
	}
	return streams[0].Messages, nil
}

// Subscribe 回傳下游 channel，Close 之後會被關閉
func (s *StreamSubscriber[T]) Subscribe() <-chan T {
	return s.downStream
}

func (s *StreamSubscriber[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.logger.Info("closing stream subscriber")
	s.closed = true
	s.cancelFunc()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("stream subscriber closed")
}
