package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseNotHeld 表示租約尚未取得或已釋放
var ErrLeaseNotHeld = errors.New("lease is not held")

type leaseOptions struct {
	logger        *slog.Logger
	expiry        time.Duration
	renewInterval time.Duration
	retryDelay    time.Duration
}

type LeaseOption func(*leaseOptions)

// WithLeaseLogger 設置日誌記錄器
func WithLeaseLogger(logger *slog.Logger) LeaseOption {
	return func(o *leaseOptions) {
		o.logger = logger
	}
}

// WithLeaseExpiry 設置租約過期時間
func WithLeaseExpiry(d time.Duration) LeaseOption {
	return func(o *leaseOptions) {
		o.expiry = d
	}
}

// WithLeaseRenewInterval 設置續約間隔，預設為過期時間的 1/3
func WithLeaseRenewInterval(d time.Duration) LeaseOption {
	return func(o *leaseOptions) {
		o.renewInterval = d
	}
}

// WithLeaseRetryDelay 設置租約被他人持有時的重試間隔
func WithLeaseRetryDelay(d time.Duration) LeaseOption {
	return func(o *leaseOptions) {
		o.retryDelay = d
	}
}

// Lease 保證同一時間只有一個行程負責拍賣結算
// 取得後在背景續約，續約失敗時關閉 Lost()，持有者應立即停止結算
type Lease struct {
	mutex   *redsync.Mutex
	key     string
	logger  *slog.Logger
	options leaseOptions

	mu     sync.Mutex
	held   bool
	cancel context.CancelFunc
	lost   chan struct{}
	wg     sync.WaitGroup
}

func NewLease(client *redis.Client, key string, opts ...LeaseOption) *Lease {
	options := leaseOptions{
		logger:     slog.Default(),
		expiry:     8 * time.Second,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	rs := redsync.New(goredis.NewPool(client))
	return &Lease{
		mutex: rs.NewMutex(
			key,
			redsync.WithExpiry(options.expiry),
			redsync.WithTries(1),
		),
		key:     key,
		logger:  options.logger.With(slog.String("caller", "Lease"), slog.String("key", key)),
		options: options,
		lost:    make(chan struct{}),
	}
}

// Acquire 阻塞直到取得租約或 ctx 結束，Redis 連線錯誤會直接回傳
func (l *Lease) Acquire(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			err := l.mutex.LockContext(ctx)
			if err == nil {
				l.startRenew()
				l.logger.Info("Lease acquired")
				return nil
			}
			var redisErr *redsync.RedisError
			if errors.As(err, &redisErr) {
				return fmt.Errorf("failed to acquire lease: %w", err)
			}
			l.logger.Debug("Lease held by another instance, retrying", slog.Duration("retryDelay", l.options.retryDelay))
			timer.Reset(l.options.retryDelay)
		}
	}
}

// Lost 在續約失敗時被關閉
func (l *Lease) Lost() <-chan struct{} {
	return l.lost
}

func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held && time.Now().Before(l.mutex.Until())
}

// Release 停止續約並釋放租約
func (l *Lease) Release() error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return ErrLeaseNotHeld
	}
	l.held = false
	l.cancel()
	l.mu.Unlock()
	l.wg.Wait()

	if _, err := l.mutex.Unlock(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	l.logger.Info("Lease released")
	return nil
}

func (l *Lease) startRenew() {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	l.held = true
	l.cancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.options.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := l.mutex.ExtendContext(ctx)
				if ctx.Err() != nil {
					return
				}
				if err != nil || !ok {
					l.logger.Error("Lease lost", slog.Any("error", err))
					l.markLost()
					return
				}
			}
		}
	}()
}

func (l *Lease) markLost() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	if l.cancel != nil {
		l.cancel()
	}
	select {
	case <-l.lost:
	default:
		close(l.lost)
	}
}
