package auction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"gavel/adapters/metrics"
)

// DefaultSweepInterval 巡檢的預設週期
const DefaultSweepInterval = 24 * time.Hour

// Sweeper 週期性地以單一條件式更新關閉所有已到期的拍賣
// 用來補救行程重啟或計時器遺失時錯過的結算
type Sweeper struct {
	store     *Store
	finalizer *Finalizer
	timers    *TimerRegistry
	clock     clock.Clock
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
}

func newSweeper(store *Store, finalizer *Finalizer, timers *TimerRegistry, clk clock.Clock, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:     store,
		finalizer: finalizer,
		timers:    timers,
		clock:     clk,
		interval:  interval,
		metrics:   m,
		logger:    logger.With(slog.String("caller", "Sweeper")),
		closed:    true,
	}
}

// Run 執行一次巡檢並回傳本次關閉的拍賣數量
// 資料庫錯誤只記錄不回傳，下一個週期會再重試
func (s *Sweeper) Run(ctx context.Context) int {
	now := s.clock.Now().UTC()
	ids, err := s.store.CloseExpired(ctx, now)
	if err != nil {
		s.logger.Error("Fail to close expired auctions", slog.Any("error", err))
		return 0
	}
	s.logger.Info("Sweep closed expired auctions", slog.Int("count", len(ids)), slog.Time("now", now))
	s.metrics.AddSweepClosed(len(ids))

	for _, id := range ids {
		s.timers.Cancel(id)
		// 錯誤已在 Finalizer 內記錄，留給孤兒修復處理
		_, _ = s.finalizer.ResolveClosed(ctx, id, TriggerSweep)
	}
	s.repair(ctx)
	return len(ids)
}

// repair 為已關閉但沒有結果的拍賣補寫結果
func (s *Sweeper) repair(ctx context.Context) {
	orphans, err := s.store.ListUnresolved(ctx)
	if err != nil {
		s.logger.Error("Fail to list unresolved auctions", slog.Any("error", err))
		return
	}
	if len(orphans) == 0 {
		return
	}
	s.logger.Warn("Repairing unresolved auctions", slog.Int("count", len(orphans)))
	for _, id := range orphans {
		_, _ = s.finalizer.ResolveClosed(ctx, id, TriggerSweep)
	}
}

// Start 立即執行一次補償巡檢，之後依週期執行
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.closed = false
	s.logger.Info("starting sweeper", slog.Duration("interval", s.interval))

	ticker := s.clock.Ticker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		defer s.logger.Info("sweeper goroutine stopped")

		s.Run(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Run(ctx)
			}
		}
	}()
}

// Close 停止週期巡檢並等待進行中的巡檢結束
func (s *Sweeper) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelFunc()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("sweeper closed")
}

