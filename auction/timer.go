package auction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"gavel/adapters/metrics"
)

type timerEntry struct {
	timer  *clock.Timer
	fireAt time.Time
}

// TimerRegistry 為每場拍賣維護一個可取消的結算計時器
// 計時器只存在於行程內，重新啟動時透過 Rebuild 從資料庫重建
type TimerRegistry struct {
	clock   clock.Clock
	fire    func(ctx context.Context, auctionID uuid.UUID)
	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[uuid.UUID]*timerEntry
	stopped bool
}

// NewTimerRegistry 建立計時器表，fire 會在計時器到期時被呼叫
func NewTimerRegistry(clk clock.Clock, fire func(ctx context.Context, auctionID uuid.UUID), m *metrics.Metrics, logger *slog.Logger) *TimerRegistry {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerRegistry{
		clock:   clk,
		fire:    fire,
		metrics: m,
		logger:  logger.With(slog.String("caller", "TimerRegistry")),
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[uuid.UUID]*timerEntry),
	}
}

// Schedule 安排拍賣在 endTime 結算，已到期的拍賣不會安排，交給巡檢處理
// 同一場拍賣只會有一個計時器，重複安排會取消舊的計時器
func (r *TimerRegistry) Schedule(auctionID uuid.UUID, endTime time.Time) bool {
	delay := endTime.Sub(r.clock.Now())
	if delay <= 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	if existing, ok := r.timers[auctionID]; ok {
		existing.timer.Stop()
		delete(r.timers, auctionID)
	}
	entry := &timerEntry{fireAt: endTime}
	entry.timer = r.clock.AfterFunc(delay, func() {
		r.onFire(auctionID, entry)
	})
	r.timers[auctionID] = entry
	r.metrics.SetTimers(len(r.timers))
	r.logger.Debug("Timer scheduled", slog.String("auctionID", auctionID.String()), slog.Time("fireAt", endTime), slog.Duration("delay", delay))
	return true
}

// Cancel 取消拍賣的計時器，不存在時不做任何事
func (r *TimerRegistry) Cancel(auctionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.timers[auctionID]; ok {
		existing.timer.Stop()
		delete(r.timers, auctionID)
		r.metrics.SetTimers(len(r.timers))
	}
}

// FireAt 回傳拍賣計時器的預定觸發時間
func (r *TimerRegistry) FireAt(auctionID uuid.UUID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.timers[auctionID]
	if !ok {
		return time.Time{}, false
	}
	return entry.fireAt, true
}

func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Rebuild 從資料庫讀取所有進行中的拍賣並安排計時器，回傳安排的數量
func (r *TimerRegistry) Rebuild(ctx context.Context, store *Store) (int, error) {
	auctions, err := store.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, auction := range auctions {
		if r.Schedule(auction.ID, auction.EndTime) {
			scheduled++
		}
	}
	r.logger.Info("Timers rebuilt", slog.Int("open", len(auctions)), slog.Int("scheduled", scheduled))
	return scheduled, nil
}

// Stop 取消所有計時器，之後的 Schedule 都會被忽略
func (r *TimerRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	r.cancel()
	for id, entry := range r.timers {
		entry.timer.Stop()
		delete(r.timers, id)
	}
	r.metrics.SetTimers(0)
}

func (r *TimerRegistry) onFire(auctionID uuid.UUID, entry *timerEntry) {
	// 先移除紀錄再結算；若紀錄已被新的計時器取代，代表這次觸發已過時
	r.mu.Lock()
	current, ok := r.timers[auctionID]
	if !ok || current != entry || r.stopped {
		r.mu.Unlock()
		return
	}
	delete(r.timers, auctionID)
	r.metrics.SetTimers(len(r.timers))
	r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Timer callback panicked", slog.String("auctionID", auctionID.String()), slog.Any("panic", p))
		}
	}()
	r.fire(r.ctx, auctionID)
}
