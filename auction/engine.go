package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"gavel/adapters/metrics"
	"gavel/messaging"
	"gavel/models"
)

type engineOptions struct {
	clock         clock.Clock
	logger        *slog.Logger
	publisher     Publisher
	dispatcher    Dispatcher
	messenger     Messenger
	metrics       *metrics.Metrics
	sweepInterval time.Duration
	extension     time.Duration
}

type EngineOption func(*engineOptions)

// WithClock 設置時鐘，測試時可以注入 clock.NewMock()
func WithClock(clk clock.Clock) EngineOption {
	return func(o *engineOptions) {
		o.clock = clk
	}
}

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithPublisher 設置即時事件的發送端，會被 WithDispatcher 覆蓋
func WithPublisher(publisher Publisher) EngineOption {
	return func(o *engineOptions) {
		o.publisher = publisher
	}
}

// WithDispatcher 直接設置事件分派器
func WithDispatcher(dispatcher Dispatcher) EngineOption {
	return func(o *engineOptions) {
		o.dispatcher = dispatcher
	}
}

// WithMessenger 設置站內訊息協作者
func WithMessenger(messenger Messenger) EngineOption {
	return func(o *engineOptions) {
		o.messenger = messenger
	}
}

// WithMetrics 設置指標收集器
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// WithSweepInterval 設置巡檢週期
func WithSweepInterval(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.sweepInterval = d
	}
}

// WithExtension 設置防狙擊延長時間
func WithExtension(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.extension = d
	}
}

// Engine 組合出價、計時器、巡檢與結算，是拍賣核心對外的唯一入口
type Engine struct {
	db         *gorm.DB
	store      *Store
	ledger     *Ledger
	finalizer  *Finalizer
	timers     *TimerRegistry
	sweeper    *Sweeper
	policy     ExtensionPolicy
	dispatcher Dispatcher
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewEngine(db *gorm.DB, opts ...EngineOption) (*Engine, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	options := engineOptions{
		clock:         clock.New(),
		logger:        slog.Default(),
		sweepInterval: DefaultSweepInterval,
		extension:     DefaultExtension,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.dispatcher == nil {
		options.dispatcher = NewEventDispatcher(options.publisher, options.logger)
	}
	if options.messenger == nil {
		options.messenger = messaging.NewStore()
	}
	if options.extension <= 0 {
		return nil, fmt.Errorf("extension must be positive, got %s", options.extension)
	}

	logger := options.logger.With(slog.String("caller", "AuctionEngine"))
	store := NewStore(db)
	ledger := NewLedger(db)
	finalizer := &Finalizer{
		db:         db,
		store:      store,
		ledger:     ledger,
		messenger:  options.messenger,
		dispatcher: options.dispatcher,
		clock:      options.clock,
		metrics:    options.metrics,
		logger:     options.logger.With(slog.String("caller", "Finalizer")),
	}
	timers := NewTimerRegistry(options.clock, func(ctx context.Context, auctionID uuid.UUID) {
		_, _ = finalizer.complete(ctx, auctionID, TriggerTimer)
	}, options.metrics, options.logger)
	finalizer.onClosed = timers.Cancel

	return &Engine{
		db:         db,
		store:      store,
		ledger:     ledger,
		finalizer:  finalizer,
		timers:     timers,
		sweeper:    newSweeper(store, finalizer, timers, options.clock, options.sweepInterval, options.metrics, options.logger),
		policy:     ExtensionPolicy{Extension: options.extension},
		dispatcher: options.dispatcher,
		clock:      options.clock,
		metrics:    options.metrics,
		logger:     logger,
	}, nil
}

// Start 從資料庫重建計時器並啟動巡檢，巡檢會立即補償停機期間錯過的結算
func (e *Engine) Start(ctx context.Context) error {
	const op = "Engine.Start"
	scheduled, err := e.timers.Rebuild(ctx, e.store)
	if err != nil {
		return fmt.Errorf("[%s] Fail to rebuild timers, err=%w", op, err)
	}
	e.logger.Info("Auction engine started", slog.Int("timers", scheduled))
	e.sweeper.Start()
	return nil
}

// Close 停止巡檢並取消所有計時器
func (e *Engine) Close() {
	e.sweeper.Close()
	e.timers.Stop()
	e.logger.Info("Auction engine closed")
}

// CreateAuctionInput 建立拍賣所需的欄位，StartTime 為零值時立即開始
type CreateAuctionInput struct {
	CreatorID   uuid.UUID
	Title       string
	Description string
	StartPrice  int64
	BuyNowPrice *int64
	StartTime   time.Time
	EndTime     time.Time
}

// CreateAuction 建立一場進行中的拍賣並安排結算計時器
func (e *Engine) CreateAuction(ctx context.Context, input CreateAuctionInput) (*models.Auction, error) {
	now := e.clock.Now().UTC()
	startTime := input.StartTime.UTC()
	if input.StartTime.IsZero() {
		startTime = now
	}
	endTime := input.EndTime.UTC()
	if strings.TrimSpace(input.Title) == "" || input.CreatorID == uuid.Nil {
		return nil, fmt.Errorf("%w: title and creator are required", ErrInvalidSchedule)
	}
	if !endTime.After(startTime) || !endTime.After(now) {
		return nil, fmt.Errorf("%w: end time must be after start time and now", ErrInvalidSchedule)
	}
	if input.StartPrice < 0 {
		return nil, fmt.Errorf("%w: start price must not be negative", ErrInvalidPrice)
	}
	if input.BuyNowPrice != nil && (*input.BuyNowPrice <= 0 || *input.BuyNowPrice < input.StartPrice) {
		return nil, fmt.Errorf("%w: buy-now price must be positive and not below the start price", ErrInvalidPrice)
	}

	auction := &models.Auction{
		CreatorID:   input.CreatorID,
		Title:       input.Title,
		Description: input.Description,
		StartPrice:  input.StartPrice,
		BuyNowPrice: input.BuyNowPrice,
		StartTime:   startTime,
		EndTime:     endTime,
		IsActive:    true,
	}
	if err := e.store.Create(ctx, auction); err != nil {
		e.logger.Error("Fail to create auction", slog.Any("error", err))
		return nil, err
	}
	e.timers.Schedule(auction.ID, auction.EndTime)
	e.logger.Info("Auction created", slog.String("auctionID", auction.ID.String()), slog.Time("endTime", auction.EndTime))
	return auction, nil
}

// BuyItNow 以直購價立即結束拍賣
func (e *Engine) BuyItNow(ctx context.Context, auctionID, buyerID uuid.UUID) (Outcome, error) {
	return e.finalizer.BuyItNow(ctx, auctionID, buyerID)
}

// CompleteAuction 手動觸發到期結算，未到期或已結算時為 no-op
func (e *Engine) CompleteAuction(ctx context.Context, auctionID uuid.UUID) (Outcome, error) {
	return e.finalizer.CompleteAuction(ctx, auctionID)
}

// Sweep 立即執行一次巡檢
func (e *Engine) Sweep(ctx context.Context) int {
	return e.sweeper.Run(ctx)
}

func (e *Engine) GetAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	return e.store.Get(ctx, auctionID)
}

func (e *Engine) GetResult(ctx context.Context, auctionID uuid.UUID) (*models.AuctionResult, error) {
	return e.store.GetResult(ctx, auctionID)
}

func (e *Engine) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	return e.ledger.ListBids(ctx, auctionID)
}

func (e *Engine) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.AuctionNotification, error) {
	return e.store.ListNotifications(ctx, userID, unreadOnly)
}

func (e *Engine) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) (bool, error) {
	return e.store.MarkNotificationRead(ctx, userID, notificationID)
}

// Timers 回傳計時器表，供監控與測試使用
func (e *Engine) Timers() *TimerRegistry {
	return e.timers
}
