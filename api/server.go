package api

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"gavel/adapters/metrics"
	redisAdapter "gavel/adapters/redis"
	"gavel/adapters/sse"
	"gavel/auction"
	"gavel/models"
)

// Server 組裝資料庫、Redis、即時事件與拍賣引擎
// 只有取得租約的實例會在啟動時重建計時器並執行巡檢
// 每個實例都會為自己建立或延長的拍賣排程計時器，重複的結算由條件式更新變成 no-op
type Server struct {
	db          *gorm.DB
	redisClient *redis.Client
	publisher   *redisAdapter.StreamPublisher[auction.LiveEvent]
	subscriber  *redisAdapter.StreamSubscriber[auction.LiveEvent]
	hub         *sse.Hub[auction.LiveEvent]
	lease       *redisAdapter.Lease
	engine      *auction.Engine
	handler     *Handler
	logger      *slog.Logger

	mu         sync.Mutex
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
	started    bool
	closed     bool
}

func NewServer(config ServerConfig, logger *slog.Logger) (*Server, error) {
	const op = "NewServer"
	if logger == nil {
		logger = slog.Default()
	}

	publicKey, err := ParsePublicKey(config.Auth.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load identity public key, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	return newServer(db, redisClient, publicKey, config, logger)
}

// newServer 以已建立的連線組裝事件管線、租約與拍賣引擎
func newServer(db *gorm.DB, redisClient *redis.Client, publicKey ed25519.PublicKey, config ServerConfig, logger *slog.Logger, engineOpts ...auction.EngineOption) (*Server, error) {
	const op = "newServer"
	stream := config.Redis.KeyPrefix + config.Redis.StreamKeys.Events

	publisher, err := redisAdapter.NewStreamPublisher(
		redisClient,
		stream,
		redisAdapter.WithPublisherLogger[auction.LiveEvent](logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event publisher, err=%w", op, err)
	}
	subscriber, err := redisAdapter.NewStreamSubscriber(
		redisClient,
		stream,
		redisAdapter.WithSubscriberLogger[auction.LiveEvent](logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event subscriber, err=%w", op, err)
	}
	hub := sse.NewHub(
		func(event auction.LiveEvent) string { return event.Channel },
		sse.WithHubLogger(logger),
	)
	lease := redisAdapter.NewLease(
		redisClient,
		config.Redis.KeyPrefix+"engine-lease",
		redisAdapter.WithLeaseLogger(logger),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engine, err := auction.NewEngine(db, append([]auction.EngineOption{
		auction.WithLogger(logger),
		auction.WithPublisher(publisher),
		auction.WithMetrics(metrics.New(registry)),
		auction.WithSweepInterval(config.Engine.SweepInterval),
		auction.WithExtension(config.Engine.Extension),
	}, engineOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create auction engine, err=%w", op, err)
	}

	return &Server{
		db:          db,
		redisClient: redisClient,
		publisher:   publisher,
		subscriber:  subscriber,
		hub:         hub,
		lease:       lease,
		engine:      engine,
		handler: NewHandler(engine, hub, NewIdentity(publicKey),
			WithHandlerLogger(logger),
			WithGatherer(registry),
		),
		logger: logger.With(slog.String("caller", "Server")),
	}, nil
}

// Router 建立包含所有路由的 gin.Engine
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))
	s.handler.Register(router)
	return router
}

// Start 啟動事件管線，並在取得租約後啟動拍賣引擎
// 取得租約前會阻塞，ctx 取消或 Close 被呼叫時回傳錯誤
func (s *Server) Start(ctx context.Context) error {
	const op = "Server.Start"
	s.mu.Lock()
	if s.closed || s.started {
		s.mu.Unlock()
		return fmt.Errorf("[%s] Server is closed or already started", op)
	}
	s.started = true
	s.publisher.Start()
	s.subscriber.Start()
	s.hub.Start(s.subscriber.Subscribe())
	s.mu.Unlock()

	// 等待租約時不持有鎖，Close 可以隨時中止啟動
	s.logger.Info("Waiting for engine lease")
	if err := s.lease.Acquire(ctx); err != nil {
		return fmt.Errorf("[%s] Fail to acquire engine lease, err=%w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if err := s.lease.Release(); err != nil {
			s.logger.Warn("Fail to release engine lease", slog.Any("error", err))
		}
		return fmt.Errorf("[%s] Server closed while waiting for engine lease", op)
	}
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("[%s] Fail to start auction engine, err=%w", op, err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-watchCtx.Done():
		case <-s.lease.Lost():
			// 失去租約後其他實例可能已接手，必須立刻停止計時器與巡檢
			s.logger.Error("Engine lease lost, stopping timers and sweeper")
			s.engine.Close()
		}
	}()
	return nil
}

// Lost 在引擎租約遺失時關閉
func (s *Server) Lost() <-chan struct{} {
	return s.lease.Lost()
}

// CloseStreams 結束所有事件串流連線，HTTP 伺服器關閉時呼叫
func (s *Server) CloseStreams() {
	s.hub.Close()
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	s.engine.Close()
	if s.lease.Held() {
		if err := s.lease.Release(); err != nil {
			s.logger.Warn("Fail to release engine lease", slog.Any("error", err))
		}
	}
	s.hub.Close()
	s.subscriber.Close()
	s.publisher.Close()
	if err := s.redisClient.Close(); err != nil {
		s.logger.Warn("Fail to close redis client", slog.Any("error", err))
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	s.logger.Info("Server closed")
}
