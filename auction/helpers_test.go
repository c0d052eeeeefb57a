package auction

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gavel/adapters/metrics"
	"gavel/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// setupDB 建立測試用的 SQLite 資料庫，單一連線讓並發交易依序執行
func setupDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gavel.db")), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db, func() {
		sqlDB.Close()
	}
}

type testEnv struct {
	db        *gorm.DB
	clock     *clock.Mock
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	logs      *lockedBuffer
	engine    *Engine
}

func setupTest(t *testing.T, opts ...EngineOption) (*testEnv, func()) {
	t.Helper()
	db, closeDB := setupDB(t)
	mock := clock.NewMock()
	mock.Set(baseTime)

	env := &testEnv{
		db:        db,
		clock:     mock,
		publisher: &recordingPublisher{},
		metrics:   metrics.New(prometheus.NewRegistry()),
		logs:      &lockedBuffer{},
	}
	logger := slog.New(slog.NewJSONHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defaults := []EngineOption{
		WithClock(mock),
		WithLogger(logger),
		WithPublisher(env.publisher),
		WithMetrics(env.metrics),
	}
	engine, err := NewEngine(db, append(defaults, opts...)...)
	require.NoError(t, err)
	env.engine = engine

	return env, func() {
		engine.Close()
		closeDB()
	}
}

// seedAuction 直接寫入拍賣，不經過建立流程的驗證，可以建立已到期的拍賣
func (env *testEnv) seedAuction(t *testing.T, mutate func(a *models.Auction)) *models.Auction {
	t.Helper()
	auction := &models.Auction{
		CreatorID:   uuid.New(),
		Title:       "Leica M6",
		Description: "Film rangefinder",
		StartPrice:  100,
		StartTime:   baseTime.Add(-time.Hour),
		EndTime:     baseTime.Add(time.Hour),
		IsActive:    true,
	}
	if mutate != nil {
		mutate(auction)
	}
	require.NoError(t, env.db.Create(auction).Error)
	return auction
}

func (env *testEnv) seedBid(t *testing.T, auctionID, userID uuid.UUID, amount int64, at time.Time) *models.Bid {
	t.Helper()
	bid, err := NewLedger(env.db).Record(context.Background(), auctionID, userID, amount, at)
	require.NoError(t, err)
	return bid
}

func (env *testEnv) reload(t *testing.T, auctionID uuid.UUID) *models.Auction {
	t.Helper()
	auction, err := env.engine.GetAuction(context.Background(), auctionID)
	require.NoError(t, err)
	return auction
}

func (env *testEnv) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []LiveEvent
	err    error
}

func (p *recordingPublisher) Publish(event LiveEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

// find 回傳指定名稱與頻道的事件
func (p *recordingPublisher) find(name, channel string) []LiveEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var found []LiveEvent
	for _, event := range p.events {
		if event.Name == name && event.Channel == channel {
			found = append(found, event)
		}
	}
	return found
}

type failingMessenger struct{}

func (failingMessenger) ConversationIDForUser(context.Context, *gorm.DB, uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, errors.New("messaging store unavailable")
}

func (failingMessenger) InsertSystemMessage(context.Context, *gorm.DB, uuid.UUID, string, *uuid.UUID) (*models.Message, error) {
	return nil, errors.New("messaging store unavailable")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
