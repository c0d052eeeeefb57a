package api

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gavel/adapters/metrics"
	"gavel/adapters/sse"
	"gavel/auction"
	"gavel/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	engine     *auction.Engine
	hub        *sse.Hub[auction.LiveEvent]
	router     *gin.Engine
	privateKey ed25519.PrivateKey
}

// setupDB 建立測試用的 SQLite 資料庫，單一連線讓並發交易依序執行
func setupDB(t *testing.T) (*gorm.DB, *sql.DB) {
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
	return db, sqlDB
}

func setupTest(t *testing.T) (*testEnv, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, sqlDB := setupDB(t)

	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(baseTime)
	registry := prometheus.NewRegistry()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	source := make(chan auction.LiveEvent, 64)
	hub := sse.NewHub(func(event auction.LiveEvent) string { return event.Channel }, sse.WithHubLogger(discard))
	hub.Start(source)

	engine, err := auction.NewEngine(db,
		auction.WithClock(mock),
		auction.WithLogger(discard),
		auction.WithPublisher(channelPublisher(source)),
		auction.WithMetrics(metrics.New(registry)),
	)
	require.NoError(t, err)

	handler := NewHandler(engine, hub, NewIdentity(publicKey),
		WithHandlerLogger(discard),
		WithGatherer(registry),
	)
	router := gin.New()
	handler.Register(router)

	env := &testEnv{
		engine:     engine,
		hub:        hub,
		router:     router,
		privateKey: privateKey,
	}
	return env, func() {
		hub.Close()
		engine.Close()
		sqlDB.Close()
	}
}

// channelPublisher 將事件直接送進 Hub 的來源，取代 Redis Stream
type channelPublisher chan<- auction.LiveEvent

func (p channelPublisher) Publish(event auction.LiveEvent) error {
	select {
	case p <- event:
	default:
	}
	return nil
}

func (env *testEnv) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		Username: "tester",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(env.privateKey)
	require.NoError(t, err)
	return token
}

// do 送出請求，userID 為 nil 時不帶身分
func (env *testEnv) do(t *testing.T, method, path string, userID *uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != nil {
		req.Header.Set("Authorization", "Bearer "+env.token(t, *userID))
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) createAuction(t *testing.T, creatorID uuid.UUID, buyNowPrice *int64) *models.Auction {
	t.Helper()
	created, err := env.engine.CreateAuction(context.Background(), auction.CreateAuctionInput{
		CreatorID:   creatorID,
		Title:       "Leica M6",
		Description: "Film rangefinder",
		StartPrice:  100,
		BuyNowPrice: buyNowPrice,
		EndTime:     baseTime.Add(time.Hour),
	})
	require.NoError(t, err)
	return created
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// openStream 連上事件串流，回傳逐行讀取的 channel
// 回應標頭送出時已完成訂閱，之後發布的事件都會收到
func (env *testEnv) openStream(t *testing.T, server *httptest.Server, path string, userID *uuid.UUID) (<-chan string, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+path, nil)
	require.NoError(t, err)
	if userID != nil {
		req.Header.Set("Authorization", "Bearer "+env.token(t, *userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines, func() {
		cancel()
		resp.Body.Close()
	}
}

// waitEvent 等待指定名稱的事件，回傳其 data 行
func waitEvent(t *testing.T, lines <-chan string, name string) string {
	t.Helper()
	timeout := time.After(2 * time.Second)
	matched := false
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed before event %s", name)
			if value, found := strings.CutPrefix(line, "event:"); found {
				matched = strings.TrimSpace(value) == name
				continue
			}
			if value, found := strings.CutPrefix(line, "data:"); found && matched {
				return strings.TrimSpace(value)
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for event", name)
		}
	}
}
