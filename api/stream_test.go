package api

import (
	"crypto/ed25519"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gavel/adapters/sse"
	"gavel/auction"
)

func setupMockRouter(t *testing.T) (*MockAuctionService, *MockEventStream, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	auctions := NewMockAuctionService(ctrl)
	events := NewMockEventStream(ctrl)
	publicKey, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	router := gin.New()
	NewHandler(auctions, events, NewIdentity(publicKey),
		WithHandlerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	).Register(router)
	return auctions, events, router
}

func TestStream_SubscribeFailure(t *testing.T) {
	_, events, router := setupMockRouter(t)
	events.EXPECT().Subscribe(auction.GlobalChannel).Return(nil, sse.ErrHubClosed)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStream_EndsWhenSourceCloses(t *testing.T) {
	_, events, router := setupMockRouter(t)

	source := make(chan auction.LiveEvent, 1)
	source <- auction.LiveEvent{
		Name:    auction.EventAuctionEnded,
		Channel: auction.GlobalChannel,
		Data:    map[string]any{"title": "Leica M6"},
	}
	close(source)
	var ch <-chan auction.LiveEvent = source
	gomock.InOrder(
		events.EXPECT().Subscribe(auction.GlobalChannel).Return(ch, nil),
		events.EXPECT().Unsubscribe(auction.GlobalChannel, ch),
	)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/events", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:auction-ended")
	assert.Contains(t, w.Body.String(), "Leica M6")
}

func TestHandler_InternalError(t *testing.T) {
	auctions, _, router := setupMockRouter(t)
	auctionID := uuid.New()
	auctions.EXPECT().GetAuction(gomock.Any(), auctionID).Return(nil, errors.New("connection refused"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/"+auctionID.String(), nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, w.Body.String())
}
