package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"gavel/auction"
	"gavel/models"
)

const defaultKeepAlive = 30 * time.Second

type handlerOptions struct {
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	keepAlive time.Duration
}

type HandlerOption func(*handlerOptions)

func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(o *handlerOptions) {
		o.logger = logger
	}
}

// WithGatherer 設置 /metrics 讀取的指標來源
func WithGatherer(gatherer prometheus.Gatherer) HandlerOption {
	return func(o *handlerOptions) {
		o.gatherer = gatherer
	}
}

// WithKeepAlive 設置事件串流在沒有事件時送出空註解的間隔
func WithKeepAlive(d time.Duration) HandlerOption {
	return func(o *handlerOptions) {
		o.keepAlive = d
	}
}

// Handler 是拍賣引擎的 HTTP 入口，只負責解析請求與轉換錯誤
type Handler struct {
	auctions  AuctionService
	events    EventStream
	identity  *Identity
	gatherer  prometheus.Gatherer
	keepAlive time.Duration
	logger    *slog.Logger
}

func NewHandler(auctions AuctionService, events EventStream, identity *Identity, opts ...HandlerOption) *Handler {
	options := handlerOptions{
		logger:    slog.Default(),
		gatherer:  prometheus.DefaultGatherer,
		keepAlive: defaultKeepAlive,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Handler{
		auctions:  auctions,
		events:    events,
		identity:  identity,
		gatherer:  options.gatherer,
		keepAlive: options.keepAlive,
		logger:    options.logger.With(slog.String("caller", "Handler")),
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	r.GET("/auctions/events", h.streamGlobal)
	r.GET("/auctions/:auctionID", h.getAuction)
	r.GET("/auctions/:auctionID/events", h.streamAuction)

	authorized := r.Group("", h.identity.Middleware())
	authorized.POST("/auctions", h.createAuction)
	authorized.POST("/auctions/:auctionID/bids", h.placeBid)
	authorized.POST("/auctions/:auctionID/buy-now", h.buyNow)
	authorized.GET("/users/me/events", h.streamUser)
	authorized.GET("/users/me/notifications", h.listNotifications)
	authorized.PATCH("/users/me/notifications/:notificationID/read", h.markNotificationRead)
}

func (h *Handler) createAuction(c *gin.Context) {
	var request createAuctionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	created, err := h.auctions.CreateAuction(c.Request.Context(), request.toInput(userIDFrom(c)))
	if err != nil {
		h.writeError(c, "createAuction", err)
		return
	}
	c.JSON(http.StatusCreated, newAuctionResponse(created))
}

func (h *Handler) getAuction(c *gin.Context) {
	auctionID, ok := pathUUID(c, "auctionID")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	found, err := h.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		h.writeError(c, "getAuction", err)
		return
	}
	result, err := h.auctions.GetResult(ctx, auctionID)
	if err != nil {
		h.writeError(c, "getAuction", err)
		return
	}
	bids, err := h.auctions.ListBids(ctx, auctionID)
	if err != nil {
		h.writeError(c, "getAuction", err)
		return
	}
	c.JSON(http.StatusOK, auctionDetailResponse{
		Auction: newAuctionResponse(found),
		Result:  newResultResponse(result),
		Bids:    lo.Map(bids, func(b models.Bid, _ int) bidResponse { return newBidResponse(b) }),
	})
}

func (h *Handler) placeBid(c *gin.Context) {
	auctionID, ok := pathUUID(c, "auctionID")
	if !ok {
		return
	}
	var request placeBidRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	result, err := h.auctions.PlaceBid(c.Request.Context(), auctionID, userIDFrom(c), request.Amount)
	if err != nil {
		h.writeError(c, "placeBid", err)
		return
	}
	c.JSON(http.StatusCreated, placeBidResponse{
		Bid:      newBidResponse(result.Bid),
		EndTime:  result.EndTime,
		Extended: result.Extended,
	})
}

func (h *Handler) buyNow(c *gin.Context) {
	auctionID, ok := pathUUID(c, "auctionID")
	if !ok {
		return
	}
	outcome, err := h.auctions.BuyItNow(c.Request.Context(), auctionID, userIDFrom(c))
	if err != nil {
		h.writeError(c, "buyNow", err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(outcome.Result))
}

func (h *Handler) listNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.auctions.ListNotifications(c.Request.Context(), userIDFrom(c), unreadOnly)
	if err != nil {
		h.writeError(c, "listNotifications", err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(notifications, func(n models.AuctionNotification, _ int) notificationResponse {
		return newNotificationResponse(n)
	}))
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	notificationID, ok := pathUUID(c, "notificationID")
	if !ok {
		return
	}
	marked, err := h.auctions.MarkNotificationRead(c.Request.Context(), userIDFrom(c), notificationID)
	if err != nil {
		h.writeError(c, "markNotificationRead", err)
		return
	}
	if !marked {
		c.JSON(http.StatusNotFound, errorResponse{Message: "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) streamGlobal(c *gin.Context) {
	h.stream(c, auction.GlobalChannel)
}

func (h *Handler) streamUser(c *gin.Context) {
	h.stream(c, auction.UserChannel(userIDFrom(c)))
}

func (h *Handler) streamAuction(c *gin.Context) {
	auctionID, ok := pathUUID(c, "auctionID")
	if !ok {
		return
	}
	found, err := h.auctions.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		h.writeError(c, "streamAuction", err)
		return
	}
	if !found.IsActive {
		c.JSON(http.StatusGone, errorResponse{Message: "auction has ended"})
		return
	}
	h.stream(c, auction.AuctionChannel(auctionID))
}

// stream 將頻道上的事件以 SSE 推送給瀏覽器，直到連線中斷或事件來源關閉
func (h *Handler) stream(c *gin.Context, channel string) {
	ch, err := h.events.Subscribe(channel)
	if err != nil {
		h.logger.Error("Fail to subscribe to live events", slog.String("channel", channel), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "event stream is unavailable"})
		return
	}
	defer h.events.Unsubscribe(channel, ch)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	// 沒有事件時定期送出空註解，避免瀏覽器與代理伺服器斷開連線
	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(event.Name, event.Data)
			w.Flush()
		case <-keepAlive.C:
			_, _ = w.WriteString(":\n\n")
			w.Flush()
		}
	}
}

func (h *Handler) writeError(c *gin.Context, op string, err error) {
	var conflict *auction.BidConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, errorResponse{Message: err.Error(), CurrentBid: lo.ToPtr(conflict.Highest)})
	case errors.Is(err, auction.ErrAuctionNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, auction.ErrAuctionClosed):
		c.JSON(http.StatusGone, errorResponse{Message: err.Error()})
	case errors.Is(err, auction.ErrAuctionNotStarted), errors.Is(err, auction.ErrSelfBid):
		c.JSON(http.StatusForbidden, errorResponse{Message: err.Error()})
	case auction.IsRejection(err):
		c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
	default:
		h.logger.Error("Fail to handle request", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
