package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/bridgebot/internal/bridge"
)

// BridgeLister lists registered bridges.
type BridgeLister interface {
	List(ctx context.Context) ([]bridge.Bridge, error)
	Webhook(bridgeID int64, side bridge.Side) (bridge.Webhook, bool)
}

// BridgeView is the public form of a bridge; webhook credentials are never exposed.
type BridgeView struct {
	ID           int64     `json:"id"`
	ChannelA     string    `json:"channel_a_id"`
	ChannelB     string    `json:"channel_b_id"`
	DisplayNameA string    `json:"display_name_a"`
	DisplayNameB string    `json:"display_name_b"`
	HasWebhookA  bool      `json:"has_webhook_a"`
	HasWebhookB  bool      `json:"has_webhook_b"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListBridgesResponse is the body of GET /bridges.
type ListBridgesResponse struct {
	Items []BridgeView `json:"items"`
}

// BridgesHandler serves the read-only bridge listing.
type BridgesHandler struct {
	bridges BridgeLister
	logger  *slog.Logger
}

// NewBridgesHandler creates a bridges handler.
func NewBridgesHandler(log *slog.Logger, bridges BridgeLister) *BridgesHandler {
	return &BridgesHandler{
		bridges: bridges,
		logger:  log.With(slog.String("handler", "bridges")),
	}
}

// Register mounts GET /bridges and GET /bridges/:id.
func (h *BridgesHandler) Register(e *echo.Echo) {
	e.GET("/bridges", h.List)
	e.GET("/bridges/:id", h.Get)
}

// List returns every bridge in registration order.
func (h *BridgesHandler) List(c echo.Context) error {
	items, err := h.bridges.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list bridges failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list bridges failed")
	}
	views := make([]BridgeView, 0, len(items))
	for _, b := range items {
		views = append(views, h.view(b))
	}
	return c.JSON(http.StatusOK, ListBridgesResponse{Items: views})
}

// Get returns one bridge by id.
func (h *BridgesHandler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid bridge id"})
	}
	items, err := h.bridges.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list bridges failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list bridges failed")
	}
	for _, b := range items {
		if b.ID == id {
			return c.JSON(http.StatusOK, h.view(b))
		}
	}
	return c.JSON(http.StatusNotFound, ErrorResponse{Message: bridge.ErrNotFound.Error()})
}

func (h *BridgesHandler) view(b bridge.Bridge) BridgeView {
	_, hasA := h.bridges.Webhook(b.ID, bridge.SideA)
	_, hasB := h.bridges.Webhook(b.ID, bridge.SideB)
	return BridgeView{
		ID:           b.ID,
		ChannelA:     b.ChannelA,
		ChannelB:     b.ChannelB,
		DisplayNameA: b.DisplayNameA,
		DisplayNameB: b.DisplayNameB,
		HasWebhookA:  hasA,
		HasWebhookB:  hasB,
		CreatedAt:    b.CreatedAt,
	}
}
