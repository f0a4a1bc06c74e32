package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"washdesk/internal/domain"
)

type RateReader interface {
	Current(ctx context.Context) (domain.RateSnapshot, error)
	Stale(snap domain.RateSnapshot) bool
	Invalidate()
}

type RateHandler struct {
	rates  RateReader
	logger *zap.Logger
}

func NewRateHandler(rates RateReader, logger *zap.Logger) *RateHandler {
	return &RateHandler{rates: rates, logger: logger}
}

type rateResponse struct {
	domain.RateSnapshot
	Pair  string `json:"pair"`
	Stale bool   `json:"stale"`
}

func (h *RateHandler) Current(c *gin.Context) {
	snap, err := h.rates.Current(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rateResponse{RateSnapshot: snap, Pair: snap.Pair(), Stale: h.rates.Stale(snap)})
}

// Refresh invalidates the snapshot; the old one is served until the
// background fetch replaces it.
func (h *RateHandler) Refresh(c *gin.Context) {
	h.rates.Invalidate()
	h.logger.Info("rate invalidated", zap.String("by", viewerFrom(c).Subject))
	c.JSON(http.StatusAccepted, gin.H{"status": "refreshing"})
}
