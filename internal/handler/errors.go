package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"washdesk/internal/domain"
)

// errorStatuses is checked in order; the first match wins.
var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrOrderNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrDeliveryRequestNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrReconciliationInProgress, http.StatusConflict, "RECONCILIATION_IN_PROGRESS"},
	{domain.ErrLedgerFinalized, http.StatusConflict, "LEDGER_FINALIZED"},
	{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{domain.ErrInvalidAmount, http.StatusUnprocessableEntity, "INVALID_AMOUNT"},
	{domain.ErrMissingRate, http.StatusUnprocessableEntity, "MISSING_RATE"},
	{domain.ErrInvalidCurrency, http.StatusUnprocessableEntity, "INVALID_CURRENCY"},
	{domain.ErrInvalidMethod, http.StatusUnprocessableEntity, "INVALID_METHOD"},
	{domain.ErrEmptyBatch, http.StatusUnprocessableEntity, "EMPTY_BATCH"},
	{domain.ErrInvalidOrder, http.StatusUnprocessableEntity, "INVALID_ORDER"},
	{domain.ErrReasonRequired, http.StatusUnprocessableEntity, "REASON_REQUIRED"},
	{domain.ErrRateUnavailable, http.StatusServiceUnavailable, "RATE_UNAVAILABLE"},
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			if e.err == domain.ErrReconciliationInProgress {
				c.Header("Retry-After", "1")
			}
			abort(c, e.status, e.code, err.Error())
			return
		}
	}
	logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	abort(c, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": message})
}
