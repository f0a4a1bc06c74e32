package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/service"
)

type PaymentHandler struct {
	payments service.ReconciliationService
	logger   *zap.Logger
}

func NewPaymentHandler(payments service.ReconciliationService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

type paymentEntryRequest struct {
	Amount    decimal.Decimal      `json:"amount"`
	Currency  domain.Currency      `json:"currency"`
	Method    domain.PaymentMethod `json:"method"`
	Reference string               `json:"reference"`
}

type submitPaymentsRequest struct {
	Entries        []paymentEntryRequest `json:"entries"`
	BatchKey       uuid.UUID             `json:"batch_key"`
	ConfirmChange  bool                  `json:"confirm_change"`
	ChangeCurrency domain.Currency       `json:"change_currency"`
	ChangeMethod   domain.PaymentMethod  `json:"change_method"`
}

// Submit records a payment batch. The batch key may come in the body or
// in the Idempotency-Key header.
func (h *PaymentHandler) Submit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req submitPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" && req.BatchKey == uuid.Nil {
		parsed, err := uuid.Parse(key)
		if err != nil {
			abort(c, http.StatusBadRequest, "BAD_REQUEST", "Idempotency-Key must be a uuid")
			return
		}
		req.BatchKey = parsed
	}

	in := service.SubmitRequest{
		Entries:        make([]service.PaymentInput, 0, len(req.Entries)),
		IdempotencyKey: req.BatchKey,
		IssuedBy:       viewerFrom(c).Subject,
		ConfirmChange:  req.ConfirmChange,
		ChangeCurrency: req.ChangeCurrency,
		ChangeMethod:   req.ChangeMethod,
	}
	for _, e := range req.Entries {
		in.Entries = append(in.Entries, service.PaymentInput{
			Amount:    e.Amount,
			Currency:  e.Currency,
			Method:    e.Method,
			Reference: e.Reference,
		})
	}

	res, err := h.payments.Submit(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *PaymentHandler) Ledger(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sum, err := h.payments.Summary(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
