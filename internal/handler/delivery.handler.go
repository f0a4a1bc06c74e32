package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/service"
)

type DeliveryHandler struct {
	deliveries service.DeliveryService
	logger     *zap.Logger
}

func NewDeliveryHandler(deliveries service.DeliveryService, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{deliveries: deliveries, logger: logger}
}

type createDeliveryRequest struct {
	ClientID  string            `json:"client_id"`
	Items     []domain.LineItem `json:"items" binding:"required,min=1"`
	Surcharge decimal.Decimal   `json:"surcharge"`
}

type deliveryStatusRequest struct {
	Status domain.DeliveryStatus `json:"status" binding:"required"`
	Reason string                `json:"reason"`
}

// Create takes requests from both portals. A client always files for
// itself; staff file on behalf of the named client.
func (h *DeliveryHandler) Create(c *gin.Context) {
	var req createDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	in := service.CreateDeliveryRequest{
		ClientID:  req.ClientID,
		Origin:    domain.OriginStaff,
		Items:     req.Items,
		Surcharge: req.Surcharge,
	}
	if v := viewerFrom(c); !v.Role.Staff() {
		in.ClientID = v.Subject
		in.Origin = domain.OriginClient
	}
	created, err := h.deliveries.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *DeliveryHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req, err := h.deliveries.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if v := viewerFrom(c); !v.Role.Staff() && req.ClientID != v.Subject {
		respondError(c, h.logger, domain.ErrDeliveryRequestNotFound)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body deliveryStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	req, order, err := h.deliveries.UpdateStatus(c.Request.Context(), id, body.Status, body.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req, "order": order})
}
