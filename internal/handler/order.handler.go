package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/service"
)

type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

type createOrderRequest struct {
	ClientID          string            `json:"client_id" binding:"required"`
	VehiclePlate      string            `json:"vehicle_plate"`
	VehicleNote       string            `json:"vehicle_note"`
	Items             []domain.LineItem `json:"items" binding:"required,min=1"`
	DeliverySurcharge decimal.Decimal   `json:"delivery_surcharge"`
}

type transitionRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
	Reason string             `json:"reason"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	order, err := h.orders.Intake(c.Request.Context(), service.IntakeRequest{
		ClientID:          req.ClientID,
		VehiclePlate:      req.VehiclePlate,
		VehicleNote:       req.VehicleNote,
		Items:             req.Items,
		DeliverySurcharge: req.DeliverySurcharge,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	orders, err := h.orders.List(c.Request.Context(), domain.OrderStatus(c.Query("status")), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetByToken is the client portal lookup. Clients only see their own orders.
func (h *OrderHandler) GetByToken(c *gin.Context) {
	token, err := uuid.Parse(c.Param("token"))
	if err != nil {
		abort(c, http.StatusBadRequest, "BAD_REQUEST", "invalid token")
		return
	}
	order, err := h.orders.GetByToken(c.Request.Context(), token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if v := viewerFrom(c); !v.Role.Staff() && order.ClientID != v.Subject {
		respondError(c, h.logger, domain.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) Transition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	order, err := h.orders.Transition(c.Request.Context(), id, req.Status, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
	}
	order, err := h.orders.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abort(c, http.StatusBadRequest, "BAD_REQUEST", "invalid id")
		return 0, false
	}
	return id, true
}
