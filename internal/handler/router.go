package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"washdesk/internal/service"
)

type Deps struct {
	Orders     service.OrderService
	Payments   service.ReconciliationService
	Deliveries service.DeliveryService
	Rates      RateReader
	Events     EventSource
	// Health reports storage health; nil means nothing to report.
	Health         func(ctx context.Context) map[string]string
	JWTSecret      []byte
	AllowedOrigins []string
	PingInterval   time.Duration
	Logger         *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(d.Logger))
	r.Use(cors.New(corsConfig(d.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "healthy", "service": "washdesk"}
		if d.Health != nil {
			db := d.Health(c.Request.Context())
			status["database"] = db
			if db["status"] != "up" {
				status["status"] = "degraded"
				c.JSON(http.StatusServiceUnavailable, status)
				return
			}
		}
		c.JSON(http.StatusOK, status)
	})

	orders := NewOrderHandler(d.Orders, d.Logger)
	payments := NewPaymentHandler(d.Payments, d.Logger)
	deliveries := NewDeliveryHandler(d.Deliveries, d.Logger)
	rates := NewRateHandler(d.Rates, d.Logger)
	events := NewEventHandler(d.Events, d.PingInterval, d.Logger)

	staff := RequireRole(RoleCashier, RoleSupervisor)

	v1 := r.Group("/api/v1", Authenticate(d.JWTSecret))
	{
		v1.POST("/orders", staff, orders.Create)
		v1.GET("/orders", staff, orders.List)
		v1.GET("/orders/token/:token", orders.GetByToken)
		v1.GET("/orders/:id", staff, orders.Get)
		v1.POST("/orders/:id/transitions", staff, orders.Transition)
		v1.POST("/orders/:id/cancel", staff, orders.Cancel)
		v1.POST("/orders/:id/payments", staff, payments.Submit)
		v1.GET("/orders/:id/ledger", staff, payments.Ledger)

		v1.POST("/delivery-requests", deliveries.Create)
		v1.GET("/delivery-requests/:id", deliveries.Get)
		v1.PATCH("/delivery-requests/:id/status", staff, deliveries.UpdateStatus)

		v1.GET("/rates", rates.Current)
		v1.POST("/rates/refresh", RequireRole(RoleSupervisor), rates.Refresh)

		v1.GET("/events", events.Stream)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// RequestLogger writes one line per request through the service logger.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if v := viewerFrom(c); v.Subject != "" {
			fields = append(fields, zap.String("viewer", v.Subject), zap.String("role", string(v.Role)))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}
