package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/realtime"
	"washdesk/internal/repo"
	"washdesk/internal/service"
)

var testSecret = []byte("test-secret")

type fakeRates struct {
	snap        *domain.RateSnapshot
	stale       bool
	invalidated atomic.Bool
}

func (f *fakeRates) Current(ctx context.Context) (domain.RateSnapshot, error) {
	if f.snap == nil {
		return domain.RateSnapshot{}, domain.ErrRateUnavailable
	}
	return *f.snap, nil
}

func (f *fakeRates) Stale(domain.RateSnapshot) bool { return f.stale }

func (f *fakeRates) Invalidate() { f.invalidated.Store(true) }

func rateAt(avg string) *domain.RateSnapshot {
	return &domain.RateSnapshot{
		Base:        domain.CurrencyCanonical,
		Quote:       domain.CurrencyLocal,
		Buy:         decimal.RequireFromString(avg),
		Sell:        decimal.RequireFromString(avg),
		Average:     decimal.RequireFromString(avg),
		Source:      "test",
		LastUpdated: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

type testEnv struct {
	router     *gin.Engine
	hub        *realtime.Hub
	locks      *service.KeyedLocks
	rates      *fakeRates
	orders     service.OrderService
	deliveries service.DeliveryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := repo.NewMemoryStore()
	hub := realtime.NewHub(64, logger)
	locks := service.NewKeyedLocks()
	rates := &fakeRates{snap: rateAt("240")}
	opts := service.Options{LockWait: 30 * time.Millisecond}

	deliveries := service.NewDeliveryService(store, locks, hub, opts, logger)
	orders := service.NewOrderService(store, locks, deliveries, hub, opts, logger)
	payments := service.NewReconciliationService(store, locks, rates, deliveries, hub, opts, logger)

	router := NewRouter(Deps{
		Orders:       orders,
		Payments:     payments,
		Deliveries:   deliveries,
		Rates:        rates,
		Events:       hub,
		JWTSecret:    testSecret,
		PingInterval: time.Hour,
		Logger:       logger,
	})
	return &testEnv{
		router:     router,
		hub:        hub,
		locks:      locks,
		rates:      rates,
		orders:     orders,
		deliveries: deliveries,
	}
}

func token(t *testing.T, role Role, subject string) string {
	t.Helper()
	tok, err := SignToken(testSecret, Viewer{Subject: subject, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func orderBody(clientID, price string) gin.H {
	return gin.H{
		"client_id":     clientID,
		"vehicle_plate": "ab123cd",
		"items": []gin.H{
			{"service_name": "full wash", "unit_price": price, "commission": "1.00"},
		},
	}
}

// waitingOrder creates an order over HTTP and walks it to WAITING_PAYMENT.
func (e *testEnv) waitingOrder(t *testing.T, clientID, price string) domain.Order {
	t.Helper()
	cashier := token(t, RoleCashier, "cashier-1")
	rec := e.do(t, http.MethodPost, "/api/v1/orders", cashier, orderBody(clientID, price))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[domain.Order](t, rec)
	for _, s := range []domain.OrderStatus{domain.OrderInProgress, domain.OrderQualityCheck, domain.OrderWaitingPayment} {
		rec = e.do(t, http.MethodPost, pathf("/api/v1/orders/%d/transitions", o.ID), cashier, gin.H{"status": s})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return decode[domain.Order](t, rec)
}
