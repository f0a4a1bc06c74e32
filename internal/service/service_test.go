package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/realtime"
	"washdesk/internal/repo"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeRates struct {
	mu    sync.Mutex
	snaps []domain.RateSnapshot
	err   error
	calls atomic.Int32
}

func ratesAt(averages ...string) *fakeRates {
	f := &fakeRates{}
	for _, a := range averages {
		f.snaps = append(f.snaps, domain.RateSnapshot{
			Base:        domain.CurrencyCanonical,
			Quote:       domain.CurrencyLocal,
			Buy:         dec(a),
			Sell:        dec(a),
			Average:     dec(a),
			Source:      "test",
			LastUpdated: t0,
		})
	}
	return f
}

// Current hands out the configured snapshots in order, repeating the last.
func (f *fakeRates) Current(ctx context.Context) (domain.RateSnapshot, error) {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil || len(f.snaps) == 0 {
		if f.err == nil {
			return domain.RateSnapshot{}, domain.ErrRateUnavailable
		}
		return domain.RateSnapshot{}, f.err
	}
	if n > len(f.snaps) {
		n = len(f.snaps)
	}
	return f.snaps[n-1], nil
}

// gatedStore holds ApplySettlement until released so a batch can be kept
// in flight deterministically.
type gatedStore struct {
	*repo.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: repo.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (g *gatedStore) ApplySettlement(ctx context.Context, s repo.Settlement) error {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryStore.ApplySettlement(ctx, s)
}

type harness struct {
	store      repo.Store
	hub        *realtime.Hub
	rates      *fakeRates
	locks      *KeyedLocks
	orders     OrderService
	recon      ReconciliationService
	deliveries DeliveryService
}

func newHarness(t *testing.T, store repo.Store, rates *fakeRates) *harness {
	t.Helper()
	if store == nil {
		store = repo.NewMemoryStore()
	}
	if rates == nil {
		rates = ratesAt("240")
	}
	logger := zap.NewNop()
	hub := realtime.NewHub(256, logger)
	locks := NewKeyedLocks()
	opts := Options{
		Tolerance: decimal.NewNullDecimal(dec("0.01")),
		LockWait:  50 * time.Millisecond,
		Now:       func() time.Time { return t0 },
	}
	deliveries := NewDeliveryService(store, locks, hub, opts, logger)
	return &harness{
		store:      store,
		hub:        hub,
		rates:      rates,
		locks:      locks,
		orders:     NewOrderService(store, locks, deliveries, hub, opts, logger),
		recon:      NewReconciliationService(store, locks, rates, deliveries, hub, opts, logger),
		deliveries: deliveries,
	}
}

func washItems(price string) []domain.LineItem {
	return []domain.LineItem{{ServiceName: "full wash", UnitPrice: dec(price), Commission: dec("0")}}
}

func (h *harness) intake(t *testing.T, price string) *domain.Order {
	t.Helper()
	o, err := h.orders.Intake(context.Background(), IntakeRequest{
		ClientID:     "client-1",
		VehiclePlate: "ab123cd",
		Items:        washItems(price),
	})
	require.NoError(t, err)
	return o
}

// advance walks an order to WAITING_PAYMENT.
func (h *harness) advance(t *testing.T, id int64) *domain.Order {
	t.Helper()
	var o *domain.Order
	var err error
	for _, s := range []domain.OrderStatus{domain.OrderInProgress, domain.OrderQualityCheck, domain.OrderWaitingPayment} {
		o, err = h.orders.Transition(context.Background(), id, s, "")
		require.NoError(t, err)
	}
	return o
}

func (h *harness) waitingOrder(t *testing.T, price string) *domain.Order {
	t.Helper()
	o := h.intake(t, price)
	return h.advance(t, o.ID)
}

func pay(amount string, cur domain.Currency) PaymentInput {
	return PaymentInput{Amount: dec(amount), Currency: cur, Method: domain.MethodCash}
}

func batch(entries ...PaymentInput) SubmitRequest {
	return SubmitRequest{Entries: entries, IssuedBy: "cashier-1"}
}
