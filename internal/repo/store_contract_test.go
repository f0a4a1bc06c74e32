package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washdesk/internal/domain"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("client-1", []domain.LineItem{
		{ServiceName: "exterior", UnitPrice: decimal.RequireFromString("12.50"), Commission: decimal.RequireFromString("2"), WorkerID: "w-1"},
		{ServiceName: "interior", UnitPrice: decimal.RequireFromString("7.50"), Commission: decimal.RequireFromString("1.5")},
	}, decimal.Zero, now)
	require.NoError(t, err)
	return o
}

// runStoreContract exercises behaviour every Store implementation shares.
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		o := newOrder(t)
		require.NoError(t, store.CreateOrder(ctx, o))
		require.NotZero(t, o.ID)

		got, err := store.FindOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.Token, got.Token)
		assert.True(t, got.Total.Equal(decimal.RequireFromString("20")))
		require.Len(t, got.Items, 2)
		assert.Equal(t, "exterior", got.Items[0].ServiceName)

		byToken, err := store.FindOrderByToken(ctx, o.Token)
		require.NoError(t, err)
		assert.Equal(t, o.ID, byToken.ID)

		_, err = store.FindOrder(ctx, o.ID+10_000)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		_, err = store.FindOrderByToken(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("conditional status update", func(t *testing.T) {
		o := newOrder(t)
		require.NoError(t, store.CreateOrder(ctx, o))

		require.NoError(t, o.Advance(domain.OrderInProgress, now.Add(time.Minute)))
		require.NoError(t, store.UpdateOrderStatus(ctx, o, domain.OrderReceived))

		err := store.UpdateOrderStatus(ctx, o, domain.OrderReceived)
		assert.ErrorIs(t, err, domain.ErrStaleState)

		got, err := store.FindOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderInProgress, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.True(t, got.StartedAt.Equal(now.Add(time.Minute)))
	})

	t.Run("settlement", func(t *testing.T) {
		o := newOrder(t)
		require.NoError(t, store.CreateOrder(ctx, o))
		o.Status = domain.OrderWaitingPayment
		require.NoError(t, store.UpdateOrderStatus(ctx, o, domain.OrderReceived))

		batch := uuid.New()
		entries := []domain.PaymentEntry{
			{ID: uuid.New(), OrderID: o.ID, BatchKey: batch, Amount: decimal.RequireFromString("10"), Currency: domain.CurrencyCanonical, Method: domain.MethodCash, RecordedAt: now},
			{ID: uuid.New(), OrderID: o.ID, BatchKey: batch, Amount: decimal.RequireFromString("2400"), Currency: domain.CurrencyLocal, Method: domain.MethodTransfer, Rate: decimal.RequireFromString("240"), Reference: "ref-1", RecordedAt: now},
		}
		l := o.Ledger()
		_, err := l.AppendBatch(entries)
		require.NoError(t, err)
		done, err := o.Settle(l, decimal.RequireFromString("0.01"), now)
		require.NoError(t, err)
		require.True(t, done)

		err = store.ApplySettlement(ctx, Settlement{Order: o, From: domain.OrderWaitingPayment, Entries: entries})
		require.NoError(t, err)

		got, err := store.FindOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderCompleted, got.Status)
		require.Len(t, got.Payments, 2)
		assert.True(t, got.Payments[1].Rate.Equal(decimal.RequireFromString("240")))
		assert.True(t, got.Ledger().TotalPaid().Equal(decimal.RequireFromString("20")))
		assert.True(t, got.Ledger().HasBatch(batch))

		err = store.ApplySettlement(ctx, Settlement{Order: o, From: domain.OrderWaitingPayment, Entries: entries})
		assert.ErrorIs(t, err, domain.ErrStaleState)
	})

	t.Run("settlement against a moved ledger", func(t *testing.T) {
		o := newOrder(t)
		require.NoError(t, store.CreateOrder(ctx, o))
		o.Status = domain.OrderWaitingPayment
		require.NoError(t, store.UpdateOrderStatus(ctx, o, domain.OrderReceived))

		half := func() []domain.PaymentEntry {
			return []domain.PaymentEntry{{ID: uuid.New(), OrderID: o.ID, BatchKey: uuid.New(), Amount: decimal.RequireFromString("10"), Currency: domain.CurrencyCanonical, Method: domain.MethodCash, RecordedAt: now}}
		}
		require.NoError(t, store.ApplySettlement(ctx, Settlement{Order: o, From: domain.OrderWaitingPayment, Entries: half()}))

		// A writer that read the empty ledger must not land its batch.
		err := store.ApplySettlement(ctx, Settlement{Order: o, From: domain.OrderWaitingPayment, Entries: half()})
		assert.ErrorIs(t, err, domain.ErrReconciliationInProgress)

		got, err := store.FindOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, got.Payments, 1)

		require.NoError(t, store.ApplySettlement(ctx, Settlement{Order: o, From: domain.OrderWaitingPayment, PriorEntries: 1, Entries: half()}))
		got, err = store.FindOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Len(t, got.Payments, 2)
	})

	t.Run("list by status", func(t *testing.T) {
		o := newOrder(t)
		o.Status = domain.OrderQualityCheck
		require.NoError(t, store.CreateOrder(ctx, o))

		list, err := store.ListOrders(ctx, domain.OrderQualityCheck, 10)
		require.NoError(t, err)
		require.NotEmpty(t, list)
		for _, got := range list {
			assert.Equal(t, domain.OrderQualityCheck, got.Status)
		}
	})

	t.Run("delivery accept creates order", func(t *testing.T) {
		req, err := domain.NewDeliveryRequest("client-2", domain.OriginClient,
			[]domain.LineItem{{ServiceName: "full", UnitPrice: decimal.RequireFromString("18")}},
			decimal.RequireFromString("2"), now)
		require.NoError(t, err)
		require.NoError(t, store.CreateDeliveryRequest(ctx, req))
		require.NotZero(t, req.ID)

		require.NoError(t, req.Move(domain.DeliveryAccepted, "", now))
		o, err := req.ToOrder(now)
		require.NoError(t, err)
		require.NoError(t, store.AcceptDeliveryRequest(ctx, req, domain.DeliveryPending, o))

		got, err := store.FindDeliveryRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryAccepted, got.Status)
		require.NotNil(t, got.OrderID)
		assert.Equal(t, o.ID, *got.OrderID)
		require.Len(t, got.Items, 1)

		order, err := store.FindOrder(ctx, o.ID)
		require.NoError(t, err)
		require.NotNil(t, order.DeliveryRequestID)
		assert.Equal(t, req.ID, *order.DeliveryRequestID)

		err = store.UpdateDeliveryStatus(ctx, req, domain.DeliveryPending)
		assert.ErrorIs(t, err, domain.ErrStaleState)

		_, err = store.FindDeliveryRequest(ctx, req.ID+10_000)
		assert.ErrorIs(t, err, domain.ErrDeliveryRequestNotFound)
	})

	t.Run("delivery cancel is all or nothing", func(t *testing.T) {
		req, err := domain.NewDeliveryRequest("client-3", domain.OriginStaff,
			[]domain.LineItem{{ServiceName: "full", UnitPrice: decimal.RequireFromString("18")}},
			decimal.Zero, now)
		require.NoError(t, err)
		require.NoError(t, store.CreateDeliveryRequest(ctx, req))
		require.NoError(t, req.Move(domain.DeliveryAccepted, "", now))
		o, err := req.ToOrder(now)
		require.NoError(t, err)
		require.NoError(t, store.AcceptDeliveryRequest(ctx, req, domain.DeliveryPending, o))

		orderFrom := o.Status
		require.NoError(t, o.Cancel("client unreachable", now))
		require.NoError(t, req.Move(domain.DeliveryCancelled, "client unreachable", now))

		err = store.CancelDeliveryRequest(ctx, req, domain.DeliveryPending, o, orderFrom)
		assert.ErrorIs(t, err, domain.ErrStaleState)
		got, err := store.FindOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, orderFrom, got.Status, "order stays put when the request write fails")

		require.NoError(t, store.CancelDeliveryRequest(ctx, req, domain.DeliveryAccepted, o, orderFrom))
		got, err = store.FindOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderCancelled, got.Status)
		stored, err := store.FindDeliveryRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryCancelled, stored.Status)
	})
}
