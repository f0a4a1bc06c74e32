package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"washdesk/internal/domain"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	a := hub.Subscribe(nil)
	b := hub.Subscribe(nil)
	defer a.Close()
	defer b.Close()

	hub.Publish(Event{Name: EventOrderUpdated, EntityID: 1})

	assert.Equal(t, int64(1), recv(t, a).EntityID)
	ev := recv(t, b)
	assert.Equal(t, int64(1), ev.EntityID)
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestHub_OwnerFilter(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	mine := hub.Subscribe(OwnedBy("client-a"))
	defer mine.Close()

	hub.Publish(Event{Name: EventOrderUpdated, EntityID: 1, OwnerID: "client-b"})
	hub.Publish(Event{Name: EventOrderUpdated, EntityID: 2, OwnerID: "client-a"})

	assert.Equal(t, int64(2), recv(t, mine).EntityID)
	select {
	case ev := <-mine.C():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHub_DropsOldestWhenFull(t *testing.T) {
	hub := NewHub(2, zap.NewNop())
	slow := hub.Subscribe(nil)
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 5; i++ {
			hub.Publish(Event{EntityID: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Equal(t, int64(4), recv(t, slow).EntityID)
	assert.Equal(t, int64(5), recv(t, slow).EntityID)
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	sub := hub.Subscribe(nil)
	require.Equal(t, 1, hub.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers())
	_, ok := <-sub.C()
	assert.False(t, ok)

	hub.Publish(Event{EntityID: 1})
}

func TestHub_ConcurrentPublishAndClose(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				hub.Publish(Event{EntityID: int64(j)})
			}
		}()
		go func() {
			defer wg.Done()
			sub := hub.Subscribe(nil)
			time.Sleep(time.Millisecond)
			sub.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), hub.Seq())
}

func TestOrderUpdated_CarriesIdentity(t *testing.T) {
	o, err := domain.NewOrder("client-7", []domain.LineItem{{ServiceName: "wax", UnitPrice: decimal.NewFromInt(9)}}, decimal.Zero, time.Now())
	require.NoError(t, err)
	o.ID = 12

	ev := OrderUpdated(o)
	assert.Equal(t, EventOrderUpdated, ev.Name)
	assert.Equal(t, int64(12), ev.EntityID)
	assert.Equal(t, o.Token, ev.Token)
	assert.Equal(t, "RECEIVED", ev.Status)
	assert.Equal(t, "client-7", ev.OwnerID)

	snapshot := ev.Entity.(*domain.Order)
	o.Status = domain.OrderCancelled
	assert.Equal(t, domain.OrderReceived, snapshot.Status)
}

func TestDeliveryEvents(t *testing.T) {
	r := &domain.DeliveryRequest{ID: 3, Token: uuid.New(), ClientID: "c", Status: domain.DeliveryPending}
	assert.Equal(t, EventDeliveryRequestNew, DeliveryRequestNew(r).Name)
	assert.Equal(t, EventDeliveryRequestUpdated, DeliveryRequestUpdated(r).Name)
	assert.Equal(t, "PENDING", DeliveryRequestUpdated(r).Status)
}
