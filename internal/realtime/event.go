package realtime

import (
	"time"

	"github.com/google/uuid"

	"washdesk/internal/domain"
)

const (
	EventOrderUpdated           = "order:updated"
	EventDeliveryRequestNew     = "delivery-request:new"
	EventDeliveryRequestUpdated = "delivery-request:updated"
)

// Event carries a full entity plus the identity fields subscribers filter on.
// Events are freshness hints; viewers re-fetch state after a gap.
type Event struct {
	Seq        uint64    `json:"seq"`
	Name       string    `json:"event"`
	EntityID   int64     `json:"id"`
	Token      uuid.UUID `json:"token"`
	Status     string    `json:"status"`
	OwnerID    string    `json:"owner_id"`
	Entity     any       `json:"entity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is what the services need from the notifier.
type Publisher interface {
	Publish(ev Event)
}

func OrderUpdated(o *domain.Order) Event {
	return Event{
		Name:       EventOrderUpdated,
		EntityID:   o.ID,
		Token:      o.Token,
		Status:     string(o.Status),
		OwnerID:    o.ClientID,
		Entity:     o.Clone(),
		OccurredAt: o.UpdatedAt,
	}
}

func DeliveryRequestNew(r *domain.DeliveryRequest) Event {
	ev := deliveryEvent(r)
	ev.Name = EventDeliveryRequestNew
	return ev
}

func DeliveryRequestUpdated(r *domain.DeliveryRequest) Event {
	ev := deliveryEvent(r)
	ev.Name = EventDeliveryRequestUpdated
	return ev
}

func deliveryEvent(r *domain.DeliveryRequest) Event {
	return Event{
		EntityID:   r.ID,
		Token:      r.Token,
		Status:     string(r.Status),
		OwnerID:    r.ClientID,
		Entity:     r.Clone(),
		OccurredAt: r.UpdatedAt,
	}
}

// Filter decides whether a subscriber receives an event.
type Filter func(Event) bool

func All(Event) bool { return true }

// OwnedBy keeps only events for entities belonging to ownerID.
func OwnedBy(ownerID string) Filter {
	return func(ev Event) bool { return ev.OwnerID == ownerID }
}
