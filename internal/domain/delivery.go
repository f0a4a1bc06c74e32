package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliveryAccepted   DeliveryStatus = "ACCEPTED"
	DeliveryRejected   DeliveryStatus = "REJECTED"
	DeliveryInProgress DeliveryStatus = "IN_PROGRESS"
	DeliveryCompleted  DeliveryStatus = "COMPLETED"
	DeliveryCancelled  DeliveryStatus = "CANCELLED"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:    {DeliveryAccepted, DeliveryRejected, DeliveryCancelled},
	DeliveryAccepted:   {DeliveryInProgress, DeliveryCancelled},
	DeliveryInProgress: {DeliveryCompleted, DeliveryCancelled},
}

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryRejected || s == DeliveryCompleted || s == DeliveryCancelled
}

// RequestOrigin tells who submitted the delivery request.
type RequestOrigin string

const (
	OriginClient RequestOrigin = "CLIENT"
	OriginStaff  RequestOrigin = "STAFF"
)

type DeliveryRequest struct {
	ID        int64           `json:"id"`
	Token     uuid.UUID       `json:"token"`
	ClientID  string          `json:"client_id"`
	Origin    RequestOrigin   `json:"origin"`
	Status    DeliveryStatus  `json:"status"`
	Items     []LineItem      `json:"items"`
	Surcharge decimal.Decimal `json:"surcharge"`
	Reason    string          `json:"reason,omitempty"`
	OrderID   *int64          `json:"order_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewDeliveryRequest(clientID string, origin RequestOrigin, items []LineItem, surcharge decimal.Decimal, now time.Time) (*DeliveryRequest, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidOrder)
	}
	if origin != OriginClient && origin != OriginStaff {
		origin = OriginClient
	}
	// Validate the items the same way intake will once accepted.
	if _, err := NewOrder(clientID, items, surcharge, now); err != nil {
		return nil, err
	}
	return &DeliveryRequest{
		Token:     uuid.New(),
		ClientID:  clientID,
		Origin:    origin,
		Status:    DeliveryPending,
		Items:     append([]LineItem(nil), items...),
		Surcharge: surcharge,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Move applies a status change. Rejecting or cancelling a client-submitted
// request needs a non-empty reason.
func (r *DeliveryRequest) Move(to DeliveryStatus, reason string, now time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: delivery request is %s", ErrInvalidTransition, r.Status)
	}
	allowed := false
	for _, s := range deliveryTransitions[r.Status] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: delivery %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	reason = strings.TrimSpace(reason)
	if (to == DeliveryRejected || to == DeliveryCancelled) && reason == "" && r.Origin == OriginClient {
		return fmt.Errorf("%w: %s a client request", ErrReasonRequired, strings.ToLower(string(to)))
	}
	r.Status = to
	if reason != "" {
		r.Reason = reason
	}
	r.UpdatedAt = now
	return nil
}

// ToOrder converts an accepted request into an order in RECEIVED.
func (r *DeliveryRequest) ToOrder(now time.Time) (*Order, error) {
	if r.Status != DeliveryAccepted {
		return nil, fmt.Errorf("%w: only accepted requests convert to orders", ErrInvalidTransition)
	}
	o, err := NewOrder(r.ClientID, r.Items, r.Surcharge, now)
	if err != nil {
		return nil, err
	}
	id := r.ID
	o.DeliveryRequestID = &id
	return o, nil
}

// DeliveryStatusFor maps an order status onto the request it came from.
// ok is false when the request should not move.
func DeliveryStatusFor(s OrderStatus) (DeliveryStatus, bool) {
	switch s {
	case OrderInProgress:
		return DeliveryInProgress, true
	case OrderCompleted:
		return DeliveryCompleted, true
	case OrderCancelled:
		return DeliveryCancelled, true
	}
	return "", false
}

func (r *DeliveryRequest) Clone() *DeliveryRequest {
	c := *r
	c.Items = append([]LineItem(nil), r.Items...)
	if r.OrderID != nil {
		id := *r.OrderID
		c.OrderID = &id
	}
	return &c
}
