package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderReceived       OrderStatus = "RECEIVED"
	OrderInProgress     OrderStatus = "IN_PROGRESS"
	OrderQualityCheck   OrderStatus = "QUALITY_CHECK"
	OrderWaitingPayment OrderStatus = "WAITING_PAYMENT"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderCancelled      OrderStatus = "CANCELLED"
)

// allowedTransitions lists the forward moves for each non-terminal status.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderReceived:       {OrderInProgress, OrderCancelled},
	OrderInProgress:     {OrderQualityCheck, OrderCancelled},
	OrderQualityCheck:   {OrderWaitingPayment, OrderCancelled},
	OrderWaitingPayment: {OrderCompleted, OrderCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderReceived, OrderInProgress, OrderQualityCheck, OrderWaitingPayment, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type LineItem struct {
	ServiceName string          `json:"service_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Commission  decimal.Decimal `json:"commission"`
	WorkerID    string          `json:"worker_id,omitempty"`
}

type Order struct {
	ID                int64           `json:"id"`
	Token             uuid.UUID       `json:"token"`
	ClientID          string          `json:"client_id"`
	VehiclePlate      string          `json:"vehicle_plate,omitempty"`
	VehicleNote       string          `json:"vehicle_note,omitempty"`
	Status            OrderStatus     `json:"status"`
	Items             []LineItem      `json:"items"`
	DeliverySurcharge decimal.Decimal `json:"delivery_surcharge"`
	Total             decimal.Decimal `json:"total"`
	DeliveryRequestID *int64          `json:"delivery_request_id,omitempty"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
	Payments          []PaymentEntry  `json:"payments"`
	Changes           []ChangeRecord  `json:"changes"`
}

// NewOrder builds an order in RECEIVED. The total is fixed here and never
// recomputed afterwards.
func NewOrder(clientID string, items []LineItem, surcharge decimal.Decimal, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrInvalidOrder)
	}
	if surcharge.IsNegative() {
		return nil, fmt.Errorf("%w: negative delivery surcharge", ErrInvalidOrder)
	}
	total := surcharge
	for i, it := range items {
		if strings.TrimSpace(it.ServiceName) == "" {
			return nil, fmt.Errorf("%w: item %d has no service name", ErrInvalidOrder, i)
		}
		if it.UnitPrice.IsNegative() || it.Commission.IsNegative() {
			return nil, fmt.Errorf("%w: item %d has a negative amount", ErrInvalidOrder, i)
		}
		total = total.Add(it.UnitPrice)
	}
	return &Order{
		Token:             uuid.New(),
		ClientID:          clientID,
		Status:            OrderReceived,
		Items:             append([]LineItem(nil), items...),
		DeliverySurcharge: surcharge,
		Total:             total,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// FromDelivery reports whether the order was converted from a delivery request.
func (o *Order) FromDelivery() bool {
	return o.DeliveryRequestID != nil
}

// Advance performs a staff-driven transition. COMPLETED is never reachable
// here: it requires settlement through Settle.
func (o *Order) Advance(to OrderStatus, now time.Time) error {
	if to == OrderCompleted {
		return fmt.Errorf("%w: %s -> %s requires settlement", ErrInvalidTransition, o.Status, to)
	}
	if to == OrderCancelled {
		return o.Cancel("", now)
	}
	if err := o.checkTransition(to); err != nil {
		return err
	}
	o.Status = to
	o.UpdatedAt = now
	if to == OrderInProgress && o.StartedAt == nil {
		o.StartedAt = timePtr(now)
	}
	return nil
}

// Cancel moves a non-terminal order to CANCELLED. Orders converted from an
// accepted delivery request must carry a reason.
func (o *Order) Cancel(reason string, now time.Time) error {
	if err := o.checkTransition(OrderCancelled); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" && o.FromDelivery() {
		return fmt.Errorf("%w: cancelling a delivery order", ErrReasonRequired)
	}
	o.Status = OrderCancelled
	o.CancelReason = reason
	o.UpdatedAt = now
	o.ClosedAt = timePtr(now)
	return nil
}

// Settle completes the order when the ledger leaves no more than tolerance
// outstanding. A short ledger is not an error: it returns false and the
// order stays in WAITING_PAYMENT.
func (o *Order) Settle(l *Ledger, tolerance decimal.Decimal, now time.Time) (bool, error) {
	if o.Status != OrderWaitingPayment {
		return false, fmt.Errorf("%w: cannot settle order in %s", ErrInvalidTransition, o.Status)
	}
	if l.Remaining(o.Total).GreaterThan(tolerance) {
		return false, nil
	}
	o.Status = OrderCompleted
	o.UpdatedAt = now
	o.CompletedAt = timePtr(now)
	o.ClosedAt = timePtr(now)
	l.Finalize()
	return true, nil
}

// Ledger rebuilds the order's payment ledger from its recorded entries.
func (o *Order) Ledger() *Ledger {
	l := &Ledger{}
	for _, e := range o.Payments {
		l.entries = append(l.entries, e)
		l.total = l.total.Add(e.Contribution())
	}
	if o.Status.Terminal() {
		l.Finalize()
	}
	return l
}

// Clone returns a deep copy so stores never share slices with callers.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.Payments = append([]PaymentEntry(nil), o.Payments...)
	c.Changes = append([]ChangeRecord(nil), o.Changes...)
	if o.DeliveryRequestID != nil {
		id := *o.DeliveryRequestID
		c.DeliveryRequestID = &id
	}
	c.StartedAt = copyTime(o.StartedAt)
	c.CompletedAt = copyTime(o.CompletedAt)
	c.ClosedAt = copyTime(o.ClosedAt)
	return &c
}

func (o *Order) checkTransition(to OrderStatus) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
