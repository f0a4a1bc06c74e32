package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"washdesk/internal/domain"
)

type OrderRepo interface {
	// CreateOrder persists a new order and assigns its numeric id.
	CreateOrder(ctx context.Context, order *domain.Order) error
	FindOrder(ctx context.Context, id int64) (*domain.Order, error)
	FindOrderByToken(ctx context.Context, token uuid.UUID) (*domain.Order, error)
	// ListOrders returns the newest orders first; an empty status lists all.
	ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error)
	// UpdateOrderStatus writes status, timestamps and cancel reason only if
	// the stored status still equals from.
	UpdateOrderStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error
}

type PaymentRepo interface {
	// ApplySettlement appends a batch of entries, the optional change record
	// and the order's new status in one unit of work.
	ApplySettlement(ctx context.Context, s Settlement) error
}

type DeliveryRepo interface {
	CreateDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest) error
	FindDeliveryRequest(ctx context.Context, id int64) (*domain.DeliveryRequest, error)
	UpdateDeliveryStatus(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus) error
	// AcceptDeliveryRequest stores the accepted request together with the
	// order it converts into, linking both ids.
	AcceptDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus, order *domain.Order) error
	// CancelDeliveryRequest stores a cancelled request and the cancelled
	// order it had become. Either both land or neither does.
	CancelDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus, order *domain.Order, orderFrom domain.OrderStatus) error
}

type Store interface {
	OrderRepo
	PaymentRepo
	DeliveryRepo
}

// Settlement is one reconciliation batch as it is written to storage.
type Settlement struct {
	Order *domain.Order
	From  domain.OrderStatus
	// PriorEntries is the ledger length the batch was decided against.
	// Storage holding a different count means another writer got in first.
	PriorEntries int
	Entries      []domain.PaymentEntry
	Change       *domain.ChangeRecord
}

func ledgerMoved(id int64, want, got int) error {
	return fmt.Errorf("%w: order %d has %d payment entries, batch was based on %d",
		domain.ErrReconciliationInProgress, id, got, want)
}

// lockNotAvailable is raised by SELECT ... FOR UPDATE NOWAIT.
const lockNotAvailable = "55P03"

func mapLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return domain.ErrReconciliationInProgress
	}
	return err
}
