package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"washdesk/internal/domain"
)

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, token, client_id, vehicle_plate, vehicle_note, status, delivery_surcharge, total,
	delivery_request_id, cancel_reason, created_at, updated_at, started_at, completed_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o          domain.Order
		deliveryID sql.NullInt64
		started    sql.NullTime
		completed  sql.NullTime
		closed     sql.NullTime
	)
	err := row.Scan(
		&o.ID,
		&o.Token,
		&o.ClientID,
		&o.VehiclePlate,
		&o.VehicleNote,
		&o.Status,
		&o.DeliverySurcharge,
		&o.Total,
		&deliveryID,
		&o.CancelReason,
		&o.CreatedAt,
		&o.UpdatedAt,
		&started,
		&completed,
		&closed,
	)
	if err != nil {
		return nil, err
	}
	if deliveryID.Valid {
		o.DeliveryRequestID = &deliveryID.Int64
	}
	o.StartedAt = fromNullTime(started)
	o.CompletedAt = fromNullTime(completed)
	o.ClosedAt = fromNullTime(closed)
	return &o, nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertOrder(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO orders (token, client_id, vehicle_plate, vehicle_note, status, delivery_surcharge, total,
			delivery_request_id, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		order.Token, order.ClientID, order.VehiclePlate, order.VehicleNote, order.Status,
		order.DeliverySurcharge, order.Total, toNullInt(order.DeliveryRequestID), order.CancelReason,
		order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, service_name, unit_price, commission, worker_id)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, i, it.ServiceName, it.UnitPrice, it.Commission, it.WorkerID,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepo) FindOrder(ctx context.Context, id int64) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	return r.load(ctx, row)
}

func (r *orderRepo) FindOrderByToken(ctx context.Context, token uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE token = $1", token)
	return r.load(ctx, row)
}

func (r *orderRepo) load(ctx context.Context, row *sql.Row) (*domain.Order, error) {
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) loadChildren(ctx context.Context, order *domain.Order) error {
	items, err := r.db.QueryContext(ctx, `
		SELECT service_name, unit_price, commission, worker_id
		FROM order_items WHERE order_id = $1 ORDER BY position`, order.ID)
	if err != nil {
		return err
	}
	defer items.Close()
	for items.Next() {
		var it domain.LineItem
		if err := items.Scan(&it.ServiceName, &it.UnitPrice, &it.Commission, &it.WorkerID); err != nil {
			return err
		}
		order.Items = append(order.Items, it)
	}
	if err := items.Err(); err != nil {
		return err
	}

	payments, err := findPayments(ctx, r.db, order.ID)
	if err != nil {
		return err
	}
	order.Payments = payments

	changes, err := findChanges(ctx, r.db, order.ID)
	if err != nil {
		return err
	}
	order.Changes = changes
	return nil
}

func (r *orderRepo) ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if err := r.loadChildren(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepo) UpdateOrderStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockOrder(ctx, tx, order.ID, from); err != nil {
		return err
	}
	if err := updateOrderStatus(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

// lockOrder takes the row lock without waiting and checks the status the
// caller based its decision on.
func lockOrder(ctx context.Context, tx *sql.Tx, id int64, from domain.OrderStatus) error {
	var current domain.OrderStatus
	err := tx.QueryRowContext(ctx, "SELECT status FROM orders WHERE id = $1 FOR UPDATE NOWAIT", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return mapLockError(err)
	}
	if current != from {
		return fmt.Errorf("%w: order %d is %s, expected %s", domain.ErrStaleState, id, current, from)
	}
	return nil
}

func updateOrderStatus(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    cancel_reason = $3,
		    updated_at = $4,
		    started_at = $5,
		    completed_at = $6,
		    closed_at = $7
		WHERE id = $1`,
		order.ID, order.Status, order.CancelReason, order.UpdatedAt,
		toNullTime(order.StartedAt), toNullTime(order.CompletedAt), toNullTime(order.ClosedAt),
	)
	return err
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func toNullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
