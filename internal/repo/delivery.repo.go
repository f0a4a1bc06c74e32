package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"washdesk/internal/domain"
)

type deliveryRepo struct {
	db *sql.DB
}

func NewDeliveryRepo(db *sql.DB) DeliveryRepo {
	return &deliveryRepo{db: db}
}

func (r *deliveryRepo) CreateDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest) error {
	items, err := json.Marshal(req.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO delivery_requests (token, client_id, origin, status, items, surcharge, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		req.Token, req.ClientID, req.Origin, req.Status, string(items), req.Surcharge, req.Reason, req.CreatedAt, req.UpdatedAt,
	).Scan(&req.ID)
}

func (r *deliveryRepo) FindDeliveryRequest(ctx context.Context, id int64) (*domain.DeliveryRequest, error) {
	var (
		req     domain.DeliveryRequest
		items   []byte
		orderID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, token, client_id, origin, status, items, surcharge, reason, order_id, created_at, updated_at
		FROM delivery_requests WHERE id = $1`, id,
	).Scan(
		&req.ID,
		&req.Token,
		&req.ClientID,
		&req.Origin,
		&req.Status,
		&items,
		&req.Surcharge,
		&req.Reason,
		&orderID,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDeliveryRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &req.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if orderID.Valid {
		req.OrderID = &orderID.Int64
	}
	return &req, nil
}

func (r *deliveryRepo) UpdateDeliveryStatus(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateDeliveryStatus(ctx, tx, req, from); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *deliveryRepo) AcceptDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertOrder(ctx, tx, order); err != nil {
		return err
	}
	req.OrderID = &order.ID
	if err := updateDeliveryStatus(ctx, tx, req, from); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *deliveryRepo) CancelDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus, order *domain.Order, orderFrom domain.OrderStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockOrder(ctx, tx, order.ID, orderFrom); err != nil {
		return err
	}
	if err := updateOrderStatus(ctx, tx, order); err != nil {
		return err
	}
	if err := updateDeliveryStatus(ctx, tx, req, from); err != nil {
		return err
	}
	return tx.Commit()
}

func updateDeliveryStatus(ctx context.Context, tx *sql.Tx, req *domain.DeliveryRequest, from domain.DeliveryStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE delivery_requests
		SET status = $2, reason = $3, order_id = $4, updated_at = $5
		WHERE id = $1 AND status = $6`,
		req.ID, req.Status, req.Reason, toNullInt(req.OrderID), req.UpdatedAt, from,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: delivery request %d is no longer %s", domain.ErrStaleState, req.ID, from)
	}
	return nil
}
