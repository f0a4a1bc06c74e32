package repo

import (
	"context"
	"database/sql"
	"fmt"

	"washdesk/internal/domain"
)

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *paymentRepo) ApplySettlement(ctx context.Context, s Settlement) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The row lock keeps a second service instance from interleaving.
	if err := lockOrder(ctx, tx, s.Order.ID, s.From); err != nil {
		return err
	}
	var stored int
	if err := tx.QueryRowContext(ctx, "SELECT count(*) FROM payments WHERE order_id = $1", s.Order.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count payments: %w", err)
	}
	if stored != s.PriorEntries {
		return ledgerMoved(s.Order.ID, s.PriorEntries, stored)
	}

	for _, p := range s.Entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, batch_key, amount, currency, method, rate, reference, issued_by, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, s.Order.ID, p.BatchKey, p.Amount, p.Currency, p.Method, p.Rate, p.Reference, p.IssuedBy, p.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
	}

	if c := s.Change; c != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO change_records (id, order_id, amount, currency, disbursed_amount, rate, method, issued_by, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, s.Order.ID, c.Amount, c.Currency, c.LocalAmount, c.Rate, c.Method, c.IssuedBy, c.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("insert change record: %w", err)
		}
	}

	if s.Order.Status != s.From {
		if err := updateOrderStatus(ctx, tx, s.Order); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
	}

	return tx.Commit()
}

func findPayments(ctx context.Context, q querier, orderID int64) ([]domain.PaymentEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, batch_key, amount, currency, method, rate, reference, issued_by, recorded_at
		FROM payments WHERE order_id = $1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.PaymentEntry
	for rows.Next() {
		var p domain.PaymentEntry
		err := rows.Scan(
			&p.ID,
			&p.OrderID,
			&p.BatchKey,
			&p.Amount,
			&p.Currency,
			&p.Method,
			&p.Rate,
			&p.Reference,
			&p.IssuedBy,
			&p.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func findChanges(ctx context.Context, q querier, orderID int64) ([]domain.ChangeRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, amount, currency, disbursed_amount, rate, method, issued_by, recorded_at
		FROM change_records WHERE order_id = $1 ORDER BY recorded_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []domain.ChangeRecord
	for rows.Next() {
		var c domain.ChangeRecord
		err := rows.Scan(
			&c.ID,
			&c.OrderID,
			&c.Amount,
			&c.Currency,
			&c.LocalAmount,
			&c.Rate,
			&c.Method,
			&c.IssuedBy,
			&c.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
