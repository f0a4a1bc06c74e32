package database

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS orders (
    id BIGSERIAL PRIMARY KEY,
    token UUID NOT NULL UNIQUE,
    client_id TEXT NOT NULL,
    vehicle_plate TEXT NOT NULL DEFAULT '',
    vehicle_note TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    delivery_surcharge NUMERIC NOT NULL DEFAULT 0,
    total NUMERIC NOT NULL,
    delivery_request_id BIGINT,
    cancel_reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    closed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS order_items (
    id BIGSERIAL PRIMARY KEY,
    order_id BIGINT NOT NULL REFERENCES orders(id),
    position INT NOT NULL,
    service_name TEXT NOT NULL,
    unit_price NUMERIC NOT NULL,
    commission NUMERIC NOT NULL DEFAULT 0,
    worker_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS payments (
    seq BIGSERIAL,
    id UUID PRIMARY KEY,
    order_id BIGINT NOT NULL REFERENCES orders(id),
    batch_key UUID NOT NULL,
    amount NUMERIC NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    method TEXT NOT NULL,
    rate NUMERIC NOT NULL DEFAULT 0,
    reference TEXT NOT NULL DEFAULT '',
    issued_by TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS change_records (
    id UUID PRIMARY KEY,
    order_id BIGINT NOT NULL REFERENCES orders(id),
    amount NUMERIC NOT NULL,
    currency TEXT NOT NULL,
    disbursed_amount NUMERIC NOT NULL,
    rate NUMERIC NOT NULL DEFAULT 0,
    method TEXT NOT NULL,
    issued_by TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS delivery_requests (
    id BIGSERIAL PRIMARY KEY,
    token UUID NOT NULL UNIQUE,
    client_id TEXT NOT NULL,
    origin TEXT NOT NULL,
    status TEXT NOT NULL,
    items JSONB NOT NULL,
    surcharge NUMERIC NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT '',
    order_id BIGINT REFERENCES orders(id),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments(order_id);
CREATE INDEX IF NOT EXISTS idx_payments_batch_key ON payments(order_id, batch_key);
CREATE INDEX IF NOT EXISTS idx_change_records_order_id ON change_records(order_id);
`

func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}
