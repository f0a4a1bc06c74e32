package repo

import "database/sql"

type postgresStore struct {
	OrderRepo
	PaymentRepo
	DeliveryRepo
}

// NewPostgresStore wires the three PostgreSQL repositories over one pool.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{
		OrderRepo:    NewOrderRepo(db),
		PaymentRepo:  NewPaymentRepo(db),
		DeliveryRepo: NewDeliveryRepo(db),
	}
}
