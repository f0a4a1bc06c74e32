package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Currency string

const (
	// CurrencyCanonical is the stable unit every total is expressed in.
	CurrencyCanonical Currency = "USD"
	// CurrencyLocal floats against the canonical unit and needs a rate.
	CurrencyLocal Currency = "VES"
)

func (c Currency) Valid() bool {
	return c == CurrencyCanonical || c == CurrencyLocal
}

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodCard     PaymentMethod = "CARD"
	MethodTransfer PaymentMethod = "TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer:
		return true
	}
	return false
}

// PaymentEntry is one immutable line of an order's ledger. Rate holds the
// local-per-canonical rate captured when the entry was recorded.
type PaymentEntry struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    int64           `json:"order_id"`
	BatchKey   uuid.UUID       `json:"batch_key"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   Currency        `json:"currency"`
	Method     PaymentMethod   `json:"method"`
	Rate       decimal.Decimal `json:"rate"`
	Reference  string          `json:"reference,omitempty"`
	IssuedBy   string          `json:"issued_by,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Validate checks the entry before it may touch a ledger.
func (e PaymentEntry) Validate() error {
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, e.Amount)
	}
	if !e.Currency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, e.Currency)
	}
	if !e.Method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, e.Method)
	}
	if e.Currency == CurrencyLocal && !e.Rate.IsPositive() {
		return fmt.Errorf("%w: local entry of %s", ErrMissingRate, e.Amount)
	}
	return nil
}

// Contribution is the unrounded canonical value of the entry.
func (e PaymentEntry) Contribution() decimal.Decimal {
	if e.Currency == CurrencyLocal {
		return ToCanonical(e.Amount, e.Rate)
	}
	return e.Amount
}

// ChangeRecord documents change handed back to the client. It is
// informational and never reduces the ledger's paid total.
type ChangeRecord struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     int64           `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	LocalAmount decimal.Decimal `json:"disbursed_amount"`
	Rate        decimal.Decimal `json:"rate"`
	Method      PaymentMethod   `json:"method"`
	IssuedBy    string          `json:"issued_by,omitempty"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// ToCanonical converts a local amount with the given rate, unrounded.
func ToCanonical(local, rate decimal.Decimal) decimal.Decimal {
	return local.Div(rate)
}

// ToLocal converts a canonical amount with the given rate, unrounded.
func ToLocal(canonical, rate decimal.Decimal) decimal.Decimal {
	return canonical.Mul(rate)
}

// RoundMoney applies half-up rounding to two places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
