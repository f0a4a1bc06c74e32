package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the append-only set of payment entries for one order. The
// running total is kept unrounded; rounding happens only in Remaining and
// Overpayment.
type Ledger struct {
	entries   []PaymentEntry
	total     decimal.Decimal
	finalized bool
}

func NewLedger(entries ...PaymentEntry) (*Ledger, error) {
	l := &Ledger{}
	for _, e := range entries {
		if _, err := l.Append(e); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append validates and records e, returning the new canonical total.
func (l *Ledger) Append(e PaymentEntry) (decimal.Decimal, error) {
	if l.finalized {
		return l.total, ErrLedgerFinalized
	}
	if err := e.Validate(); err != nil {
		return l.total, err
	}
	l.entries = append(l.entries, e)
	l.total = l.total.Add(e.Contribution())
	return l.total, nil
}

// AppendBatch records every entry or none of them.
func (l *Ledger) AppendBatch(batch []PaymentEntry) (decimal.Decimal, error) {
	if len(batch) == 0 {
		return l.total, ErrEmptyBatch
	}
	staged := l.Clone()
	for i, e := range batch {
		if _, err := staged.Append(e); err != nil {
			return l.total, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	*l = *staged
	return l.total, nil
}

func (l *Ledger) TotalPaid() decimal.Decimal {
	return l.total
}

func (l *Ledger) Remaining(orderTotal decimal.Decimal) decimal.Decimal {
	return RoundMoney(decimal.Max(decimal.Zero, orderTotal.Sub(l.total)))
}

// Overpayment is the change due against orderTotal.
func (l *Ledger) Overpayment(orderTotal decimal.Decimal) decimal.Decimal {
	return RoundMoney(decimal.Max(decimal.Zero, l.total.Sub(orderTotal)))
}

func (l *Ledger) Entries() []PaymentEntry {
	return append([]PaymentEntry(nil), l.entries...)
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// HasBatch reports whether a batch with key was already recorded.
func (l *Ledger) HasBatch(key uuid.UUID) bool {
	if key == uuid.Nil {
		return false
	}
	for _, e := range l.entries {
		if e.BatchKey == key {
			return true
		}
	}
	return false
}

func (l *Ledger) Finalize() {
	l.finalized = true
}

func (l *Ledger) Finalized() bool {
	return l.finalized
}

func (l *Ledger) Clone() *Ledger {
	return &Ledger{
		entries:   append([]PaymentEntry(nil), l.entries...),
		total:     l.total,
		finalized: l.finalized,
	}
}
