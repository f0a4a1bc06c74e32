package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"washdesk/internal/domain"
)

// Options are the knobs shared by every service.
type Options struct {
	// Tolerance is the residual considered settled, in canonical currency.
	// Unset means 0.01; an explicit zero demands exact payment.
	Tolerance decimal.NullDecimal
	// LockWait bounds how long staff transitions wait for an order that
	// is being reconciled.
	LockWait time.Duration
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if !o.Tolerance.Valid {
		o.Tolerance = decimal.NewNullDecimal(decimal.New(1, -2))
	}
	if o.LockWait <= 0 {
		o.LockWait = 2 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RateSource yields the rate snapshot stamped on local-currency entries.
type RateSource interface {
	Current(ctx context.Context) (domain.RateSnapshot, error)
}

// orderFollower keeps a delivery request in step with the order it became.
type orderFollower interface {
	FollowOrder(ctx context.Context, order *domain.Order)
}

// staleAsConflict reports a storage-level status guard miss as a rejected
// transition; the caller's view of the order is out of date.
func staleAsConflict(err error) error {
	if errors.Is(err, domain.ErrStaleState) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidTransition, err)
	}
	return err
}
