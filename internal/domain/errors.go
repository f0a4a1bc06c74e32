package domain

import "errors"

var (
	ErrInvalidTransition        = errors.New("invalid transition")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrMissingRate              = errors.New("missing exchange rate")
	ErrInvalidCurrency          = errors.New("invalid currency")
	ErrInvalidMethod            = errors.New("invalid payment method")
	ErrEmptyBatch               = errors.New("empty payment batch")
	ErrLedgerFinalized          = errors.New("ledger finalized")
	ErrReconciliationInProgress = errors.New("reconciliation in progress")
	ErrRateUnavailable          = errors.New("exchange rate unavailable")
	ErrReasonRequired           = errors.New("reason required")
	ErrInvalidOrder             = errors.New("invalid order")
	ErrOrderNotFound            = errors.New("order not found")
	ErrDeliveryRequestNotFound  = errors.New("delivery request not found")
	// ErrStaleState is returned by stores when a conditional write finds the
	// row in a different status than the caller read.
	ErrStaleState = errors.New("stale state")
)
