package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/realtime"
	"washdesk/internal/repo"
)

type PaymentInput struct {
	Amount    decimal.Decimal
	Currency  domain.Currency
	Method    domain.PaymentMethod
	Reference string
}

type SubmitRequest struct {
	Entries []PaymentInput
	// IdempotencyKey identifies the batch; a key already in the ledger is
	// answered without applying anything. Zero means a fresh batch.
	IdempotencyKey uuid.UUID
	IssuedBy       string
	ConfirmChange  bool
	ChangeCurrency domain.Currency
	ChangeMethod   domain.PaymentMethod
}

type Outcome string

const (
	OutcomeSettled             Outcome = "SETTLED"
	OutcomeInsufficientPayment Outcome = "INSUFFICIENT_PAYMENT"
)

type LedgerSummary struct {
	OrderID     int64                 `json:"order_id"`
	Status      domain.OrderStatus    `json:"status"`
	Total       decimal.Decimal       `json:"total"`
	TotalPaid   decimal.Decimal       `json:"total_paid"`
	Remaining   decimal.Decimal       `json:"remaining"`
	Overpayment decimal.Decimal       `json:"overpayment"`
	Finalized   bool                  `json:"finalized"`
	Entries     []domain.PaymentEntry `json:"entries"`
	Changes     []domain.ChangeRecord `json:"changes"`
}

type SettlementResult struct {
	Order    *domain.Order        `json:"order"`
	Summary  LedgerSummary        `json:"ledger"`
	Outcome  Outcome              `json:"outcome"`
	Change   *domain.ChangeRecord `json:"change,omitempty"`
	Rate     *domain.RateSnapshot `json:"rate,omitempty"`
	BatchKey uuid.UUID            `json:"batch_key"`
	Replayed bool                 `json:"replayed"`
}

type ReconciliationService interface {
	// Submit applies a payment batch to an order in WAITING_PAYMENT and
	// completes it once the remaining balance is within tolerance.
	Submit(ctx context.Context, orderID int64, req SubmitRequest) (*SettlementResult, error)
	Summary(ctx context.Context, orderID int64) (*LedgerSummary, error)
}

type reconciliationService struct {
	store    repo.Store
	locks    *KeyedLocks
	rates    RateSource
	follower orderFollower
	events   realtime.Publisher
	opts     Options
	logger   *zap.Logger
}

func NewReconciliationService(
	store repo.Store,
	locks *KeyedLocks,
	rates RateSource,
	follower orderFollower,
	events realtime.Publisher,
	opts Options,
	logger *zap.Logger,
) ReconciliationService {
	return &reconciliationService{
		store:    store,
		locks:    locks,
		rates:    rates,
		follower: follower,
		events:   events,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

func (s *reconciliationService) Submit(ctx context.Context, orderID int64, req SubmitRequest) (*SettlementResult, error) {
	if err := validateBatch(req); err != nil {
		return nil, err
	}
	log := s.logger.With(zap.Int64("order_id", orderID))

	unlock, err := s.locks.TryLock(orderID)
	if err != nil {
		log.Info("payment batch rejected", zap.Error(err))
		return nil, err
	}
	defer unlock()

	order, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ledger := order.Ledger()

	if req.IdempotencyKey != uuid.Nil && ledger.HasBatch(req.IdempotencyKey) {
		log.Info("payment batch replayed", zap.String("batch_key", req.IdempotencyKey.String()))
		return &SettlementResult{
			Order:    order,
			Summary:  summarize(order, ledger),
			Outcome:  outcomeOf(order),
			BatchKey: req.IdempotencyKey,
			Replayed: true,
		}, nil
	}

	switch order.Status {
	case domain.OrderWaitingPayment:
	case domain.OrderCompleted:
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidTransition, domain.ErrLedgerFinalized)
	default:
		return nil, fmt.Errorf("%w: order is %s, payments need %s",
			domain.ErrInvalidTransition, order.Status, domain.OrderWaitingPayment)
	}

	// One snapshot per batch, read only when a local amount needs it.
	var snap *domain.RateSnapshot
	rate := func() (*domain.RateSnapshot, error) {
		if snap != nil {
			return snap, nil
		}
		cur, err := s.rates.Current(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrRateUnavailable) {
				err = fmt.Errorf("%w: %v", domain.ErrRateUnavailable, err)
			}
			return nil, err
		}
		snap = &cur
		return snap, nil
	}

	batchKey := req.IdempotencyKey
	if batchKey == uuid.Nil {
		batchKey = uuid.New()
	}
	now := s.opts.Now()
	issuedBy := strings.TrimSpace(req.IssuedBy)
	entries := make([]domain.PaymentEntry, 0, len(req.Entries))
	for _, in := range req.Entries {
		e := domain.PaymentEntry{
			ID:         uuid.New(),
			OrderID:    order.ID,
			BatchKey:   batchKey,
			Amount:     in.Amount,
			Currency:   in.Currency,
			Method:     in.Method,
			Reference:  strings.TrimSpace(in.Reference),
			IssuedBy:   issuedBy,
			RecordedAt: now,
		}
		if in.Currency == domain.CurrencyLocal {
			r, err := rate()
			if err != nil {
				log.Warn("local payment blocked", zap.Error(err))
				return nil, err
			}
			e.Rate = r.Average
		}
		entries = append(entries, e)
	}

	if _, err := ledger.AppendBatch(entries); err != nil {
		return nil, err
	}

	from := order.Status
	completed, err := order.Settle(ledger, s.opts.Tolerance.Decimal, now)
	if err != nil {
		return nil, err
	}

	var change *domain.ChangeRecord
	if completed && req.ConfirmChange {
		change, err = s.changeFor(order, ledger, req, issuedBy, now, rate)
		if err != nil {
			return nil, err
		}
	}

	err = s.store.ApplySettlement(ctx, repo.Settlement{
		Order:        order,
		From:         from,
		PriorEntries: len(order.Payments),
		Entries:      entries,
		Change:       change,
	})
	if err != nil {
		if errors.Is(err, domain.ErrReconciliationInProgress) {
			return nil, err
		}
		log.Error("settlement not persisted", zap.Error(err))
		return nil, staleAsConflict(err)
	}

	order.Payments = append(order.Payments, entries...)
	if change != nil {
		order.Changes = append(order.Changes, *change)
	}

	log.Info("payment batch applied",
		zap.String("batch_key", batchKey.String()),
		zap.Int("entries", len(entries)),
		zap.String("total_paid", ledger.TotalPaid().String()),
		zap.String("status", string(order.Status)))
	s.events.Publish(realtime.OrderUpdated(order))
	if completed && s.follower != nil {
		s.follower.FollowOrder(ctx, order)
	}

	return &SettlementResult{
		Order:    order,
		Summary:  summarize(order, ledger),
		Outcome:  outcomeOf(order),
		Change:   change,
		Rate:     snap,
		BatchKey: batchKey,
	}, nil
}

// changeFor records disbursed change when the overpayment exceeds the
// tolerance. The record never feeds back into the paid total.
func (s *reconciliationService) changeFor(
	order *domain.Order,
	ledger *domain.Ledger,
	req SubmitRequest,
	issuedBy string,
	now time.Time,
	rate func() (*domain.RateSnapshot, error),
) (*domain.ChangeRecord, error) {
	over := ledger.Overpayment(order.Total)
	if !over.GreaterThan(s.opts.Tolerance.Decimal) {
		return nil, nil
	}
	rec := &domain.ChangeRecord{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Amount:      over,
		Currency:    req.ChangeCurrency,
		LocalAmount: over,
		Method:      req.ChangeMethod,
		IssuedBy:    issuedBy,
		RecordedAt:  now,
	}
	if rec.Currency == "" {
		rec.Currency = domain.CurrencyCanonical
	}
	if rec.Method == "" {
		rec.Method = domain.MethodCash
	}
	if rec.Currency == domain.CurrencyLocal {
		r, err := rate()
		if err != nil {
			return nil, err
		}
		rec.Rate = r.Average
		rec.LocalAmount = domain.RoundMoney(domain.ToLocal(over, r.Average))
	}
	return rec, nil
}

func (s *reconciliationService) Summary(ctx context.Context, orderID int64) (*LedgerSummary, error) {
	order, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	sum := summarize(order, order.Ledger())
	return &sum, nil
}

// validateBatch rejects malformed input before any lock or read.
func validateBatch(req SubmitRequest) error {
	if len(req.Entries) == 0 {
		return domain.ErrEmptyBatch
	}
	for i, in := range req.Entries {
		if !in.Amount.IsPositive() {
			return fmt.Errorf("entry %d: %w: %s", i, domain.ErrInvalidAmount, in.Amount)
		}
		if !in.Currency.Valid() {
			return fmt.Errorf("entry %d: %w: %q", i, domain.ErrInvalidCurrency, in.Currency)
		}
		if !in.Method.Valid() {
			return fmt.Errorf("entry %d: %w: %q", i, domain.ErrInvalidMethod, in.Method)
		}
	}
	if req.ChangeCurrency != "" && !req.ChangeCurrency.Valid() {
		return fmt.Errorf("change: %w: %q", domain.ErrInvalidCurrency, req.ChangeCurrency)
	}
	if req.ChangeMethod != "" && !req.ChangeMethod.Valid() {
		return fmt.Errorf("change: %w: %q", domain.ErrInvalidMethod, req.ChangeMethod)
	}
	return nil
}

func summarize(order *domain.Order, ledger *domain.Ledger) LedgerSummary {
	return LedgerSummary{
		OrderID:     order.ID,
		Status:      order.Status,
		Total:       order.Total,
		TotalPaid:   domain.RoundMoney(ledger.TotalPaid()),
		Remaining:   ledger.Remaining(order.Total),
		Overpayment: ledger.Overpayment(order.Total),
		Finalized:   ledger.Finalized(),
		Entries:     ledger.Entries(),
		Changes:     append([]domain.ChangeRecord(nil), order.Changes...),
	}
}

func outcomeOf(order *domain.Order) Outcome {
	if order.Status == domain.OrderCompleted {
		return OutcomeSettled
	}
	return OutcomeInsufficientPayment
}
