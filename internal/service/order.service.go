package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/realtime"
	"washdesk/internal/repo"
)

type IntakeRequest struct {
	ClientID          string
	VehiclePlate      string
	VehicleNote       string
	Items             []domain.LineItem
	DeliverySurcharge decimal.Decimal
}

type OrderService interface {
	Intake(ctx context.Context, req IntakeRequest) (*domain.Order, error)
	Get(ctx context.Context, id int64) (*domain.Order, error)
	GetByToken(ctx context.Context, token uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error)
	// Transition moves the order along the staff-driven part of the
	// lifecycle. COMPLETED is only reachable through payment settlement.
	Transition(ctx context.Context, id int64, to domain.OrderStatus, reason string) (*domain.Order, error)
	Cancel(ctx context.Context, id int64, reason string) (*domain.Order, error)
}

type orderService struct {
	store    repo.Store
	locks    *KeyedLocks
	follower orderFollower
	events   realtime.Publisher
	opts     Options
	logger   *zap.Logger
}

func NewOrderService(
	store repo.Store,
	locks *KeyedLocks,
	follower orderFollower,
	events realtime.Publisher,
	opts Options,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		store:    store,
		locks:    locks,
		follower: follower,
		events:   events,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

func (s *orderService) Intake(ctx context.Context, req IntakeRequest) (*domain.Order, error) {
	order, err := domain.NewOrder(strings.TrimSpace(req.ClientID), req.Items, req.DeliverySurcharge, s.opts.Now())
	if err != nil {
		return nil, err
	}
	order.VehiclePlate = strings.ToUpper(strings.TrimSpace(req.VehiclePlate))
	order.VehicleNote = strings.TrimSpace(req.VehicleNote)

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.logger.Info("order received",
		zap.Int64("order_id", order.ID),
		zap.String("client_id", order.ClientID),
		zap.String("total", order.Total.String()))
	s.events.Publish(realtime.OrderUpdated(order))
	return order, nil
}

func (s *orderService) Get(ctx context.Context, id int64) (*domain.Order, error) {
	return s.store.FindOrder(ctx, id)
}

func (s *orderService) GetByToken(ctx context.Context, token uuid.UUID) (*domain.Order, error) {
	return s.store.FindOrderByToken(ctx, token)
}

func (s *orderService) List(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidOrder, status)
	}
	return s.store.ListOrders(ctx, status, limit)
}

func (s *orderService) Transition(ctx context.Context, id int64, to domain.OrderStatus, reason string) (*domain.Order, error) {
	if to == domain.OrderCancelled {
		return s.Cancel(ctx, id, reason)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, to)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	defer cancel()
	unlock, err := s.locks.Lock(lockCtx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if err := order.Advance(to, s.opts.Now()); err != nil {
		return nil, err
	}
	return s.save(ctx, order, from)
}

// Cancel refuses to wait: an order with a batch in flight is rejected
// until the batch resolves.
func (s *orderService) Cancel(ctx context.Context, id int64, reason string) (*domain.Order, error) {
	unlock, err := s.locks.TryLock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if err := order.Cancel(reason, s.opts.Now()); err != nil {
		return nil, err
	}
	return s.save(ctx, order, from)
}

func (s *orderService) save(ctx context.Context, order *domain.Order, from domain.OrderStatus) (*domain.Order, error) {
	if err := s.store.UpdateOrderStatus(ctx, order, from); err != nil {
		return nil, staleAsConflict(err)
	}
	s.logger.Info("order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)))
	s.events.Publish(realtime.OrderUpdated(order))
	if s.follower != nil {
		s.follower.FollowOrder(ctx, order)
	}
	return order, nil
}
