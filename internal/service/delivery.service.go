package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"washdesk/internal/domain"
	"washdesk/internal/realtime"
	"washdesk/internal/repo"
)

type CreateDeliveryRequest struct {
	ClientID  string
	Origin    domain.RequestOrigin
	Items     []domain.LineItem
	Surcharge decimal.Decimal
}

type DeliveryService interface {
	Create(ctx context.Context, req CreateDeliveryRequest) (*domain.DeliveryRequest, error)
	Get(ctx context.Context, id int64) (*domain.DeliveryRequest, error)
	// UpdateStatus applies a staff decision. Accepting converts the request
	// into an order, returned alongside; cancelling an accepted request
	// cancels that order too.
	UpdateStatus(ctx context.Context, id int64, to domain.DeliveryStatus, reason string) (*domain.DeliveryRequest, *domain.Order, error)
	FollowOrder(ctx context.Context, order *domain.Order)
}

type deliveryService struct {
	store      repo.Store
	orderLocks *KeyedLocks
	reqLocks   *KeyedLocks
	events     realtime.Publisher
	opts       Options
	logger     *zap.Logger
}

func NewDeliveryService(
	store repo.Store,
	orderLocks *KeyedLocks,
	events realtime.Publisher,
	opts Options,
	logger *zap.Logger,
) DeliveryService {
	return &deliveryService{
		store:      store,
		orderLocks: orderLocks,
		reqLocks:   NewKeyedLocks(),
		events:     events,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

func (s *deliveryService) Create(ctx context.Context, in CreateDeliveryRequest) (*domain.DeliveryRequest, error) {
	req, err := domain.NewDeliveryRequest(in.ClientID, in.Origin, in.Items, in.Surcharge, s.opts.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateDeliveryRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info("delivery request created",
		zap.Int64("request_id", req.ID),
		zap.String("client_id", req.ClientID),
		zap.String("origin", string(req.Origin)))
	s.events.Publish(realtime.DeliveryRequestNew(req))
	return req, nil
}

func (s *deliveryService) Get(ctx context.Context, id int64) (*domain.DeliveryRequest, error) {
	return s.store.FindDeliveryRequest(ctx, id)
}

func (s *deliveryService) UpdateStatus(ctx context.Context, id int64, to domain.DeliveryStatus, reason string) (*domain.DeliveryRequest, *domain.Order, error) {
	switch to {
	case domain.DeliveryAccepted, domain.DeliveryRejected, domain.DeliveryCancelled:
	default:
		// IN_PROGRESS and COMPLETED follow the order and are never set directly.
		return nil, nil, fmt.Errorf("%w: delivery status %q is not set directly", domain.ErrInvalidTransition, to)
	}

	unlock, err := s.reqLocks.TryLock(id)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	req, err := s.store.FindDeliveryRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case to == domain.DeliveryAccepted:
		return s.accept(ctx, req)
	case to == domain.DeliveryCancelled && req.OrderID != nil:
		return s.cancelWithOrder(ctx, req, reason)
	}

	from := req.Status
	if err := req.Move(to, reason, s.opts.Now()); err != nil {
		return nil, nil, err
	}
	if err := s.store.UpdateDeliveryStatus(ctx, req, from); err != nil {
		return nil, nil, staleAsConflict(err)
	}
	s.published(req, from)
	return req, nil, nil
}

func (s *deliveryService) accept(ctx context.Context, req *domain.DeliveryRequest) (*domain.DeliveryRequest, *domain.Order, error) {
	from := req.Status
	now := s.opts.Now()
	if err := req.Move(domain.DeliveryAccepted, "", now); err != nil {
		return nil, nil, err
	}
	order, err := req.ToOrder(now)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.AcceptDeliveryRequest(ctx, req, from, order); err != nil {
		return nil, nil, staleAsConflict(err)
	}
	s.logger.Info("delivery request converted",
		zap.Int64("request_id", req.ID),
		zap.Int64("order_id", order.ID))
	s.published(req, from)
	s.events.Publish(realtime.OrderUpdated(order))
	return req, order, nil
}

// cancelWithOrder cancels an accepted request together with the order it
// became.
func (s *deliveryService) cancelWithOrder(ctx context.Context, req *domain.DeliveryRequest, reason string) (*domain.DeliveryRequest, *domain.Order, error) {
	unlock, err := s.orderLocks.TryLock(*req.OrderID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	order, err := s.store.FindOrder(ctx, *req.OrderID)
	if err != nil {
		return nil, nil, err
	}
	now := s.opts.Now()
	orderFrom := order.Status
	if err := order.Cancel(reason, now); err != nil {
		return nil, nil, err
	}
	from := req.Status
	if err := req.Move(domain.DeliveryCancelled, reason, now); err != nil {
		return nil, nil, err
	}
	if err := s.store.CancelDeliveryRequest(ctx, req, from, order, orderFrom); err != nil {
		return nil, nil, staleAsConflict(err)
	}
	s.events.Publish(realtime.OrderUpdated(order))
	s.published(req, from)
	return req, order, nil
}

// FollowOrder moves the originating request after its order changed.
// Failures are logged; the order change itself already happened.
func (s *deliveryService) FollowOrder(ctx context.Context, order *domain.Order) {
	if order.DeliveryRequestID == nil {
		return
	}
	target, ok := domain.DeliveryStatusFor(order.Status)
	if !ok {
		return
	}
	id := *order.DeliveryRequestID
	log := s.logger.With(zap.Int64("request_id", id), zap.Int64("order_id", order.ID))

	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	defer cancel()
	unlock, err := s.reqLocks.Lock(lockCtx, id)
	if err != nil {
		log.Warn("delivery request not synced", zap.Error(err))
		return
	}
	defer unlock()

	req, err := s.store.FindDeliveryRequest(ctx, id)
	if err != nil {
		log.Warn("delivery request not synced", zap.Error(err))
		return
	}
	if req.Status == target {
		return
	}
	from := req.Status
	now := s.opts.Now()
	// A missed IN_PROGRESS sync must not strand the request on completion.
	if target == domain.DeliveryCompleted && req.Status == domain.DeliveryAccepted {
		if err := req.Move(domain.DeliveryInProgress, "", now); err != nil {
			log.Warn("delivery request not synced", zap.String("target", string(target)), zap.Error(err))
			return
		}
	}
	if err := req.Move(target, order.CancelReason, now); err != nil {
		log.Warn("delivery request not synced", zap.String("target", string(target)), zap.Error(err))
		return
	}
	if err := s.store.UpdateDeliveryStatus(ctx, req, from); err != nil {
		log.Warn("delivery request not synced", zap.Error(err))
		return
	}
	s.published(req, from)
}

func (s *deliveryService) published(req *domain.DeliveryRequest, from domain.DeliveryStatus) {
	s.logger.Info("delivery request status changed",
		zap.Int64("request_id", req.ID),
		zap.String("from", string(from)),
		zap.String("to", string(req.Status)))
	s.events.Publish(realtime.DeliveryRequestUpdated(req))
}
