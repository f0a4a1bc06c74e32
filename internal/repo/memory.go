package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"washdesk/internal/domain"
)

// MemoryStore keeps everything in process. Reads and writes go through
// deep copies so callers can never mutate stored state in place.
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[int64]*domain.Order
	byToken    map[uuid.UUID]int64
	deliveries map[int64]*domain.DeliveryRequest
	nextOrder  int64
	nextReq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:     make(map[int64]*domain.Order),
		byToken:    make(map[uuid.UUID]int64),
		deliveries: make(map[int64]*domain.DeliveryRequest),
	}
}

func (s *MemoryStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertOrder(order)
	return nil
}

func (s *MemoryStore) insertOrder(order *domain.Order) {
	s.nextOrder++
	order.ID = s.nextOrder
	s.orders[order.ID] = order.Clone()
	s.byToken[order.Token] = order.ID
}

func (s *MemoryStore) FindOrder(ctx context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) FindOrderByToken(ctx context.Context, token uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	id, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return s.FindOrder(ctx, id)
}

func (s *MemoryStore) ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			orders = append(orders, *o.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.checkOrder(order.ID, from)
	if err != nil {
		return err
	}
	s.applyStatus(stored, order)
	return nil
}

func (s *MemoryStore) ApplySettlement(ctx context.Context, st Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.checkOrder(st.Order.ID, st.From)
	if err != nil {
		return err
	}
	if len(stored.Payments) != st.PriorEntries {
		return ledgerMoved(stored.ID, st.PriorEntries, len(stored.Payments))
	}
	stored.Payments = append(stored.Payments, st.Entries...)
	if st.Change != nil {
		stored.Changes = append(stored.Changes, *st.Change)
	}
	s.applyStatus(stored, st.Order)
	return nil
}

func (s *MemoryStore) checkOrder(id int64, from domain.OrderStatus) (*domain.Order, error) {
	stored, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if stored.Status != from {
		return nil, fmt.Errorf("%w: order %d is %s, expected %s", domain.ErrStaleState, id, stored.Status, from)
	}
	return stored, nil
}

func (s *MemoryStore) applyStatus(stored, updated *domain.Order) {
	c := updated.Clone()
	stored.Status = c.Status
	stored.CancelReason = c.CancelReason
	stored.UpdatedAt = c.UpdatedAt
	stored.StartedAt = c.StartedAt
	stored.CompletedAt = c.CompletedAt
	stored.ClosedAt = c.ClosedAt
}

func (s *MemoryStore) CreateDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReq++
	req.ID = s.nextReq
	s.deliveries[req.ID] = req.Clone()
	return nil
}

func (s *MemoryStore) FindDeliveryRequest(ctx context.Context, id int64) (*domain.DeliveryRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.deliveries[id]
	if !ok {
		return nil, domain.ErrDeliveryRequestNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) UpdateDeliveryStatus(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDelivery(req.ID, from); err != nil {
		return err
	}
	s.deliveries[req.ID] = req.Clone()
	return nil
}

func (s *MemoryStore) AcceptDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDelivery(req.ID, from); err != nil {
		return err
	}
	s.insertOrder(order)
	req.OrderID = &order.ID
	s.deliveries[req.ID] = req.Clone()
	return nil
}

func (s *MemoryStore) CancelDeliveryRequest(ctx context.Context, req *domain.DeliveryRequest, from domain.DeliveryStatus, order *domain.Order, orderFrom domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.checkOrder(order.ID, orderFrom)
	if err != nil {
		return err
	}
	if err := s.checkDelivery(req.ID, from); err != nil {
		return err
	}
	s.applyStatus(stored, order)
	s.deliveries[req.ID] = req.Clone()
	return nil
}

func (s *MemoryStore) checkDelivery(id int64, from domain.DeliveryStatus) error {
	stored, ok := s.deliveries[id]
	if !ok {
		return domain.ErrDeliveryRequestNotFound
	}
	if stored.Status != from {
		return fmt.Errorf("%w: delivery request %d is %s, expected %s", domain.ErrStaleState, id, stored.Status, from)
	}
	return nil
}
