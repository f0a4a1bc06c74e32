package realtime

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Hub fans events out to every subscriber. Publish never blocks: each
// subscriber owns a bounded buffer and the oldest pending event is dropped
// when it is full.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    atomic.Uint64
	buffer int
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

type Subscription struct {
	id      uint64
	hub     *Hub
	filter  Filter
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped atomic.Uint64
}

// C delivers events in publish order, minus any that were dropped.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// Subscribe registers a viewer; a nil filter receives everything.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	if filter == nil {
		filter = All
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		filter: filter,
		ch:     make(chan Event, h.buffer),
	}
	h.subs[sub.id] = sub
	h.logger.Debug("viewer subscribed", zap.Uint64("subscriber", sub.id), zap.Int("subscribers", len(h.subs)))
	return sub
}

func (h *Hub) Publish(ev Event) {
	ev.Seq = h.seq.Add(1)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter(ev) {
			sub.deliver(ev)
		}
	}
}

// Seq is the sequence number of the most recent event.
func (h *Hub) Seq() uint64 {
	return h.seq.Load()
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; ok {
		delete(h.subs, id)
		h.logger.Debug("viewer unsubscribed", zap.Uint64("subscriber", id))
	}
}
