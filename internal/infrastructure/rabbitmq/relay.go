package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"washdesk/internal/realtime"
)

// Channel is the part of *amqp.Channel the relay publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Source interface {
	Subscribe(filter realtime.Filter) *realtime.Subscription
}

// Relay forwards every hub event to the topic exchange so other processes
// can follow order and delivery changes. It is a subscriber like any
// viewer: a slow broker costs it dropped events, never the publishers.
type Relay struct {
	ch      Channel
	source  Source
	timeout time.Duration
	logger  *zap.Logger
}

func NewRelay(ch Channel, source Source, logger *zap.Logger) *Relay {
	return &Relay{
		ch:      ch,
		source:  source,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Run relays until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	sub := r.source.Subscribe(realtime.All)
	defer sub.Close()
	r.logger.Info("event relay started", zap.String("exchange", ExchangeName))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event relay stopped", zap.Uint64("dropped", sub.Dropped()))
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := r.publish(ctx, ev); err != nil {
				r.logger.Warn("event not relayed",
					zap.String("event", ev.Name),
					zap.Int64("id", ev.EntityID),
					zap.Error(err))
			}
		}
	}
}

func (r *Relay) publish(ctx context.Context, ev realtime.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.ch.PublishWithContext(pubCtx,
		ExchangeName,
		RoutingKey(ev.Name),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%d", ev.Seq),
			Timestamp:    ev.OccurredAt,
			Type:         ev.Name,
			Body:         body,
		},
	)
}

// RoutingKey turns an event name such as "order:updated" into the topic
// key "order.updated".
func RoutingKey(name string) string {
	return strings.ReplaceAll(name, ":", ".")
}
