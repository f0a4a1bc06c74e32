package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"washdesk/internal/realtime"
)

type EventSource interface {
	Subscribe(filter realtime.Filter) *realtime.Subscription
	Seq() uint64
}

type EventHandler struct {
	events    EventSource
	pingEvery time.Duration
	logger    *zap.Logger
}

func NewEventHandler(events EventSource, pingEvery time.Duration, logger *zap.Logger) *EventHandler {
	if pingEvery <= 0 {
		pingEvery = 25 * time.Second
	}
	return &EventHandler{events: events, pingEvery: pingEvery, logger: logger}
}

// Stream serves server-sent events. stream:ready tells the viewer to
// re-fetch full state; later events are only freshness hints.
func (h *EventHandler) Stream(c *gin.Context) {
	v := viewerFrom(c)
	filter := realtime.All
	if !v.Role.Staff() {
		filter = realtime.OwnedBy(v.Subject)
	}
	sub := h.events.Subscribe(filter)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("stream:ready", gin.H{"seq": h.events.Seq()})
	c.Writer.Flush()

	ping := time.NewTicker(h.pingEvery)
	defer ping.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev)
			return true
		case <-ping.C:
			c.SSEvent("ping", gin.H{"seq": h.events.Seq(), "dropped": sub.Dropped()})
			return true
		}
	})
	h.logger.Debug("event stream closed",
		zap.String("viewer", v.Subject),
		zap.Uint64("dropped", sub.Dropped()))
}
