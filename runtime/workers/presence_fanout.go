package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/observability"
)

// PresenceFanout broadcasts presence events to every registered connection.
//
// It provides best-effort fan-out with no guarantees regarding delivery or
// retries: a connection that is closed, full or slower than sinkTimeout
// simply misses the event.
type PresenceFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	registry    contract.IRegistry
	metrics     *observability.Metrics
	sinkTimeout time.Duration
}

func NewPresenceFanout(
	log *slog.Logger,
	events <-chan event.DomainEvent,
	registry contract.IRegistry,
	metrics *observability.Metrics,
	sinkTimeout time.Duration,
) *PresenceFanout {
	return &PresenceFanout{
		log:         log,
		events:      events,
		registry:    registry,
		metrics:     metrics,
		sinkTimeout: sinkTimeout,
	}
}

func (w *PresenceFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence fanout")
			return nil
		}
	}
}

// Fanout One consume per registered connection, each bounded by sinkTimeout
func (w *PresenceFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	var wg sync.WaitGroup
	for _, conn := range w.registry.Connections() {
		wg.Add(1)
		go func(conn contract.Connection) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := conn.Consume(sinkCtx, evt); err != nil {
				w.metrics.BroadcastsDropped.Inc()
				w.log.Debug("Presence event not delivered",
					"connection", conn.ID(), "event", evt.EventName(), "error", err)
			}
		}(conn)
	}
	wg.Wait()
}
