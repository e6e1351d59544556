package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"panel-lab/contract"
	"panel-lab/domain/event"
)

const drainTimeout = 2 * time.Second

// EventFanout broadcasts domain events to multiple in-process consumers.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries. EventFanout is not a message broker.
// Sinks see events in the order the session produced them; each sink call is
// bounded by sinkTimeout so a stalled directory cannot hold back the UI.
type EventFanout struct {
	log          *slog.Logger
	events       chan event.DomainEvent
	sinkTimeout  time.Duration
	// producerDone, when set, is awaited before the final drain.
	producerDone <-chan struct{}

	mu    sync.RWMutex
	sinks []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events chan event.DomainEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sinks = append(w.sinks, sinks...)
	return w
}

// DrainAfter delays the final drain until done is closed, so what the
// producer flushes while shutting down still reaches the sinks.
func (w *EventFanout) DrainAfter(done <-chan struct{}) *EventFanout {
	w.producerDone = done
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.drain()
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	w.mu.RLock()
	sinks := make([]contract.EventSink, len(w.sinks))
	copy(sinks, w.sinks)
	w.mu.RUnlock()

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Debug("Sink failed to consume event", "sink", sinkName(sink), "error", err)
		}
		cancel()
	}
}

// drain delivers what the session flushed before shutting down, typically
// its SessionClosed event, with a fresh deadline.
func (w *EventFanout) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if w.producerDone != nil {
		select {
		case <-w.producerDone:
		case <-ctx.Done():
			w.log.Warn("Producer still running, draining what is queued")
		}
	}
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		default:
			return
		}
	}
}

func sinkName(sink contract.EventSink) string {
	if named, ok := sink.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "sink"
}
