package workers

import (
	"context"
	"log/slog"

	"panel-lab/domain/event"
)

// TelemetryWorker hands each technical event to every handler. Events still
// queued when the context ends are handled before it returns.
type TelemetryWorker struct {
	log           *slog.Logger
	telemetryChan chan event.Event
	handlers      []event.Handler
}

func NewTelemetryWorker(log *slog.Logger, telemetryChan chan event.Event, handlers []event.Handler) *TelemetryWorker {
	return &TelemetryWorker{log: log, telemetryChan: telemetryChan, handlers: handlers}
}

func (w TelemetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case evt := <-w.telemetryChan:
			w.dispatch(evt)
		}
	}
}

func (w TelemetryWorker) drain() {
	for {
		select {
		case evt := <-w.telemetryChan:
			w.dispatch(evt)
		default:
			return
		}
	}
}

func (w TelemetryWorker) dispatch(evt event.Event) {
	for _, h := range w.handlers {
		h.Handle(evt)
	}
}
