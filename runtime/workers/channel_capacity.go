package workers

import (
	"context"
	"log/slog"
	"time"

	"panel-lab/domain/event"
)

// NamedChannel is a queue sampled by ChannelCapacityWorker.
type NamedChannel struct {
	Name     string
	Capacity int
	Length   func() int
}

// Watch wraps a channel of any element type for sampling.
func Watch[T any](name string, ch chan T) NamedChannel {
	return NamedChannel{Name: name, Capacity: cap(ch), Length: func() int { return len(ch) }}
}

// ChannelCapacityWorker periodically reports the current channel capacity and length.
// Reading len and cap is non-blocking, so this won't interfere with the loop.
// It's okay if a sample is dropped occasionally because metrics are sampled periodically.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, telemetryChan chan event.Event,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			for _, nc := range w.channels {
				select {
				case w.telemetryChan <- toCapacityEvent(nc.Name, nc.Capacity, nc.Length()):
				default:
					w.log.Debug("Observability telemetry event lost")
				}
			}
		}
	}
}

func toCapacityEvent(name string, capacity, length int) event.Event {
	return event.Event{
		Type:      event.ChannelCapacityType,
		CreatedAt: time.Now().UTC(),
		Payload: event.ChannelCapacity{
			ChannelName: name,
			Capacity:    capacity,
			Length:      length,
		},
	}
}
