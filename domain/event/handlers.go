package event

import (
	"fmt"
	"log/slog"
	"sync"

	"panel-lab/errors"
)

// Handler reacts to the technical events it cares about and ignores the rest.
// The telemetry worker hands every event to every handler in turn.
type Handler interface {
	Handle(event Event)
}

// ChannelCapacityHandler watches the session loop queues and remembers the
// fullest each of them has been. A queue close to full means the loop or a
// sink is falling behind.
type ChannelCapacityHandler struct {
	mu                   sync.Mutex
	log                  *slog.Logger
	lowCapacityThreshold int
	peaks                map[string]int
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{
		log:                  log,
		lowCapacityThreshold: lowCapacityThreshold,
		peaks:                make(map[string]int),
	}
}

func (h *ChannelCapacityHandler) Handle(event Event) {
	if event.Type != ChannelCapacityType {
		return
	}
	sample, ok := event.Payload.(ChannelCapacity)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.mu.Lock()
	if sample.Length > h.peaks[sample.ChannelName] {
		h.peaks[sample.ChannelName] = sample.Length
	}
	h.mu.Unlock()

	if sample.Capacity <= 0 {
		return
	}
	if left := sample.Capacity - sample.Length; left <= h.lowCapacityThreshold {
		h.log.Warn(fmt.Sprintf("Queue %s is nearly full: %d / %d", sample.ChannelName, sample.Length, sample.Capacity))
	}
}

// Peak returns the highest length sampled for a queue.
func (h *ChannelCapacityHandler) Peak(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peaks[name]
}

// WorkerRestartedAfterPanicHandler counts supervisor restarts, in total
// and per worker.
type WorkerRestartedAfterPanicHandler struct {
	mu        sync.Mutex
	log       *slog.Logger
	counter   *Counter
	perWorker map[string]uint64
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{log: log, counter: counter, perWorker: make(map[string]uint64)}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	restart, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.counter.Increment(RestartedAfterPanicType)
	h.mu.Lock()
	h.perWorker[restart.WorkerName]++
	n := h.perWorker[restart.WorkerName]
	h.mu.Unlock()
	h.log.Warn(fmt.Sprintf("Worker %s restarted after panic (%d for this worker, %d total)",
		restart.WorkerName, n, h.counter.Get(RestartedAfterPanicType)))
}

// Restarts returns how many times the named worker was restarted.
func (h *WorkerRestartedAfterPanicHandler) Restarts(worker string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perWorker[worker]
}
