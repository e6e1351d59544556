package event

import (
	"fmt"
	"log/slog"
	"sync"

	"panel-lab/errors"

	"github.com/dustin/go-humanize"
)

// HeartbeatHandler keeps the last process sample and warns when the
// client uses more CPU than cpuThreshold percent.
type HeartbeatHandler struct {
	mu           sync.Mutex
	log          *slog.Logger
	cpuThreshold float64
	last         Heartbeat
}

func NewHeartbeatHandler(log *slog.Logger, cpuThreshold float64) *HeartbeatHandler {
	return &HeartbeatHandler{log: log, cpuThreshold: cpuThreshold}
}

func (h *HeartbeatHandler) Handle(event Event) {
	if event.Type != HeartbeatType {
		return
	}
	payload, ok := event.Payload.(Heartbeat)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.mu.Lock()
	h.last = payload
	h.mu.Unlock()

	h.log.Debug(fmt.Sprintf("Process %d %s: %s RSS, %.1f%% CPU",
		payload.PID, payload.Status, humanize.Bytes(payload.RSS), payload.CPU))
	if h.cpuThreshold > 0 && payload.CPU > h.cpuThreshold {
		h.log.Warn(fmt.Sprintf("Process %d is using %.1f%% CPU, audio may lag", payload.PID, payload.CPU))
	}
}

// Last returns the most recent sample, zero before the first one.
func (h *HeartbeatHandler) Last() Heartbeat {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
