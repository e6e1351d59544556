package event

import (
	"fmt"
	"log/slog"
	"sync"

	"panel-lab/errors"
)

// CensoredHandler counts censored chat messages per author.
type CensoredHandler struct {
	mu      sync.Mutex
	log     *slog.Logger
	counter uint64
	hit     map[string]uint64
}

func NewCensoredHandler(log *slog.Logger) *CensoredHandler {
	return &CensoredHandler{
		log:     log,
		counter: 0,
		hit:     make(map[string]uint64),
	}
}

func (h *CensoredHandler) Handle(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch event.Type {
	case CensorshipHitType:
		payload, ok := event.Payload.(CensorshipHit)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter++
		h.hit[payload.AuthorID]++
		h.log.Debug(fmt.Sprintf("Censored message from %s in panel %s (%d total)",
			payload.AuthorID, payload.Panel, h.counter))
	}
}

// Hits returns how many censored messages an author sent.
func (h *CensoredHandler) Hits(authorID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hit[authorID]
}

func (h *CensoredHandler) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counter
}
