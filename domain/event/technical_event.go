package event

import (
	"sync"
	"time"

	"panel-lab/domain"
)

// Type tags technical events flowing to the telemetry worker.
type Type string

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	CensorshipHitType       Type = "CENSORSHIP_HIT"
	HeartbeatType           Type = "HEARTBEAT"
)

// Event is a technical event. Unlike DomainEvent it describes the process, not the panel.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

// CensorshipHit is reported by the hub each time relayed chat was censored.
type CensorshipHit struct {
	Panel    domain.PanelID
	AuthorID string
	Lang     string
}

// Heartbeat is a sample of the client process itself.
type Heartbeat struct {
	PID    int32
	RSS    uint64
	CPU    float64
	Status string
}

// Counter counts technical events by type.
type Counter struct {
	mu     sync.Mutex
	counts map[Type]uint64
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[Type]uint64)}
}

func (c *Counter) Increment(t Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[t]++
}

func (c *Counter) Get(t Type) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}
