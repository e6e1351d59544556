package runtime

import (
	"context"
	"log/slog"
	"sync"

	"panel-lab/contract"
	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/transport"
)

// Loop is the worker owning a Session. It is the only goroutine touching it:
// transport events, UI commands and results of suspended operations are all
// applied here, one at a time, and the events each of them produced are
// flushed to the fanout before the next one is read.
type Loop struct {
	log        *slog.Logger
	session    *Session
	events     <-chan transport.Event
	commands   chan domain.Command
	results    chan Result
	domain     chan<- event.DomainEvent
	telemetry  chan<- event.Event
	supervisor contract.ISupervisor

	mu      sync.Mutex
	ctx     context.Context
	started bool
	done    chan struct{}
	once    sync.Once
}

// NewLoop builds the session it owns; the loop is the session's executor.
func NewLoop(log *slog.Logger, cfg Config, deps Deps,
	commands chan domain.Command, results chan Result,
	domainEvents chan<- event.DomainEvent, telemetry chan<- event.Event,
	supervisor contract.ISupervisor) *Loop {
	l := &Loop{
		log:        log,
		events:     deps.Transport.Events(),
		commands:   commands,
		results:    results,
		domain:     domainEvents,
		telemetry:  telemetry,
		supervisor: supervisor,
		done:       make(chan struct{}),
	}
	deps.Executor = l
	l.session = NewSession(cfg, deps, log)
	return l
}

// Done is closed once the session reached a terminal state and its last
// events were handed to the fanout.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		// A restart after a panic cannot resume a half-applied session.
		l.mu.Unlock()
		l.log.Error("Session loop restarted, closing the session")
		l.session.close(domain.ReasonLeft)
		l.flush(ctx)
		l.once.Do(func() { close(l.done) })
		return nil
	}
	l.started = true
	l.ctx = ctx
	l.mu.Unlock()

	l.session.Start()
	l.flush(ctx)

	for !l.session.Closed() {
		select {
		case <-ctx.Done():
			l.session.close(domain.ReasonLeft)
		case ev := <-l.events:
			l.session.HandleTransport(ev)
		case cmd := <-l.commands:
			l.session.HandleCommand(cmd)
		case res := <-l.results:
			l.session.HandleResult(res)
		}
		l.flush(ctx)
	}
	l.once.Do(func() { close(l.done) })

	// Closed sessions still release what reaches them late.
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			l.session.HandleTransport(ev)
		case res := <-l.results:
			l.session.HandleResult(res)
		}
	}
}

func (l *Loop) flush(ctx context.Context) {
	for _, e := range l.session.FlushEvents() {
		select {
		case l.domain <- e:
		case <-ctx.Done():
			select {
			case l.domain <- e:
			default:
				l.log.Debug("Domain event lost on shutdown", "event", e)
			}
		}
	}
	for _, e := range l.session.FlushTelemetry() {
		select {
		case l.telemetry <- e:
		default:
			l.log.Debug("Observability telemetry event lost")
		}
	}
}

// Go runs op in its own goroutine and posts its result to the loop.
func (l *Loop) Go(op func(ctx context.Context) Result) {
	ctx := l.context()
	go func() {
		l.Post(op(ctx))
	}()
}

// Watch runs w under the loop's supervisor.
func (l *Loop) Watch(w contract.Worker) {
	l.supervisor.Start(l.context(), w)
}

// Post hands r to the loop. Once the loop is gone, whatever r holds is released.
func (l *Loop) Post(r Result) {
	ctx := l.context()
	select {
	case l.results <- r:
	case <-ctx.Done():
		release(r)
	}
}

func (l *Loop) context() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx == nil {
		return context.Background()
	}
	return l.ctx
}

func release(r Result) {
	switch res := r.(type) {
	case connectResult:
		if res.conn != nil {
			_ = res.conn.Close()
		}
	case micResult:
		if res.stream != nil {
			res.stream.Stop()
		}
	case callResult:
		if res.call != nil {
			_ = res.call.Close()
		}
	}
}
