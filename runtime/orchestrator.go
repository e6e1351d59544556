package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"panel-lab/contract"
	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/errors"
	"panel-lab/moderation"
	"panel-lab/runtime/workers"
)

var _ contract.IOrchestrator = (*Orchestrator)(nil)

const cpuWarningPercent = 80

// Orchestrator wires one session to its workers: the loop owning it, the
// fanout delivering its events, and the telemetry around them.
// It holds no panel rule itself.
type Orchestrator struct {
	mu                   sync.Mutex
	log                  *slog.Logger
	cfg                  Config
	deps                 Deps
	supervisor           *workers.Supervisor
	permanentSinks       []contract.EventSink
	commands             chan domain.Command
	results              chan Result
	domainEvents         chan event.DomainEvent
	telemetryEvents      chan event.Event
	sinkTimeout          time.Duration
	metricInterval       time.Duration
	lowCapacityThreshold int
	charReplacement      rune
	restarts             *event.Counter
	censored             *event.CensoredHandler
	heartbeat            *event.HeartbeatHandler
}

func NewOrchestrator(log *slog.Logger, cfg Config, deps Deps,
	bufferSize int, sinkTimeout, metricInterval time.Duration,
	lowCapacityThreshold int, charReplacement rune) *Orchestrator {
	telemetryEvents := make(chan event.Event, bufferSize)
	return &Orchestrator{
		log:                  log,
		cfg:                  cfg,
		deps:                 deps,
		supervisor:           workers.NewSupervisor(log).WithTelemetry(telemetryEvents),
		commands:             make(chan domain.Command, bufferSize),
		results:              make(chan Result, bufferSize),
		domainEvents:         make(chan event.DomainEvent, bufferSize),
		telemetryEvents:      telemetryEvents,
		sinkTimeout:          sinkTimeout,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
		charReplacement:      charReplacement,
		restarts:             event.NewCounter(),
		censored:             event.NewCensoredHandler(log),
		heartbeat:            event.NewHeartbeatHandler(log, cpuWarningPercent),
	}
}

// RegisterSinks must be called before Start.
func (o *Orchestrator) RegisterSinks(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Dispatch queues a UI command for the session loop.
func (o *Orchestrator) Dispatch(cmd domain.Command) error {
	select {
	case o.commands <- cmd:
		return nil
	default:
		o.log.Warn("Command channel full, dropping command", "command", fmt.Sprintf("%T", cmd))
		return errors.ErrCommandQueueFull
	}
}

// Start prepares every worker, then runs them until the session closes or
// ctx is canceled. It returns once all of them stopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	// Preparation (no lock): loading the dictionaries and building the automaton
	if o.cfg.Hub && o.deps.Moderator == nil {
		moderator, err := o.prepareModeration("censored", o.charReplacement)
		if err != nil {
			return err
		}
		o.deps.Moderator = moderator
	}

	o.mu.Lock()
	loop := NewLoop(o.log, o.cfg, o.deps, o.commands, o.results, o.domainEvents, o.telemetryEvents, o.supervisor)
	fanout := workers.NewEventFanout(o.log, o.domainEvents, o.sinkTimeout).
		Add(o.permanentSinks...).
		DrainAfter(loop.Done())
	o.supervisor.
		Add(loop).
		Add(fanout).
		Add(o.prepareTelemetry()...)
	o.mu.Unlock()

	go func() {
		select {
		case <-loop.Done():
			o.log.Debug("Session over, stopping workers")
		case <-ctx.Done():
		}
		o.supervisor.Stop()
	}()

	o.log.Info("Starting orchestrator and all supervised workers", "hub", o.cfg.Hub)
	o.supervisor.Run(ctx)
	return nil
}

// prepareModeration loads censored words and builds the Aho-Corasick automaton.
func (o *Orchestrator) prepareModeration(dir string, charReplacement rune) (*moderation.Moderator, error) {
	data, err := NewCensoredLoader(CensoredFolder()).LoadAll(dir)
	if err != nil {
		return nil, err
	}

	o.log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	o.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))

	return moderation.NewModerator(data.Words, charReplacement, o.log)
}

func (o *Orchestrator) prepareTelemetry() []contract.Worker {
	handlers := []event.Handler{
		o.censored,
		event.NewChannelCapacityHandler(o.log, o.lowCapacityThreshold),
		event.NewWorkerRestartedAfterPanicHandler(o.log, o.restarts),
		o.heartbeat,
	}
	channels := []workers.NamedChannel{
		workers.Watch("commands", o.commands),
		workers.Watch("results", o.results),
		workers.Watch("domain_events", o.domainEvents),
	}
	return []contract.Worker{
		workers.NewTelemetryWorker(o.log, o.telemetryEvents, handlers),
		workers.NewChannelCapacityWorker(o.log, channels, o.telemetryEvents, o.metricInterval),
		workers.NewHeartbeatWorker(o.log, o.telemetryEvents, o.metricInterval),
	}
}

// CensoredMessages counts the chat messages the hub had to censor.
func (o *Orchestrator) CensoredMessages() uint64 { return o.censored.Total() }

// Stop cancels every supervised worker; Start returns once they are done.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
