package runtime_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"panel-lab/audio"
	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/errors"
	"panel-lab/runtime"
	"panel-lab/transport/mem"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type RecordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *RecordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *RecordingSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.DomainEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *RecordingSink) lastRoster() []domain.Participant {
	var roster []domain.Participant
	for _, e := range s.Events() {
		if r, ok := e.(event.RosterChanged); ok {
			roster = r.Participants
		}
	}
	return roster
}

func (s *RecordingSink) chat() []domain.Message {
	var out []domain.Message
	for _, e := range s.Events() {
		if c, ok := e.(event.ChatPosted); ok {
			out = append(out, c.Message)
		}
	}
	return out
}

func newOrchestrator(t *testing.T, network *mem.Network, id, peerID string, hub bool) (*runtime.Orchestrator, *RecordingSink) {
	t.Helper()
	tr, err := network.Join(peerID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	cfg := runtime.Config{
		Self:       domain.Participant{ID: id, DisplayName: id},
		Panel:      domain.PanelInfo{ID: "panel-1", Title: "Live"},
		Hub:        hub,
		HostPeerID: "peer-host",
	}
	deps := runtime.Deps{
		Transport:  tr,
		Microphone: audio.NewToneMicrophone(440, 0.3),
		Sink:       audio.NewDiscardSink(),
	}
	o := runtime.NewOrchestrator(logs.GetLoggerFromLevel(slog.LevelError), cfg, deps,
		256, time.Second, 10*time.Millisecond, 4, '*')
	sink := &RecordingSink{}
	o.RegisterSinks(sink)
	return o, sink
}

func TestOrchestrator_Runs_A_Panel_Until_It_Ends(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	network := mem.NewNetwork()

	host, hostSink := newOrchestrator(t, network, "host", "peer-host", true)
	peer, peerSink := newOrchestrator(t, network, "a", "peer-a", false)

	hostDone := make(chan error, 1)
	go func() { hostDone <- host.Start(ctx) }()
	req.Eventually(func() bool { return len(hostSink.lastRoster()) == 1 }, 2*time.Second, 5*time.Millisecond)

	peerDone := make(chan error, 1)
	go func() { peerDone <- peer.Start(ctx) }()

	// When the peer joins
	req.Eventually(func() bool { return len(peerSink.lastRoster()) == 2 }, 2*time.Second, 5*time.Millisecond)

	// And posts a censored message
	req.NoError(peer.Dispatch(domain.PostChatCommand{Text: "what a bastard"}))

	// Then the hub relays it censored and counts it
	req.Eventually(func() bool { return len(peerSink.chat()) == 1 }, 2*time.Second, 5*time.Millisecond)
	req.Equal("what a *******", peerSink.chat()[0].Content)
	req.True(peerSink.chat()[0].Mine)
	req.Eventually(func() bool { return host.CensoredMessages() == 1 }, 2*time.Second, 5*time.Millisecond)

	// When the host ends the panel
	req.NoError(host.Dispatch(domain.EndPanelCommand{}))

	// Then both orchestrators stop on their own
	for _, done := range []chan error{hostDone, peerDone} {
		select {
		case err := <-done:
			req.NoError(err)
		case <-time.After(3 * time.Second):
			req.Fail("orchestrator did not stop")
		}
	}

	// And the last event each sink got is the close
	for _, sink := range []*RecordingSink{hostSink, peerSink} {
		events := sink.Events()
		closed, ok := events[len(events)-1].(event.SessionClosed)
		req.True(ok)
		req.Equal(domain.ReasonEnded, closed.Reason)
	}
}

func TestOrchestrator_Stop_Leaves_The_Panel(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host, sink := newOrchestrator(t, network, "host", "peer-host", true)

	done := make(chan error, 1)
	go func() { done <- host.Start(context.Background()) }()
	req.Eventually(func() bool { return len(sink.lastRoster()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// When the orchestrator is stopped
	host.Stop()

	// Then the session is closed as left
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(3 * time.Second):
		req.Fail("orchestrator did not stop")
	}
	events := sink.Events()
	closed, ok := events[len(events)-1].(event.SessionClosed)
	req.True(ok)
	req.Equal(domain.ReasonLeft, closed.Reason)
}

func TestOrchestrator_Dispatch_Full_Queue(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	tr, err := network.Join("peer-host")
	req.NoError(err)

	// Given an orchestrator that is not running, with room for one command
	o := runtime.NewOrchestrator(logs.GetLoggerFromLevel(slog.LevelError),
		runtime.Config{Self: domain.Participant{ID: "host"}, Hub: true},
		runtime.Deps{Transport: tr}, 1, time.Second, time.Second, 0, '*')

	// When two commands are dispatched
	req.NoError(o.Dispatch(domain.RaiseHandCommand{}))
	err = o.Dispatch(domain.RaiseHandCommand{})

	// Then the second is refused
	req.ErrorIs(err, errors.ErrCommandQueueFull)
}
