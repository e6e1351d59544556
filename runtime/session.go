// Package runtime runs a live panel session: the hub and peer state machines,
// the loop that owns them and the workers around it.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"panel-lab/audio"
	"panel-lab/contract"
	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/errors"
	"panel-lab/media"
	"panel-lab/protocol"
	"panel-lab/transport"

	"github.com/google/uuid"
)

const DefaultMaxChatLength = 2000

// Result is the outcome of an operation that ran off the loop.
type Result interface {
	isResult()
}

type connectResult struct {
	conn transport.DataConn
	err  error
}

type micResult struct {
	stream *media.Stream
	err    error
}

type callResult struct {
	peerID string
	call   transport.CallConn
	err    error
}

type speakingResult struct {
	peerID   string
	stream   *media.Stream
	speaking bool
}

func (connectResult) isResult()  {}
func (micResult) isResult()      {}
func (callResult) isResult()     {}
func (speakingResult) isResult() {}

// Executor runs what the session must not block on. Whatever it runs reports
// back through Post, and the session applies it when the loop hands it over.
type Executor interface {
	Go(op func(ctx context.Context) Result)
	Watch(w contract.Worker)
	Post(r Result)
}

// Config describes the local participant and the panel it takes part in.
type Config struct {
	Self  domain.Participant
	Panel domain.PanelInfo
	// Hub is true for the participant who created the panel.
	Hub bool
	// HostPeerID is where a peer connects. Unused by the hub.
	HostPeerID        string
	Limits            domain.Limits
	MaxChatLength     int
	SpeakingThreshold int
}

type Deps struct {
	Transport  transport.Transport
	Executor   Executor
	Microphone contract.Microphone
	Sink       contract.AudioSink
	// Moderator is only used by the hub.
	Moderator contract.Moderator
	Now       func() time.Time
}

type micState int

const (
	micIdle micState = iota
	micAcquiring
	micReady
	micDenied
)

// Session is the single-writer state of one participant in one panel.
// Only the loop goroutine calls its methods.
type Session struct {
	cfg       Config
	log       *slog.Logger
	transport transport.Transport
	exec      Executor
	mic       contract.Microphone
	sink      contract.AudioSink
	moderator contract.Moderator
	now       func() time.Time

	state    domain.SessionState
	panel    domain.PanelInfo
	roster   *domain.Roster
	controls *ControlRegistry
	calls    *audio.CallRegistry

	micState micState
	local    *media.Stream
	muted    bool
	role     domain.Role
	speaking map[string]bool
	failed   bool

	outbox    []event.DomainEvent
	telemetry []event.Event
}

func NewSession(cfg Config, deps Deps, log *slog.Logger) *Session {
	if cfg.Limits == (domain.Limits{}) {
		cfg.Limits = domain.DefaultLimits()
	}
	if cfg.MaxChatLength <= 0 {
		cfg.MaxChatLength = DefaultMaxChatLength
	}
	if deps.Sink == nil {
		deps.Sink = audio.NewDiscardSink()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	cfg.Self.PeerID = deps.Transport.ID()
	return &Session{
		cfg:       cfg,
		log:       log.With("participant", cfg.Self.ID, "panel", cfg.Panel.ID),
		transport: deps.Transport,
		exec:      deps.Executor,
		mic:       deps.Microphone,
		sink:      deps.Sink,
		moderator: deps.Moderator,
		now:       deps.Now,
		state:     domain.StateJoining,
		panel:     cfg.Panel,
		roster:    domain.NewMirror(cfg.Limits),
		controls:  NewControlRegistry(),
		calls:     audio.NewCallRegistry(deps.Transport.ID()),
		speaking:  make(map[string]bool),
	}
}

// Start opens the session. The hub is active at once and acquires its
// microphone; a peer dials the hub and waits for room_state.
func (s *Session) Start() {
	if s.cfg.Hub {
		s.roster = domain.NewRoster(s.cfg.Self, s.cfg.Limits)
		s.panel.HostID = s.cfg.Self.ID
		s.state = domain.StateActive
		s.role = domain.RoleHost
		s.log.Info("Hosting panel", "peer", s.cfg.Self.PeerID)
		s.emit(event.SessionStarted{Panel: s.panel, SelfID: s.cfg.Self.ID, Role: domain.RoleHost, At: s.now()})
		s.emitRoster()
		s.requestMicrophone()
		return
	}
	hostPeerID := s.cfg.HostPeerID
	s.exec.Go(func(ctx context.Context) Result {
		conn, err := s.transport.Connect(ctx, hostPeerID)
		return connectResult{conn: conn, err: err}
	})
}

func (s *Session) State() domain.SessionState { return s.state }

func (s *Session) Closed() bool { return s.state.Terminal() }

func (s *Session) Participants() []domain.Participant { return s.roster.Participants() }

func (s *Session) Role() domain.Role { return s.role }

func (s *Session) Muted() bool { return s.muted }

// CallPeers lists the peers this session currently holds a call with.
func (s *Session) CallPeers() []string { return s.calls.Peers() }

// Connections counts the data connections still registered.
func (s *Session) Connections() int { return s.controls.Len() }

// FlushEvents hands over the domain events produced since the last flush.
func (s *Session) FlushEvents() []event.DomainEvent {
	out := s.outbox
	s.outbox = nil
	return out
}

func (s *Session) FlushTelemetry() []event.Event {
	out := s.telemetry
	s.telemetry = nil
	return out
}

// HandleTransport is the single dispatch point for network activity.
func (s *Session) HandleTransport(ev transport.Event) {
	if s.Closed() {
		s.discardLate(ev)
		return
	}
	switch e := ev.(type) {
	case transport.InboundConnection:
		if !s.cfg.Hub {
			s.log.Debug("Refusing control connection, only the hub accepts them", "remote", e.Conn.RemoteID())
			_ = e.Conn.Close()
			return
		}
		s.controls.AddPending(e.Conn)
	case transport.ConnectionData:
		s.handleData(e.Conn, e.Data)
	case transport.ConnectionClosed:
		s.handleConnectionClosed(e.Conn)
	case transport.InboundCall:
		s.handleInboundCall(e.Call)
	case transport.RemoteStream:
		s.handleRemoteStream(e.Call, e.Stream)
	case transport.CallClosed:
		s.handleCallClosed(e.Call)
	case transport.TransportFailed:
		s.log.Warn("Transport failure", "error", e.Err)
		if !s.failed {
			s.failed = true
			s.notify(domain.SeverityWarning, "network problem, some participants may be unreachable", e.Err)
		}
	}
}

// HandleResult applies the outcome of a suspended operation.
func (s *Session) HandleResult(r Result) {
	switch res := r.(type) {
	case connectResult:
		s.onConnected(res)
	case micResult:
		s.onMicrophone(res)
	case callResult:
		s.onCallPlaced(res)
	case speakingResult:
		s.onSpeaking(res)
	}
}

func (s *Session) handleData(conn transport.DataConn, data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		s.log.Debug("Ignoring undecodable message", "remote", conn.RemoteID(), "error", err)
		return
	}
	if s.cfg.Hub {
		s.hubMessage(conn, in)
		return
	}
	if conn != s.controls.Hub() {
		s.log.Debug("Ignoring message from a connection that is not the hub", "remote", conn.RemoteID())
		return
	}
	s.peerMessage(in)
}

func (s *Session) handleConnectionClosed(conn transport.DataConn) {
	if !s.cfg.Hub {
		if conn == s.controls.Hub() {
			s.controls.Remove(conn)
			if s.state == domain.StateJoining {
				s.failJoin(errors.ErrConnectionClosed)
				return
			}
			s.notify(domain.SeverityWarning, "the host left, the panel is over", nil)
			s.close(domain.ReasonHostLeft)
		}
		return
	}
	participantID, bound := s.controls.Remove(conn)
	if !bound {
		return
	}
	removed, ok := s.roster.Remove(participantID)
	if !ok {
		return
	}
	s.log.Info("Participant left", "id", removed.ID)
	s.dropCall(removed.PeerID)
	s.broadcastRoster()
}

// send writes msg on conn. Failures are logged only; presence handling
// reacts to the close that follows a broken connection.
func (s *Session) send(conn transport.DataConn, from *protocol.Sender, msg protocol.Message) {
	data, err := protocol.Encode(from, msg)
	if err != nil {
		s.log.Error("Unable to encode message", "type", msg.Type(), "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		s.log.Debug("Unable to send message", "type", msg.Type(), "remote", conn.RemoteID(), "error", err)
	}
}

func (s *Session) sender() *protocol.Sender {
	return &protocol.Sender{ID: s.cfg.Self.ID, DisplayName: s.cfg.Self.DisplayName}
}

func (s *Session) self() (domain.Participant, bool) {
	return s.roster.Get(s.cfg.Self.ID)
}

func (s *Session) emit(e event.DomainEvent) {
	s.outbox = append(s.outbox, e)
}

func (s *Session) emitRoster() {
	s.emit(event.RosterChanged{Panel: s.panel.ID, Participants: s.roster.Participants(), At: s.now()})
}

func (s *Session) notify(severity domain.Severity, text string, err error) {
	s.emit(event.Notified{
		Panel:        s.panel.ID,
		Notification: domain.Notification{Severity: severity, Text: text, Err: err},
		At:           s.now(),
	})
}

func (s *Session) warn(err error) {
	s.notify(domain.SeverityWarning, err.Error(), err)
}

func (s *Session) postChat(from domain.Participant, text string, lang string, id string, sentAt time.Time) {
	msg := domain.Message{
		SenderID:   from.ID,
		SenderName: from.DisplayName,
		Content:    text,
		Lang:       lang,
		CreatedAt:  sentAt,
		Mine:       from.ID == s.cfg.Self.ID,
	}
	if parsed, err := uuid.Parse(id); err == nil {
		msg.ID = parsed
	}
	s.emit(event.ChatPosted{Panel: s.panel.ID, Message: msg})
}

func truncateRunes(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}

// close tears the session down. Calls go first so the microphone is stopped
// only once nothing references it.
func (s *Session) close(reason domain.CloseReason) {
	if s.Closed() {
		return
	}
	s.state = domain.StateFor(reason)
	s.log.Info("Closing session", "reason", reason)

	calls, orphans := s.calls.Clear()
	for _, c := range calls {
		_ = c.Conn.Close()
		s.detach(c)
	}
	for _, conn := range orphans {
		_ = conn.Close()
	}
	if s.local != nil {
		s.local.Stop()
		s.local = nil
	}
	for _, conn := range s.controls.Clear() {
		_ = conn.Close()
	}
	s.roster = domain.NewMirror(s.cfg.Limits)
	s.speaking = make(map[string]bool)

	s.emit(event.SessionClosed{Panel: s.panel.ID, SelfID: s.cfg.Self.ID, Reason: reason, At: s.now()})
}

// discardLate releases resources that reached a closed session.
func (s *Session) discardLate(ev transport.Event) {
	switch e := ev.(type) {
	case transport.InboundConnection:
		_ = e.Conn.Close()
	case transport.InboundCall:
		_ = e.Call.Close()
	case transport.RemoteStream:
		_ = e.Call.Close()
	}
}

func (s *Session) failJoin(err error) {
	wrapped := fmt.Errorf("%w: %v", errors.ErrJoinFailed, err)
	s.log.Warn("Join failed", "host", s.cfg.HostPeerID, "error", err)
	s.notify(domain.SeverityError, wrapped.Error(), wrapped)
	s.close(domain.ReasonJoinFailed)
}

func (s *Session) onConnected(res connectResult) {
	if s.Closed() {
		if res.conn != nil {
			_ = res.conn.Close()
		}
		return
	}
	if res.err != nil {
		s.failJoin(res.err)
		return
	}
	s.controls.SetHub(res.conn)
	data, err := protocol.Encode(s.sender(), protocol.Announce{ID: s.cfg.Self.ID, DisplayName: s.cfg.Self.DisplayName})
	if err != nil {
		s.failJoin(err)
		return
	}
	if err := res.conn.Send(data); err != nil {
		s.failJoin(err)
	}
}
