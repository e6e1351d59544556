package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"panel-lab/audio"
	"panel-lab/contract"
	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/media"
	"panel-lab/mocks"
	"panel-lab/moderation"
	"panel-lab/protocol"
	"panel-lab/transport/mem"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// inlineExecutor queues suspended operations; pump runs them on the test
// goroutine so every scenario is deterministic.
type inlineExecutor struct {
	ops     []func(ctx context.Context) Result
	watched int
}

func (e *inlineExecutor) Go(op func(ctx context.Context) Result) { e.ops = append(e.ops, op) }

// Speaking monitors are not run here.
func (e *inlineExecutor) Watch(contract.Worker) { e.watched++ }

func (e *inlineExecutor) Post(Result) {}

type countingMic struct {
	acquired int
	stopped  int
}

func (m *countingMic) Acquire(context.Context) (*media.Stream, error) {
	m.acquired++
	return media.NewStream(fmt.Sprintf("mic-%d", m.acquired), func() { m.stopped++ }), nil
}

type node struct {
	session   *Session
	tr        *mem.Transport
	exec      *inlineExecutor
	mic       *countingMic
	sink      *audio.DiscardSink
	events    []event.DomainEvent
	telemetry []event.Event
}

type option func(*Config, *Deps)

func withLimits(limits domain.Limits) option {
	return func(c *Config, _ *Deps) { c.Limits = limits }
}

func withMicrophone(mic contract.Microphone) option {
	return func(_ *Config, d *Deps) { d.Microphone = mic }
}

func withModerator(m contract.Moderator) option {
	return func(_ *Config, d *Deps) { d.Moderator = m }
}

func withHostPeer(peerID string) option {
	return func(c *Config, _ *Deps) { c.HostPeerID = peerID }
}

func newNode(t *testing.T, network *mem.Network, id, peerID string, hub bool, opts ...option) *node {
	t.Helper()
	tr, err := network.Join(peerID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	n := &node{tr: tr, exec: &inlineExecutor{}, mic: &countingMic{}, sink: audio.NewDiscardSink()}
	cfg := Config{
		Self:       domain.Participant{ID: id, DisplayName: strings.ToUpper(id)},
		Panel:      domain.PanelInfo{ID: "panel-1", Title: "Personal branding 101"},
		Hub:        hub,
		HostPeerID: "peer-host",
	}
	deps := Deps{Transport: tr, Executor: n.exec, Microphone: n.mic, Sink: n.sink}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	n.session = NewSession(cfg, deps, logs.GetLoggerFromLevel(slog.LevelError))
	n.session.Start()
	return n
}

func (n *node) step() bool {
	progress := false
	ops := n.exec.ops
	n.exec.ops = nil
	for _, op := range ops {
		n.session.HandleResult(op(context.Background()))
		progress = true
	}
	for drained := false; !drained; {
		select {
		case ev := <-n.tr.Events():
			n.session.HandleTransport(ev)
			progress = true
		default:
			drained = true
		}
	}
	n.events = append(n.events, n.session.FlushEvents()...)
	n.telemetry = append(n.telemetry, n.session.FlushTelemetry()...)
	return progress
}

// pump runs every node until none of them has anything left to do.
func pump(t *testing.T, nodes ...*node) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		progress := false
		for _, n := range nodes {
			if n.step() {
				progress = true
			}
		}
		if !progress {
			return
		}
	}
	t.Fatal("nodes did not settle")
}

func (n *node) command(t *testing.T, cmd domain.Command, nodes ...*node) {
	t.Helper()
	n.session.HandleCommand(cmd)
	pump(t, append(nodes, n)...)
}

// rawSend bypasses the local permission checks of a peer.
func (n *node) rawSend(t *testing.T, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(n.session.sender(), msg)
	require.NoError(t, err)
	require.NoError(t, n.session.controls.Hub().Send(data))
}

func eventsOf[T event.DomainEvent](n *node) []T {
	var out []T
	for _, e := range n.events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func closedReason(n *node) (domain.CloseReason, bool) {
	closed := eventsOf[event.SessionClosed](n)
	if len(closed) == 0 {
		return "", false
	}
	return closed[len(closed)-1].Reason, true
}

func notifications(n *node) []string {
	return lo.Map(eventsOf[event.Notified](n), func(e event.Notified, _ int) string {
		return e.Notification.Text
	})
}

func summary(participants []domain.Participant) []string {
	return lo.Map(participants, func(p domain.Participant, _ int) string {
		flags := []string{string(p.Role)}
		if p.HandRaised {
			flags = append(flags, "hand")
		}
		if p.Muted {
			flags = append(flags, "muted")
		}
		return fmt.Sprintf("%s(%s)", p.ID, strings.Join(flags, ","))
	})
}

func participant(n *node, id string) domain.Participant {
	p, _ := lo.Find(n.session.Participants(), func(p domain.Participant) bool { return p.ID == id })
	return p
}

func TestSession_Example_Scenario(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()

	// Given a hub creating the panel
	host := newNode(t, network, "host", "peer-host", true)
	pump(t, host)
	req.Equal(domain.StateActive, host.session.State())
	req.Equal([]string{"host(host)"}, summary(host.session.Participants()))

	// When A joins
	a := newNode(t, network, "a", "peer-a", false)
	pump(t, host, a)

	// Then both sides see the host and A as listener
	req.Equal([]string{"host(host)", "a(listener)"}, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), a.session.Participants())
	req.Equal(domain.StateActive, a.session.State())
	req.Len(eventsOf[event.SessionStarted](a), 1)

	// And the host's audio reaches A
	req.Equal([]string{"peer-host"}, a.sink.Attached())
	req.Equal(0, a.mic.acquired)

	// When A raises a hand
	a.command(t, domain.RaiseHandCommand{}, host)
	req.Equal([]string{"host(host)", "a(listener,hand)"}, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), a.session.Participants())

	// When the host approves A
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a)
	req.Equal([]string{"host(host)", "a(speaker)"}, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), a.session.Participants())
	req.Equal(domain.RoleSpeaker, a.session.Role())

	// Then A publishes and the host hears A
	req.Equal(1, a.mic.acquired)
	req.Equal([]string{"peer-a"}, host.sink.Attached())
	req.Equal([]string{"peer-host"}, a.sink.Attached())

	// When A's connection closes
	req.NoError(a.tr.Close())
	pump(t, host)

	// Then the roster is back to the host alone
	req.Equal([]string{"host(host)"}, summary(host.session.Participants()))
	req.Empty(host.session.CallPeers())
	req.Empty(host.sink.Attached())
}

func TestSession_Roster_Converges(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	c := newNode(t, network, "c", "peer-c", false)
	nodes := []*node{host, a, b, c}

	// When participants join and act
	pump(t, nodes...)
	b.command(t, domain.RaiseHandCommand{}, host, a, c)
	host.command(t, domain.AssignCohostCommand{ParticipantID: "a"}, a, b, c)
	a.command(t, domain.ApproveSpeakerCommand{ParticipantID: "b"}, host, c)
	c.command(t, domain.LeaveCommand{}, host, a, b)

	// Then every mirror equals the hub's roster
	req.Equal([]string{"host(host)", "a(cohost)", "b(speaker)"}, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), a.session.Participants())
	req.Equal(host.session.Participants(), b.session.Participants())
	req.NoError(validate(host.session.Participants()))

	// And every publisher is heard by every other participant
	req.ElementsMatch([]string{"peer-a", "peer-b"}, host.sink.Attached())
	req.ElementsMatch([]string{"peer-host", "peer-b"}, a.sink.Attached())
	req.ElementsMatch([]string{"peer-host", "peer-a"}, b.sink.Attached())
}

func validate(participants []domain.Participant) error {
	roster := domain.NewMirror(domain.DefaultLimits())
	roster.Replace(participants)
	return roster.Validate()
}

func TestSession_Hand_Raise_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	pump(t, host, a)

	// When A raises a hand twice, once through the hub directly
	a.command(t, domain.RaiseHandCommand{}, host)
	updates := len(eventsOf[event.RosterChanged](host))
	a.rawSend(t, protocol.RaiseHand{})
	pump(t, host, a)

	// Then nothing changes the second time
	req.Equal([]string{"host(host)", "a(listener,hand)"}, summary(host.session.Participants()))
	req.Len(eventsOf[event.RosterChanged](host), updates)

	// When A lowers it twice
	a.command(t, domain.LowerHandCommand{}, host)
	a.command(t, domain.LowerHandCommand{}, host)

	// Then the hand is down and only one change was reported
	req.Equal([]string{"host(host)", "a(listener)"}, summary(a.session.Participants()))
	lowered := lo.Filter(eventsOf[event.HandChanged](a), func(e event.HandChanged, _ int) bool { return !e.Raised })
	req.Len(lowered, 1)
}

func TestSession_Only_Listeners_Raise_Hands(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	pump(t, host)

	// When the host raises a hand
	host.command(t, domain.RaiseHandCommand{})

	// Then it is refused locally
	req.Contains(notifications(host), "participant is not a listener")
	req.Equal([]string{"host(host)"}, summary(host.session.Participants()))
}

func TestSession_Capacity_Is_Enforced(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	limits := domain.Limits{MaxCohosts: 1, MaxSpeakers: 1}
	host := newNode(t, network, "host", "peer-host", true, withLimits(limits))
	a := newNode(t, network, "a", "peer-a", false, withLimits(limits))
	b := newNode(t, network, "b", "peer-b", false, withLimits(limits))
	c := newNode(t, network, "c", "peer-c", false, withLimits(limits))
	pump(t, host, a, b, c)

	// Given A speaker and B cohost
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a, b, c)
	host.command(t, domain.AssignCohostCommand{ParticipantID: "b"}, a, b, c)

	// When the host approves a second speaker
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "c"}, a, b, c)

	// Then the controller refuses it locally with a warning
	req.Contains(notifications(host), "maximum number of speakers reached")
	req.Equal(domain.RoleListener, participant(host, "c").Role)

	// When the cohost bypasses its own check and assigns a second cohost
	b.rawSend(t, protocol.AssignCohost{TargetID: "a"})
	pump(t, host, a, b, c)

	// Then the hub drops it
	req.Equal([]string{"host(host)", "a(speaker)", "b(cohost)", "c(listener)"}, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), c.session.Participants())
}

func TestSession_Hub_Drops_Unauthorized_Messages(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	pump(t, host, a, b)

	// When a listener forges controller messages
	a.rawSend(t, protocol.SpeakApproved{TargetID: "a"})
	a.rawSend(t, protocol.Kick{TargetID: "b"})
	a.rawSend(t, protocol.RoomEnded{Reason: "bye"})
	a.rawSend(t, protocol.ParticipantsUpdate{Participants: []domain.Participant{{ID: "a", Role: domain.RoleHost}}})
	pump(t, host, a, b)

	// Then none of them has an effect
	req.Equal([]string{"host(host)", "a(listener)", "b(listener)"}, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), b.session.Participants())
	req.Equal(domain.StateActive, b.session.State())
	req.Equal(domain.StateActive, host.session.State())
}

func TestSession_Local_Permission_Check(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	pump(t, host, a, b)

	// When a listener tries to kick someone, or a cohost targets the host
	a.command(t, domain.KickCommand{ParticipantID: "b"}, host, b)
	host.command(t, domain.AssignCohostCommand{ParticipantID: "a"}, a, b)
	a.command(t, domain.ForceMuteCommand{ParticipantID: "host"}, host, b)
	a.command(t, domain.EndPanelCommand{}, host, b)

	// Then each is refused with a warning and nothing is sent
	refused := lo.Filter(notifications(a), func(text string, _ int) bool { return text == "action not allowed for this role" })
	req.Len(refused, 3)
	req.Equal([]string{"host(host)", "a(cohost)", "b(listener)"}, summary(host.session.Participants()))
	req.False(participant(host, "host").Muted)
}

func TestSession_Kick(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	pump(t, host, a, b)
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a, b)

	// When the host kicks A
	host.command(t, domain.KickCommand{ParticipantID: "a", Reason: "spam"}, a, b)

	// Then A is removed everywhere and torn down
	reason, closed := closedReason(a)
	req.True(closed)
	req.Equal(domain.ReasonKicked, reason)
	req.Equal(domain.StateRemoved, a.session.State())
	req.Contains(notifications(a), "you were removed from the panel: spam")
	req.Equal([]string{"host(host)", "b(listener)"}, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), b.session.Participants())

	// And nothing of A is left at the hub
	req.Equal(1, host.session.Connections())
	req.ElementsMatch([]string{"peer-b"}, host.session.CallPeers())
	req.Empty(a.session.CallPeers())
	req.Equal(1, a.mic.stopped)

	kicked := eventsOf[event.ParticipantKicked](host)
	req.Len(kicked, 1)
	req.Equal("a", kicked[0].TargetID)
}

func TestSession_Room_Ended(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	pump(t, host, a, b)

	// When the host ends the panel
	host.command(t, domain.EndPanelCommand{}, a, b)

	// Then everybody tears down with reason room_ended
	for _, n := range []*node{host, a, b} {
		reason, closed := closedReason(n)
		req.True(closed)
		req.Equal(domain.ReasonEnded, reason)
		req.Equal(domain.StateEnded, n.session.State())
		req.Zero(n.session.Connections())
		req.Empty(n.session.CallPeers())
	}
	req.Contains(notifications(a), "the panel has ended: ended by host")
	req.Len(eventsOf[event.PanelEnded](host), 1)
	req.Equal(1, host.mic.stopped)

	// And commands after the end are ignored
	a.command(t, domain.RaiseHandCommand{}, host)
	req.Len(eventsOf[event.SessionClosed](a), 1)
}

func TestSession_Host_Left(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	pump(t, host, a)

	// When the host goes away without ending the panel
	host.command(t, domain.LeaveCommand{}, a)

	// Then the peer closes with host_left
	reason, closed := closedReason(a)
	req.True(closed)
	req.Equal(domain.ReasonHostLeft, reason)
	req.Empty(a.session.Participants())
	req.Empty(a.sink.Attached())
	hostReason, _ := closedReason(host)
	req.Equal(domain.ReasonLeft, hostReason)
}

func TestSession_Join_Failed(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()

	// Given nobody behind the host peer id
	a := newNode(t, network, "a", "peer-a", false, withHostPeer("peer-gone"))

	// When A joins
	pump(t, a)

	// Then it fails once without retrying
	reason, closed := closedReason(a)
	req.True(closed)
	req.Equal(domain.ReasonJoinFailed, reason)
	notified := eventsOf[event.Notified](a)
	req.Len(notified, 1)
	req.Equal(domain.SeverityError, notified[0].Notification.Severity)
	req.True(strings.HasPrefix(notified[0].Notification.Text, "unable to join panel"))
	req.Empty(a.exec.ops)
}

func TestSession_Hub_Refuses_Host_Identity(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)

	// When a peer announces itself with the host id
	impostor := newNode(t, network, "host", "peer-x", false)
	pump(t, host, impostor)

	// Then the hub closes the connection and the join fails
	reason, _ := closedReason(impostor)
	req.Equal(domain.ReasonJoinFailed, reason)
	req.Equal([]string{"host(host)"}, summary(host.session.Participants()))
	req.Zero(host.session.Connections())
}

func TestSession_Reconnect_Keeps_Participant_State(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	pump(t, host, a)
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a)

	// When A connects again from another peer id
	again := newNode(t, network, "a", "peer-a2", false)
	pump(t, host, a, again)

	// Then the entry is kept and rebound
	req.Equal([]string{"host(host)", "a(speaker)"}, summary(host.session.Participants()))
	req.Equal("peer-a2", participant(host, "a").PeerID)
	req.Equal(domain.RoleSpeaker, again.session.Role())
	req.Equal(1, host.session.Connections())

	// And the old session lost its hub connection
	req.True(a.session.Closed())
	req.ElementsMatch([]string{"peer-a2"}, host.session.CallPeers())
}

func TestSession_Cleanup_Is_Complete(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	pump(t, host, a, b)
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a, b)
	req.ElementsMatch([]string{"peer-host", "peer-b"}, a.session.CallPeers())

	// When A leaves
	a.command(t, domain.LeaveCommand{}, host, b)

	// Then A holds nothing anymore
	reason, _ := closedReason(a)
	req.Equal(domain.ReasonLeft, reason)
	req.Empty(a.session.CallPeers())
	req.Zero(a.session.Connections())
	req.Empty(a.session.Participants())
	req.Empty(a.sink.Attached())
	req.Equal(1, a.mic.acquired)
	req.Equal(1, a.mic.stopped)

	// And the others forgot A
	req.Equal([]string{"host(host)", "b(listener)"}, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), b.session.Participants())
	req.ElementsMatch([]string{"peer-b"}, host.session.CallPeers())
	req.Equal([]string{"peer-host"}, b.sink.Attached())
}

func TestSession_Microphone_Denied_Is_Notified_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	network := mem.NewNetwork()
	mic := mocks.NewMockMicrophone(ctrl)
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false, withMicrophone(mic))
	pump(t, host, a)

	// Given a device that refuses access
	mic.EXPECT().Acquire(gomock.Any()).Return(nil, fmt.Errorf("no capture device")).Times(1)

	// When A is promoted twice
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a)
	host.command(t, domain.AssignCohostCommand{ParticipantID: "a"}, a)

	// Then A stays in the panel without publishing, warned once
	denied := lo.Filter(notifications(a), func(text string, _ int) bool { return text == "microphone access denied" })
	req.Len(denied, 1)
	req.Equal(domain.RoleCohost, a.session.Role())
	req.Equal(domain.StateActive, a.session.State())
	req.Empty(host.sink.Attached())
}

func TestSession_Force_Mute_And_Toggle(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	pump(t, host, a)
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a)

	// When the host force-mutes A
	host.command(t, domain.ForceMuteCommand{ParticipantID: "a"}, a)

	// Then A's track is disabled but the call is kept
	req.True(a.session.Muted())
	req.False(a.session.local.Enabled())
	req.True(participant(host, "a").Muted)
	req.Equal([]string{"peer-a"}, host.sink.Attached())

	// When A unmutes
	a.command(t, domain.ToggleMuteCommand{}, host)

	// Then the track flows again
	req.False(a.session.Muted())
	req.True(a.session.local.Enabled())
	roles := eventsOf[event.RoleChanged](a)
	req.False(roles[len(roles)-1].Muted)
}

func TestSession_Toggle_Mute_Without_Microphone(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	pump(t, host, a)

	// When a listener toggles mute
	a.command(t, domain.ToggleMuteCommand{}, host)

	// Then it is refused
	req.False(a.session.Muted())
	req.Contains(notifications(a), "microphone is not active")
}

func TestSession_Mute_All(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	c := newNode(t, network, "c", "peer-c", false)
	pump(t, host, a, b, c)
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a, b, c)
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "b"}, a, b, c)

	// When the host mutes everyone
	host.command(t, domain.MuteAllCommand{}, a, b, c)

	// Then every speaker is muted, the host and listeners are untouched
	req.Equal([]string{"host(host)", "a(speaker,muted)", "b(speaker,muted)", "c(listener)"},
		summary(host.session.Participants()))
	req.Equal(host.session.Participants(), c.session.Participants())
	req.True(a.session.Muted())
	req.True(b.session.Muted())
	req.Len(eventsOf[event.AllMuted](host), 1)
}

func TestSession_Mute_All_Reaches_Self_Unmuted_Speakers(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	pump(t, host, a)
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "a"}, a)

	// Given A force-muted, then unmuted by A itself
	host.command(t, domain.ForceMuteCommand{ParticipantID: "a"}, a)
	a.command(t, domain.ToggleMuteCommand{}, host)
	req.False(a.session.Muted())
	req.True(participant(host, "a").Muted)

	// When the host mutes everyone
	host.command(t, domain.MuteAllCommand{}, a)

	// Then A is muted again even though the hub still had it flagged muted
	req.True(a.session.Muted())
	req.False(a.session.local.Enabled())
	req.Equal([]string{"host(host)", "a(speaker,muted)"}, summary(host.session.Participants()))
}

func TestSession_Speak_Approved_To_Non_Listener_Is_A_No_Op(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	pump(t, host, a, b)

	// Given A cohost and B speaker
	host.command(t, domain.AssignCohostCommand{ParticipantID: "a"}, a, b)
	host.command(t, domain.ApproveSpeakerCommand{ParticipantID: "b"}, a, b)
	before := summary(host.session.Participants())
	req.Equal([]string{"host(host)", "a(cohost)", "b(speaker)"}, before)
	updates := len(eventsOf[event.RosterChanged](host))
	approvals := lo.Count(notifications(b), "you can speak now")
	mics := b.mic.acquired

	// When A approves B again, and approves itself, bypassing local checks
	a.rawSend(t, protocol.SpeakApproved{TargetID: "b"})
	a.rawSend(t, protocol.SpeakApproved{TargetID: "a"})
	pump(t, host, a, b)

	// Then nobody changes role, nothing is rebroadcast and nothing reaches B
	req.Equal(before, summary(host.session.Participants()))
	req.Equal(host.session.Participants(), b.session.Participants())
	req.Len(eventsOf[event.RosterChanged](host), updates)
	req.Equal(approvals, lo.Count(notifications(b), "you can speak now"))
	req.Equal(mics, b.mic.acquired)
	req.Equal(domain.RoleCohost, a.session.Role())
}

func TestSession_Chat(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	moderator, err := moderation.NewModerator([]string{"badword"}, '*', logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(err)
	host := newNode(t, network, "host", "peer-host", true, withModerator(moderator))
	a := newNode(t, network, "a", "peer-a", false)
	b := newNode(t, network, "b", "peer-b", false)
	pump(t, host, a, b)

	// When A posts a message
	a.command(t, domain.PostChatCommand{Text: "  this talk is a badword  "}, host, b)

	// Then everybody gets the censored text, flagged mine only for A
	for _, n := range []*node{host, a, b} {
		posted := eventsOf[event.ChatPosted](n)
		req.Len(posted, 1)
		req.Equal("this talk is a *******", posted[0].Message.Content)
		req.Equal("a", posted[0].Message.SenderID)
		req.Equal("A", posted[0].Message.SenderName)
		req.Equal(n == a, posted[0].Message.Mine)
		req.NotEqual([16]byte{}, [16]byte(posted[0].Message.ID))
	}
	req.Equal(eventsOf[event.ChatPosted](host)[0].Message.ID, eventsOf[event.ChatPosted](b)[0].Message.ID)

	// And the hub reported the censorship
	hits := lo.Filter(host.telemetry, func(e event.Event, _ int) bool { return e.Type == event.CensorshipHitType })
	req.Len(hits, 1)

	// When the host posts
	host.command(t, domain.PostChatCommand{Text: "welcome"}, a, b)

	// Then it is mine for the host only
	hostPosts := eventsOf[event.ChatPosted](host)
	req.True(hostPosts[len(hostPosts)-1].Message.Mine)
	aPosts := eventsOf[event.ChatPosted](a)
	req.False(aPosts[len(aPosts)-1].Message.Mine)
}

func TestSession_Chat_Is_Truncated(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)
	a := newNode(t, network, "a", "peer-a", false)
	pump(t, host, a)

	// When A posts more than the allowed length
	a.command(t, domain.PostChatCommand{Text: strings.Repeat("é", DefaultMaxChatLength+10)}, host)

	// Then the relayed text is capped in runes
	posted := eventsOf[event.ChatPosted](host)
	req.Len(posted, 1)
	req.Equal(DefaultMaxChatLength, len([]rune(posted[0].Message.Content)))
}

func TestSession_Commands_While_Joining(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	newNode(t, network, "host", "peer-host", true)

	// Given a peer that has not connected yet
	a := newNode(t, network, "a", "peer-a", false)

	// When it raises a hand before room_state
	a.session.HandleCommand(domain.RaiseHandCommand{})

	// Then it is refused and the peer can still leave
	req.Contains(lo.Map(a.session.FlushEvents(), func(e event.DomainEvent, _ int) string {
		if n, ok := e.(event.Notified); ok {
			return n.Notification.Text
		}
		return ""
	}), "still joining the panel")
	a.session.HandleCommand(domain.LeaveCommand{})
	req.Equal(domain.StateLeft, a.session.State())
}

func TestSession_Late_Results_Are_Released(t *testing.T) {
	req := require.New(t)
	network := mem.NewNetwork()
	host := newNode(t, network, "host", "peer-host", true)

	// Given a session that closed while its microphone was being acquired
	host.session.HandleCommand(domain.LeaveCommand{})
	req.Len(host.exec.ops, 1)

	// When the acquisition completes
	pump(t, host)

	// Then the late stream is stopped
	req.Equal(1, host.mic.acquired)
	req.Equal(1, host.mic.stopped)
}
