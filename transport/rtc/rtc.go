// Package rtc implements the panel transport on pion/webrtc.
//
// Like a browser peer library, every data connection and every call gets its
// own PeerConnection. Session descriptions travel through the signaling relay
// using vanilla ICE: all candidates are gathered before the SDP is sent, so
// each connection needs exactly one offer/answer round-trip. Audio is PCMU at
// 8 kHz in 20 ms samples.
package rtc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"panel-lab/errors"
	"panel-lab/media"
	"panel-lab/signaling"
	"panel-lab/transport"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

var _ transport.Transport = (*Transport)(nil)

const (
	iceGatherTimeout = 15 * time.Second
	answerTimeout    = 30 * time.Second
	eventBuffer      = 256
	controlLabel     = "control"
)

type Transport struct {
	signal     *signaling.Client
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	log        *slog.Logger
	events     chan transport.Event

	mu      sync.Mutex
	pending map[string]chan signaling.Message
	conns   map[string]*dataConn
	calls   map[string]*callConn

	closed    chan struct{}
	closeOnce sync.Once
}

// New registers peerID on the signaling relay and starts listening for offers.
// An empty peerID lets the relay choose one.
func New(ctx context.Context, signalURL, peerID string, iceServers []webrtc.ICEServer, log *slog.Logger) (*Transport, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	client, err := signaling.Dial(ctx, signalURL, peerID)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		signal:     client,
		api:        api,
		iceServers: iceServers,
		log:        log,
		events:     make(chan transport.Event, eventBuffer),
		pending:    make(map[string]chan signaling.Message),
		conns:      make(map[string]*dataConn),
		calls:      make(map[string]*callConn),
		closed:     make(chan struct{}),
	}
	go t.signalLoop()
	return t, nil
}

// newAPI builds a pion API that only negotiates PCMU audio and accepts
// loopback candidates for same-host peers.
func newAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: pcmu,
		PayloadType:        0,
	}, webrtc.RTPCodecTypeAudio)
	if err != nil {
		return nil, fmt.Errorf("register PCMU codec: %w", err)
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = logging.LogLevelWarn

	settingEngine := webrtc.SettingEngine{LoggerFactory: loggerFactory}
	settingEngine.SetIncludeLoopbackCandidate(true)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	), nil
}

var pcmu = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypePCMU,
	ClockRate: media.SampleRate,
	Channels:  1,
}

func (t *Transport) ID() string                     { return t.signal.ID() }
func (t *Transport) Events() <-chan transport.Event { return t.events }

func (t *Transport) emit(evt transport.Event) {
	select {
	case t.events <- evt:
	case <-t.closed:
	}
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *Transport) newPeerConnection() (*webrtc.PeerConnection, error) {
	return t.api.NewPeerConnection(webrtc.Configuration{ICEServers: t.iceServers})
}

func (t *Transport) Connect(ctx context.Context, peerID string) (transport.DataConn, error) {
	if t.isClosed() {
		return nil, errors.ErrTransportClosed
	}
	pc, err := t.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel(controlLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	conn := &dataConn{owner: t, id: uuid.NewString(), remoteID: peerID, pc: pc}
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	conn.bind(dc)
	t.watch(pc, conn.Close)

	if err := t.negotiate(ctx, pc, conn.id, peerID, signaling.KindData); err != nil {
		conn.abort()
		return nil, err
	}

	select {
	case <-opened:
	case <-ctx.Done():
		conn.abort()
		return nil, ctx.Err()
	case <-t.closed:
		conn.abort()
		return nil, errors.ErrTransportClosed
	case <-time.After(answerTimeout):
		conn.abort()
		return nil, fmt.Errorf("%w: data channel to %s did not open", errors.ErrPeerUnavailable, peerID)
	}

	t.mu.Lock()
	t.conns[conn.id] = conn
	t.mu.Unlock()
	conn.live.Store(true)
	return conn, nil
}

func (t *Transport) Call(ctx context.Context, peerID string, local *media.Stream) (transport.CallConn, error) {
	if t.isClosed() {
		return nil, errors.ErrTransportClosed
	}
	pc, err := t.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	call := &callConn{owner: t, id: uuid.NewString(), remoteID: peerID, pc: pc}
	if local != nil {
		if err := call.addLocal(local); err != nil {
			call.abort()
			return nil, err
		}
	} else {
		_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			call.abort()
			return nil, fmt.Errorf("add receive-only transceiver: %w", err)
		}
	}
	pc.OnTrack(call.onTrack)
	t.watch(pc, call.Close)

	t.mu.Lock()
	t.calls[call.id] = call
	t.mu.Unlock()

	if err := t.negotiate(ctx, pc, call.id, peerID, signaling.KindMedia); err != nil {
		t.forgetCall(call.id)
		call.abort()
		return nil, err
	}
	call.live.Store(true)
	return call, nil
}

// watch closes the connection once pion gives up on it.
func (t *Transport) watch(pc *webrtc.PeerConnection, closeFn func() error) {
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			_ = closeFn()
		case webrtc.PeerConnectionStateDisconnected:
			t.log.Debug("Peer connection disconnected", "state", state.String())
		}
	})
}

// negotiate sends a complete offer and applies the answer.
func (t *Transport) negotiate(ctx context.Context, pc *webrtc.PeerConnection, connectionID, peerID string, kind signaling.Kind) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	if err := waitGathering(ctx, gatherComplete); err != nil {
		return err
	}

	replies := t.expect(connectionID)
	defer t.forget(connectionID)

	err = t.signal.Send(signaling.Message{
		Type:         signaling.TypeOffer,
		To:           peerID,
		ConnectionID: connectionID,
		Kind:         kind,
		SDP:          pc.LocalDescription().SDP,
	})
	if err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	select {
	case reply := <-replies:
		if reply.Type == signaling.TypeError {
			return fmt.Errorf("%w: %s (%s)", errors.ErrPeerUnavailable, peerID, reply.Error)
		}
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: reply.SDP}
		if err := pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		return nil
	case <-time.After(answerTimeout):
		return fmt.Errorf("%w: no answer from %s", errors.ErrPeerUnavailable, peerID)
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return errors.ErrTransportClosed
	}
}

// answer applies a remote offer and replies with a complete answer.
// beforeAnswer runs once the remote description is set, to attach local tracks.
func (t *Transport) answer(pc *webrtc.PeerConnection, offer signaling.Message, beforeAnswer func() error) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if beforeAnswer != nil {
		if err := beforeAnswer(); err != nil {
			return err
		}
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	if err := waitGathering(context.Background(), gatherComplete); err != nil {
		return err
	}
	return t.signal.Send(signaling.Message{
		Type:         signaling.TypeAnswer,
		To:           offer.From,
		ConnectionID: offer.ConnectionID,
		Kind:         offer.Kind,
		SDP:          pc.LocalDescription().SDP,
	})
}

func waitGathering(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) expect(connectionID string) chan signaling.Message {
	ch := make(chan signaling.Message, 1)
	t.mu.Lock()
	t.pending[connectionID] = ch
	t.mu.Unlock()
	return ch
}

func (t *Transport) forget(connectionID string) {
	t.mu.Lock()
	delete(t.pending, connectionID)
	t.mu.Unlock()
}

func (t *Transport) forgetConn(id string) {
	t.mu.Lock()
	delete(t.conns, id)
	t.mu.Unlock()
}

func (t *Transport) forgetCall(id string) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}

func (t *Transport) signalLoop() {
	for msg := range t.signal.Messages() {
		switch msg.Type {
		case signaling.TypeOffer:
			switch msg.Kind {
			case signaling.KindData:
				go t.acceptData(msg)
			case signaling.KindMedia:
				t.acceptCall(msg)
			default:
				t.log.Debug("Ignoring offer of unknown kind", "kind", msg.Kind, "from", msg.From)
			}
		case signaling.TypeAnswer, signaling.TypeError:
			t.mu.Lock()
			ch, ok := t.pending[msg.ConnectionID]
			t.mu.Unlock()
			if ok {
				select {
				case ch <- msg:
				default:
				}
			}
		case signaling.TypeLeave:
			t.remoteLeave(msg.ConnectionID)
		}
	}
	if !t.isClosed() {
		t.emit(transport.TransportFailed{Err: fmt.Errorf("%w: signaling relay lost", errors.ErrTransportClosed)})
	}
}

func (t *Transport) remoteLeave(connectionID string) {
	t.mu.Lock()
	conn := t.conns[connectionID]
	call := t.calls[connectionID]
	t.mu.Unlock()
	if conn != nil {
		conn.shutdown(false)
	}
	if call != nil {
		call.shutdown(false)
	}
}

func (t *Transport) acceptData(offer signaling.Message) {
	pc, err := t.newPeerConnection()
	if err != nil {
		t.log.Warn("Cannot accept data connection", "from", offer.From, "error", err)
		return
	}
	conn := &dataConn{owner: t, id: offer.ConnectionID, remoteID: offer.From, pc: pc, inbound: true}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != controlLabel {
			return
		}
		conn.bind(dc)
		dc.OnOpen(conn.markInboundOpen)
	})
	t.watch(pc, conn.Close)

	if err := t.answer(pc, offer, nil); err != nil {
		t.log.Warn("Answering data connection failed", "from", offer.From, "error", err)
		conn.abort()
	}
}

func (t *Transport) acceptCall(offer signaling.Message) {
	pc, err := t.newPeerConnection()
	if err != nil {
		t.log.Warn("Cannot accept call", "from", offer.From, "error", err)
		return
	}
	call := &callConn{owner: t, id: offer.ConnectionID, remoteID: offer.From, pc: pc, offer: &offer}
	pc.OnTrack(call.onTrack)
	t.watch(pc, call.Close)

	t.mu.Lock()
	t.calls[call.id] = call
	t.mu.Unlock()
	call.live.Store(true)
	t.emit(transport.InboundCall{Call: call})
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	t.mu.Lock()
	conns := make([]*dataConn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	calls := make([]*callConn, 0, len(t.calls))
	for _, c := range t.calls {
		calls = append(calls, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	for _, c := range calls {
		_ = c.Close()
	}
	return t.signal.Close()
}
