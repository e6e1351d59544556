package runtime

import (
	"context"
	"fmt"

	"panel-lab/audio"
	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/errors"
	"panel-lab/media"
	"panel-lab/runtime/workers"
	"panel-lab/transport"
)

// requestMicrophone acquires the capture device the first time it is needed.
// A denied device is never asked for again in this session.
func (s *Session) requestMicrophone() {
	if s.micState != micIdle || s.Closed() {
		return
	}
	if s.mic == nil {
		s.micState = micDenied
		s.notify(domain.SeverityWarning, errors.ErrMicrophoneDenied.Error(), errors.ErrMicrophoneDenied)
		return
	}
	s.micState = micAcquiring
	mic := s.mic
	s.exec.Go(func(ctx context.Context) Result {
		stream, err := mic.Acquire(ctx)
		return micResult{stream: stream, err: err}
	})
}

func (s *Session) onMicrophone(res micResult) {
	if s.Closed() {
		if res.stream != nil {
			res.stream.Stop()
		}
		return
	}
	if res.err != nil {
		s.micState = micDenied
		s.log.Warn("Microphone unavailable", "error", res.err)
		s.notify(domain.SeverityWarning, errors.ErrMicrophoneDenied.Error(), res.err)
		return
	}
	s.micState = micReady
	s.local = res.stream
	s.local.SetEnabled(!s.muted)
	s.watchSpeaking(s.cfg.Self.PeerID, s.local)
	s.ensurePublishing()
}

func (s *Session) publishing() bool {
	return !s.Closed() && s.role.CanSpeak() && s.micState == micReady
}

// ensurePublishing dials every roster member that does not receive the local
// microphone yet. A receive-only call with that member is hung up first; the
// fresh call replaces it on both sides.
func (s *Session) ensurePublishing() {
	if !s.publishing() {
		return
	}
	for _, p := range s.roster.Participants() {
		if p.ID == s.cfg.Self.ID || p.PeerID == "" || !s.calls.NeedsCall(p.PeerID) {
			continue
		}
		s.dropCall(p.PeerID)
		s.dial(p.PeerID)
	}
}

func (s *Session) dial(peerID string) {
	s.calls.Dialing(peerID)
	local := s.local
	s.exec.Go(func(ctx context.Context) Result {
		call, err := s.transport.Call(ctx, peerID, local)
		return callResult{peerID: peerID, call: call, err: err}
	})
}

func (s *Session) onCallPlaced(res callResult) {
	if s.Closed() {
		if res.call != nil {
			_ = res.call.Close()
		}
		return
	}
	if res.err != nil {
		s.calls.DialFailed(res.peerID)
		s.log.Warn("Unable to call peer", "peer", res.peerID, "error", res.err)
		s.notify(domain.SeverityWarning, fmt.Sprintf("unable to reach %s", s.nameOf(res.peerID)), res.err)
		return
	}
	if _, ok := s.roster.ByPeer(res.peerID); !ok {
		s.calls.DialFailed(res.peerID)
		_ = res.call.Close()
		return
	}
	call, replaced, ok := s.calls.Dialed(res.peerID, res.call)
	if !ok {
		s.log.Debug("Call superseded by the peer's own call", "peer", res.peerID)
		_ = res.call.Close()
		return
	}
	if replaced != nil {
		_ = replaced.Conn.Close()
		s.detach(replaced)
	}
	if call.Remote != nil {
		s.attach(call)
	}
}

func (s *Session) handleInboundCall(conn transport.CallConn) {
	if s.state == domain.StateActive {
		if _, ok := s.roster.ByPeer(conn.RemoteID()); !ok {
			s.log.Debug("Refusing call from a peer outside the roster", "peer", conn.RemoteID())
			_ = conn.Close()
			return
		}
	}
	call, replaced, ok := s.calls.Inbound(conn)
	if !ok {
		s.log.Debug("Refusing concurrent call, ours wins", "peer", conn.RemoteID())
		_ = conn.Close()
		return
	}
	if replaced != nil {
		_ = replaced.Conn.Close()
		s.detach(replaced)
	}
	var local *media.Stream
	if s.publishing() {
		local = s.local
	}
	if err := conn.Answer(local); err != nil {
		s.log.Warn("Unable to answer call", "peer", conn.RemoteID(), "error", err)
		s.calls.Closed(conn)
		_ = conn.Close()
		return
	}
	call.Sending = local != nil
	if call.Remote != nil {
		s.attach(call)
	}
}

func (s *Session) handleRemoteStream(conn transport.CallConn, stream *media.Stream) {
	call, ok := s.calls.Attach(conn, stream)
	if !ok {
		return
	}
	s.attach(call)
}

func (s *Session) handleCallClosed(conn transport.CallConn) {
	if call, ok := s.calls.Closed(conn); ok {
		s.log.Debug("Call closed", "peer", call.PeerID)
		s.detach(call)
	}
}

// reconcileCalls hangs up on peers that left the roster and dials the ones
// that should hear this participant.
func (s *Session) reconcileCalls() {
	for _, peerID := range s.calls.Peers() {
		if _, ok := s.roster.ByPeer(peerID); !ok {
			s.dropCall(peerID)
		}
	}
	s.ensurePublishing()
}

func (s *Session) dropCall(peerID string) {
	if peerID == "" {
		return
	}
	if call, ok := s.calls.Drop(peerID); ok {
		_ = call.Conn.Close()
		s.detach(call)
	}
}

func (s *Session) attach(call *audio.Call) {
	if err := s.sink.Attach(call.PeerID, call.Remote); err != nil {
		s.log.Warn("Unable to play remote audio", "peer", call.PeerID, "error", err)
	}
	s.watchSpeaking(call.PeerID, call.Remote)
}

func (s *Session) detach(call *audio.Call) {
	if call.Remote == nil {
		return
	}
	s.sink.Detach(call.PeerID)
	s.clearSpeaking(call.PeerID)
}

func (s *Session) watchSpeaking(peerID string, stream *media.Stream) {
	exec := s.exec
	exec.Watch(workers.NewSpeakingMonitor(s.log, peerID, stream, s.cfg.SpeakingThreshold,
		func(peerID string, stream *media.Stream, speaking bool) {
			exec.Post(speakingResult{peerID: peerID, stream: stream, speaking: speaking})
		}))
}

func (s *Session) onSpeaking(res speakingResult) {
	if s.Closed() {
		return
	}
	if res.peerID == s.cfg.Self.PeerID {
		if res.stream != s.local || (res.speaking && s.muted) {
			return
		}
	} else if call, ok := s.calls.Get(res.peerID); !ok || call.Remote != res.stream {
		return
	}
	if s.speaking[res.peerID] == res.speaking {
		return
	}
	s.speaking[res.peerID] = res.speaking
	s.emit(event.SpeakingChanged{Panel: s.panel.ID, PeerID: res.peerID, Speaking: res.speaking})
}

func (s *Session) clearSpeaking(peerID string) {
	if s.speaking[peerID] {
		s.emit(event.SpeakingChanged{Panel: s.panel.ID, PeerID: peerID, Speaking: false})
	}
	delete(s.speaking, peerID)
}

func (s *Session) setMuted(muted bool) {
	s.muted = muted
	if s.local != nil {
		s.local.SetEnabled(!muted)
	}
	if muted {
		s.clearSpeaking(s.cfg.Self.PeerID)
	}
	s.emit(event.RoleChanged{Panel: s.panel.ID, Role: s.role, Muted: muted})
	if s.cfg.Hub {
		_ = s.roster.SetMuted(s.cfg.Self.ID, muted)
		s.broadcastRoster()
	}
}

func (s *Session) nameOf(peerID string) string {
	if p, ok := s.roster.ByPeer(peerID); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return peerID
}
