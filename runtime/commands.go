package runtime

import (
	"strings"

	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/errors"
	"panel-lab/protocol"
)

const endedByHost = "ended by host"

// HandleCommand applies a local UI operation. Every operation is checked
// against the local role first; a refusal is a warning notification and
// nothing is sent.
func (s *Session) HandleCommand(cmd domain.Command) {
	if s.Closed() {
		s.log.Debug("Ignoring command on a closed session", "command", cmd)
		return
	}
	if _, leaving := cmd.(domain.LeaveCommand); leaving {
		s.close(domain.ReasonLeft)
		return
	}
	if s.state == domain.StateJoining {
		s.notify(domain.SeverityWarning, "still joining the panel", errors.ErrSessionClosed)
		return
	}
	if action := cmd.Action(); action != "" && !s.role.Allows(action) {
		s.warn(errors.ErrNotAllowed)
		return
	}

	switch c := cmd.(type) {
	case domain.RaiseHandCommand:
		s.changeHand(true)
	case domain.LowerHandCommand:
		s.changeHand(false)
	case domain.PostChatCommand:
		s.sendChat(c.Text)
	case domain.ApproveSpeakerCommand:
		s.direct(protocol.SpeakApproved{TargetID: c.ParticipantID}, domain.RoleSpeaker)
	case domain.AssignCohostCommand:
		s.direct(protocol.AssignCohost{TargetID: c.ParticipantID}, domain.RoleCohost)
	case domain.ForceMuteCommand:
		s.direct(protocol.ForceMute{TargetID: c.ParticipantID}, "")
	case domain.KickCommand:
		s.direct(protocol.Kick{TargetID: c.ParticipantID, Reason: c.Reason}, "")
	case domain.MuteAllCommand:
		s.muteAll()
	case domain.ToggleMuteCommand:
		if s.micState != micReady {
			s.notify(domain.SeverityWarning, "microphone is not active", nil)
			return
		}
		s.setMuted(!s.muted)
	case domain.EndPanelCommand:
		s.endPanel()
	default:
		s.log.Warn("Unknown command", "command", cmd)
	}
}

func (s *Session) changeHand(raised bool) {
	me, ok := s.self()
	if !ok {
		return
	}
	if raised && me.Role != domain.RoleListener {
		s.warn(errors.ErrNotListener)
		return
	}
	if me.HandRaised == raised {
		return
	}
	if s.cfg.Hub {
		s.applyHand(me, raised)
	} else {
		var msg protocol.Message = protocol.LowerHand{}
		if raised {
			msg = protocol.RaiseHand{}
		}
		s.send(s.controls.Hub(), s.sender(), msg)
	}
	s.emit(event.HandChanged{Panel: s.panel.ID, ParticipantID: me.ID, Raised: raised, At: s.now()})
}

func (s *Session) sendChat(text string) {
	text = truncateRunes(strings.TrimSpace(text), s.cfg.MaxChatLength)
	if text == "" {
		return
	}
	msg := protocol.Chat{Text: text, SentAt: s.now()}
	if s.cfg.Hub {
		me, _ := s.self()
		s.relayChat(me, msg)
		return
	}
	s.send(s.controls.Hub(), s.sender(), msg)
}

// direct sends a controller message. promoteTo, when set, is checked against
// the capacity limits before anything leaves this process.
func (s *Session) direct(msg protocol.Directed, promoteTo domain.Role) {
	me, _ := s.self()
	target, ok := s.roster.Get(msg.Target())
	if !ok {
		s.warn(errors.ErrParticipantNotFound)
		return
	}
	action, _ := protocol.ActionFor(msg.Type())
	if !me.Role.Targets(action, target.Role) {
		s.warn(errors.ErrNotAllowed)
		return
	}
	if promoteTo != "" {
		if err := s.roster.CanPromote(target.ID, promoteTo); err != nil {
			s.warn(err)
			return
		}
	}

	if s.cfg.Hub {
		if err := s.applyDirected(me, msg); err != nil {
			s.warn(err)
			return
		}
	} else {
		s.send(s.controls.Hub(), s.sender(), msg)
	}

	switch m := msg.(type) {
	case protocol.SpeakApproved, protocol.AssignCohost:
		s.emit(event.ParticipantPromoted{Panel: s.panel.ID, ActorID: me.ID, TargetID: target.ID, Role: promoteTo, At: s.now()})
	case protocol.Kick:
		s.emit(event.ParticipantKicked{Panel: s.panel.ID, ActorID: me.ID, TargetID: target.ID, Reason: m.Reason, At: s.now()})
	}
}

// muteAll force-mutes every participant that can speak, except the host and
// the actor. A participant unmuting itself never reaches the hub, so the
// roster's muted flag may be stale and is not used to skip anyone.
// The hub rebroadcasts once for the whole batch.
func (s *Session) muteAll() {
	me, _ := s.self()
	var muted int
	for _, p := range s.roster.Participants() {
		if p.ID == me.ID || !p.Role.CanSpeak() || !me.Role.Targets(domain.ActionForceMute, p.Role) {
			continue
		}
		msg := protocol.ForceMute{TargetID: p.ID}
		if s.cfg.Hub {
			_ = s.roster.SetMuted(p.ID, true)
			s.forward(me, p, msg)
		} else {
			s.send(s.controls.Hub(), s.sender(), msg)
		}
		muted++
	}
	if s.cfg.Hub && muted > 0 {
		s.broadcastRoster()
	}
	s.emit(event.AllMuted{Panel: s.panel.ID, ActorID: me.ID, At: s.now()})
}

func (s *Session) endPanel() {
	if !s.cfg.Hub {
		s.warn(errors.ErrNotAllowed)
		return
	}
	for _, conn := range s.controls.Bound() {
		s.send(conn, s.sender(), protocol.RoomEnded{Reason: endedByHost})
	}
	s.emit(event.PanelEnded{Panel: s.panel.ID, ActorID: s.cfg.Self.ID, At: s.now()})
	s.close(domain.ReasonEnded)
}
