package runtime

import (
	"fmt"

	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/errors"
	"panel-lab/protocol"
)

// peerMessage handles a message relayed by the hub.
func (s *Session) peerMessage(in protocol.Inbound) {
	switch msg := in.Message.(type) {
	case protocol.RoomState:
		if msg.Panel.ID != "" {
			s.panel = msg.Panel
		}
		joining := s.state == domain.StateJoining
		s.state = domain.StateActive
		s.applyRoster(msg.Participants, joining)
	case protocol.ParticipantsUpdate:
		if s.state == domain.StateJoining {
			s.roster.Replace(msg.Participants)
			return
		}
		s.applyRoster(msg.Participants, false)
	case protocol.Chat:
		if in.From == nil {
			s.log.Debug("Ignoring unsigned chat")
			return
		}
		author := domain.Participant{ID: in.From.ID, DisplayName: in.From.DisplayName}
		s.postChat(author, msg.Text, msg.Lang, msg.ID, msg.SentAt)
	case protocol.SpeakApproved:
		if msg.TargetID == s.cfg.Self.ID {
			s.notify(domain.SeverityInfo, "you can speak now", nil)
			s.requestMicrophone()
		}
	case protocol.AssignCohost:
		if msg.TargetID == s.cfg.Self.ID {
			s.notify(domain.SeverityInfo, "you are now a cohost", nil)
			s.requestMicrophone()
		}
	case protocol.ForceMute:
		if msg.TargetID == s.cfg.Self.ID {
			s.notify(domain.SeverityInfo, "a moderator muted you", nil)
			if !s.muted {
				s.setMuted(true)
			}
		}
	case protocol.Kick:
		if msg.TargetID == s.cfg.Self.ID {
			text := "you were removed from the panel"
			if msg.Reason != "" {
				text = fmt.Sprintf("%s: %s", text, msg.Reason)
			}
			s.notify(domain.SeverityWarning, text, nil)
			s.close(domain.ReasonKicked)
		}
	case protocol.RoomEnded:
		text := "the panel has ended"
		if msg.Reason != "" {
			text = fmt.Sprintf("%s: %s", text, msg.Reason)
		}
		s.notify(domain.SeverityInfo, text, nil)
		s.close(domain.ReasonEnded)
	default:
		s.log.Debug("Ignoring message a peer never receives", "type", in.Message.Type())
	}
}

// applyRoster replaces the mirror with the hub's roster and reacts to what
// changed for the local participant.
func (s *Session) applyRoster(participants []domain.Participant, joining bool) {
	s.roster.Replace(participants)
	me, ok := s.self()
	if !ok {
		if joining {
			s.failJoin(errors.ErrParticipantNotFound)
			return
		}
		s.notify(domain.SeverityWarning, "you are no longer part of the panel", nil)
		s.close(domain.ReasonKicked)
		return
	}

	if joining {
		s.role = me.Role
		s.log.Info("Joined panel", "role", me.Role)
		s.emit(event.SessionStarted{Panel: s.panel, SelfID: s.cfg.Self.ID, Role: me.Role, At: s.now()})
	} else if me.Role != s.role {
		s.role = me.Role
		s.emit(event.RoleChanged{Panel: s.panel.ID, Role: me.Role, Muted: s.muted})
	}
	if me.Role.CanSpeak() {
		s.requestMicrophone()
	}
	s.emitRoster()
	s.reconcileCalls()
}
