package runtime

import (
	"strings"

	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/errors"
	"panel-lab/protocol"
	"panel-lab/transport"

	"github.com/google/uuid"
)

// hubMessage handles a message received by the hub. The hub trusts the
// identity bound to the connection, never the envelope's from field.
func (s *Session) hubMessage(conn transport.DataConn, in protocol.Inbound) {
	if announce, ok := in.Message.(protocol.Announce); ok {
		s.acceptAnnounce(conn, announce)
		return
	}
	senderID, bound := s.controls.ParticipantOf(conn)
	if !bound {
		s.log.Debug("Ignoring message from an unannounced connection", "type", in.Message.Type(), "remote", conn.RemoteID())
		return
	}
	sender, ok := s.roster.Get(senderID)
	if !ok {
		return
	}
	action, relayable := protocol.ActionFor(in.Message.Type())
	if !relayable {
		s.log.Warn("Dropping hub-only message sent by a peer", "sender", sender.ID, "type", in.Message.Type())
		return
	}
	if !sender.Role.Allows(action) {
		s.log.Warn("Dropping unauthorized message", "sender", sender.ID, "role", sender.Role, "type", in.Message.Type())
		return
	}

	switch msg := in.Message.(type) {
	case protocol.Chat:
		s.relayChat(sender, msg)
	case protocol.RaiseHand:
		s.applyHand(sender, true)
	case protocol.LowerHand:
		s.applyHand(sender, false)
	case protocol.Directed:
		if err := s.applyDirected(sender, msg); err != nil {
			s.log.Warn("Dropping relayed control message", "sender", sender.ID, "type", msg.Type(),
				"target", msg.Target(), "error", err)
		}
	}
}

func (s *Session) acceptAnnounce(conn transport.DataConn, a protocol.Announce) {
	if a.ID == s.cfg.Self.ID {
		s.log.Warn("Refusing announce using the host identity", "remote", conn.RemoteID())
		s.controls.Remove(conn)
		_ = conn.Close()
		return
	}
	if boundID, ok := s.controls.ParticipantOf(conn); ok && boundID != a.ID {
		s.log.Warn("Refusing announce switching identity", "bound", boundID, "announced", a.ID)
		return
	}

	previous, known := s.roster.Get(a.ID)
	s.roster.Add(domain.NewListener(a.ID, conn.RemoteID(), a.DisplayName))
	if stale := s.controls.Bind(a.ID, conn); stale != nil {
		s.log.Info("Participant reconnected, dropping stale connection", "id", a.ID)
		_ = stale.Close()
	}
	if known && previous.PeerID != conn.RemoteID() {
		s.dropCall(previous.PeerID)
	}
	s.log.Info("Participant announced", "id", a.ID, "rejoin", known)

	s.send(conn, s.sender(), protocol.RoomState{Panel: s.panel, Participants: s.roster.Participants()})
	s.broadcastRoster()
}

// broadcastRoster is the only place participants_update is emitted.
func (s *Session) broadcastRoster() {
	update := protocol.ParticipantsUpdate{Participants: s.roster.Participants()}
	for _, conn := range s.controls.Bound() {
		s.send(conn, s.sender(), update)
	}
	s.emitRoster()
	s.reconcileCalls()
}

func (s *Session) relayChat(author domain.Participant, msg protocol.Chat) {
	text := truncateRunes(strings.TrimSpace(msg.Text), s.cfg.MaxChatLength)
	if text == "" {
		return
	}
	var lang string
	if s.moderator != nil {
		lang = s.moderator.Language(text)
		censored, hit := s.moderator.Censor(text)
		if hit {
			s.telemetry = append(s.telemetry, event.Event{
				Type:      event.CensorshipHitType,
				CreatedAt: s.now(),
				Payload:   event.CensorshipHit{Panel: s.panel.ID, AuthorID: author.ID, Lang: lang},
			})
		}
		text = censored
	}
	relayed := protocol.Chat{ID: uuid.NewString(), Text: text, Lang: lang, SentAt: msg.SentAt}
	if relayed.SentAt.IsZero() {
		relayed.SentAt = s.now()
	}
	from := &protocol.Sender{ID: author.ID, DisplayName: author.DisplayName}
	for _, conn := range s.controls.Bound() {
		s.send(conn, from, relayed)
	}
	s.postChat(author, relayed.Text, relayed.Lang, relayed.ID, relayed.SentAt)
}

func (s *Session) applyHand(p domain.Participant, raised bool) {
	if p.HandRaised == raised {
		return
	}
	if err := s.roster.SetHand(p.ID, raised); err != nil {
		s.log.Debug("Hand change refused", "id", p.ID, "error", err)
		return
	}
	s.broadcastRoster()
}

// applyDirected validates a controller message against the authoritative
// roster, applies it, forwards it to its target and rebroadcasts.
func (s *Session) applyDirected(actor domain.Participant, msg protocol.Directed) error {
	action, _ := protocol.ActionFor(msg.Type())
	target, ok := s.roster.Get(msg.Target())
	if !ok {
		return errors.ErrParticipantNotFound
	}
	if !actor.Role.Targets(action, target.Role) {
		return errors.ErrNotAllowed
	}

	switch msg.(type) {
	case protocol.SpeakApproved:
		if target.Role != domain.RoleListener {
			return nil
		}
		if err := s.roster.Promote(target.ID, domain.RoleSpeaker); err != nil {
			return err
		}
	case protocol.AssignCohost:
		if err := s.roster.Promote(target.ID, domain.RoleCohost); err != nil {
			return err
		}
	case protocol.ForceMute:
		if err := s.roster.SetMuted(target.ID, true); err != nil {
			return err
		}
	case protocol.Kick:
		s.forward(actor, target, msg)
		s.roster.Remove(target.ID)
		if conn, ok := s.controls.Unbind(target.ID); ok {
			// Tracked as pending until it closes or announces again.
			s.controls.AddPending(conn)
		}
		s.dropCall(target.PeerID)
		s.log.Info("Participant kicked", "id", target.ID, "by", actor.ID)
		s.broadcastRoster()
		return nil
	}
	s.forward(actor, target, msg)
	s.broadcastRoster()
	return nil
}

func (s *Session) forward(actor, target domain.Participant, msg protocol.Message) {
	conn, ok := s.controls.ConnOf(target.ID)
	if !ok {
		s.log.Debug("Control message undeliverable, target has no connection", "target", target.ID, "type", msg.Type())
		return
	}
	s.send(conn, &protocol.Sender{ID: actor.ID, DisplayName: actor.DisplayName}, msg)
}
