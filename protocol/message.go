// Package protocol defines the control messages peers exchange over data
// connections. Every message is a JSON envelope {type, from?, payload?}; the
// payload shape is chosen by type. New behaviour adds types, never versions.
package protocol

import (
	"time"

	"panel-lab/domain"
)

type Type string

const (
	TypeAnnounce           Type = "announce"
	TypeRoomState          Type = "room_state"
	TypeParticipantsUpdate Type = "participants_update"
	TypeChat               Type = "chat"
	TypeRaiseHand          Type = "raise_hand"
	TypeLowerHand          Type = "lower_hand"
	TypeSpeakApproved      Type = "speak_approved"
	TypeAssignCohost       Type = "assign_cohost"
	TypeForceMute          Type = "force_mute"
	TypeKick               Type = "kick"
	TypeRoomEnded          Type = "room_ended"
)

// Sender identifies who authored a message. The hub keeps it when relaying.
type Sender struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"displayName"`
}

type Message interface {
	Type() Type
}

// Directed is implemented by controller messages aimed at one participant.
type Directed interface {
	Message
	Target() string
}

type Announce struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
}

type RoomState struct {
	Panel        domain.PanelInfo     `json:"panel"`
	Participants []domain.Participant `json:"participants" validate:"required"`
}

type ParticipantsUpdate struct {
	Participants []domain.Participant `json:"participants" validate:"required"`
}

// Chat carries user text. The hub assigns ID and Lang before relaying.
type Chat struct {
	ID     string    `json:"id,omitempty"`
	Text   string    `json:"text" validate:"required"`
	Lang   string    `json:"lang,omitempty"`
	SentAt time.Time `json:"sentAt"`
}

type RaiseHand struct{}

type LowerHand struct{}

type SpeakApproved struct {
	TargetID string `json:"targetId" validate:"required"`
}

type AssignCohost struct {
	TargetID string `json:"targetId" validate:"required"`
}

type ForceMute struct {
	TargetID string `json:"targetId" validate:"required"`
}

type Kick struct {
	TargetID string `json:"targetId" validate:"required"`
	Reason   string `json:"reason,omitempty"`
}

type RoomEnded struct {
	Reason string `json:"reason,omitempty"`
}

func (Announce) Type() Type           { return TypeAnnounce }
func (RoomState) Type() Type          { return TypeRoomState }
func (ParticipantsUpdate) Type() Type { return TypeParticipantsUpdate }
func (Chat) Type() Type               { return TypeChat }
func (RaiseHand) Type() Type          { return TypeRaiseHand }
func (LowerHand) Type() Type          { return TypeLowerHand }
func (SpeakApproved) Type() Type      { return TypeSpeakApproved }
func (AssignCohost) Type() Type       { return TypeAssignCohost }
func (ForceMute) Type() Type          { return TypeForceMute }
func (Kick) Type() Type               { return TypeKick }
func (RoomEnded) Type() Type          { return TypeRoomEnded }

func (m SpeakApproved) Target() string { return m.TargetID }
func (m AssignCohost) Target() string  { return m.TargetID }
func (m ForceMute) Target() string     { return m.TargetID }
func (m Kick) Target() string          { return m.TargetID }

// ActionFor maps a message to the permission it needs from its sender.
// Messages only the hub emits map to no action.
func ActionFor(t Type) (domain.Action, bool) {
	switch t {
	case TypeChat:
		return domain.ActionChat, true
	case TypeRaiseHand:
		return domain.ActionRaiseHand, true
	case TypeLowerHand:
		return domain.ActionLowerHand, true
	case TypeSpeakApproved:
		return domain.ActionApproveSpeak, true
	case TypeAssignCohost:
		return domain.ActionAssignCohost, true
	case TypeForceMute:
		return domain.ActionForceMute, true
	case TypeKick:
		return domain.ActionKick, true
	case TypeRoomEnded:
		return domain.ActionEndPanel, true
	default:
		return "", false
	}
}
