package event

import (
	"time"

	"panel-lab/domain"
)

// DomainEvent is what a session reports to the outside world once it has
// handled an input. Sinks consume them; nothing feeds them back into the session.
type DomainEvent interface {
	PanelID() domain.PanelID
}

// SessionStarted is emitted when the local participant is in the panel.
type SessionStarted struct {
	Panel  domain.PanelInfo
	SelfID string
	Role   domain.Role
	At     time.Time
}

// RosterChanged carries the full roster after any change.
type RosterChanged struct {
	Panel        domain.PanelID
	Participants []domain.Participant
	At           time.Time
}

type ChatPosted struct {
	Panel   domain.PanelID
	Message domain.Message
}

// SpeakingChanged is a local, best-effort signal. It never leaves the process.
type SpeakingChanged struct {
	Panel    domain.PanelID
	PeerID   string
	Speaking bool
}

// RoleChanged reports a change of the local participant's own role or mute flag.
type RoleChanged struct {
	Panel domain.PanelID
	Role  domain.Role
	Muted bool
}

type Notified struct {
	Panel        domain.PanelID
	Notification domain.Notification
	At           time.Time
}

type SessionClosed struct {
	Panel  domain.PanelID
	SelfID string
	Reason domain.CloseReason
	At     time.Time
}

// Audit side effects, mirrored to the directory by its sink.

type HandChanged struct {
	Panel         domain.PanelID
	ParticipantID string
	Raised        bool
	At            time.Time
}

type ParticipantPromoted struct {
	Panel    domain.PanelID
	ActorID  string
	TargetID string
	Role     domain.Role
	At       time.Time
}

type ParticipantKicked struct {
	Panel    domain.PanelID
	ActorID  string
	TargetID string
	Reason   string
	At       time.Time
}

type AllMuted struct {
	Panel   domain.PanelID
	ActorID string
	At      time.Time
}

type PanelEnded struct {
	Panel   domain.PanelID
	ActorID string
	At      time.Time
}

func (e SessionStarted) PanelID() domain.PanelID      { return e.Panel.ID }
func (e RosterChanged) PanelID() domain.PanelID       { return e.Panel }
func (e ChatPosted) PanelID() domain.PanelID          { return e.Panel }
func (e SpeakingChanged) PanelID() domain.PanelID     { return e.Panel }
func (e RoleChanged) PanelID() domain.PanelID         { return e.Panel }
func (e Notified) PanelID() domain.PanelID            { return e.Panel }
func (e SessionClosed) PanelID() domain.PanelID       { return e.Panel }
func (e HandChanged) PanelID() domain.PanelID         { return e.Panel }
func (e ParticipantPromoted) PanelID() domain.PanelID { return e.Panel }
func (e ParticipantKicked) PanelID() domain.PanelID   { return e.Panel }
func (e AllMuted) PanelID() domain.PanelID            { return e.Panel }
func (e PanelEnded) PanelID() domain.PanelID          { return e.Panel }
