package domain

// Action is something a participant asks the panel to do.
// Permissions are expressed per role, the roster enforces the transitions.
type Action string

const (
	ActionChat         Action = "chat"
	ActionRaiseHand    Action = "raise_hand"
	ActionLowerHand    Action = "lower_hand"
	ActionApproveSpeak Action = "approve_speak"
	ActionAssignCohost Action = "assign_cohost"
	ActionForceMute    Action = "force_mute"
	ActionKick         Action = "kick"
	ActionEndPanel     Action = "end_panel"
)

// Allows implements the controller permission rule.
func (r Role) Allows(a Action) bool {
	switch a {
	case ActionChat, ActionRaiseHand, ActionLowerHand:
		return r != ""
	case ActionApproveSpeak, ActionAssignCohost, ActionForceMute, ActionKick:
		return r.IsController()
	case ActionEndPanel:
		return r == RoleHost
	default:
		return false
	}
}

// Targets reports whether an actor holding role r may direct action a at a
// participant holding role target. Nobody acts on the host.
func (r Role) Targets(a Action, target Role) bool {
	if !r.Allows(a) {
		return false
	}
	return target != RoleHost
}

// SessionState is the lifecycle of the local participant's session.
type SessionState string

const (
	StateJoining SessionState = "joining"
	StateActive  SessionState = "active"
	StateRemoved SessionState = "removed"
	StateLeft    SessionState = "left"
	StateEnded   SessionState = "ended"
)

// Terminal reports whether no further protocol message may be processed.
func (s SessionState) Terminal() bool {
	return s == StateRemoved || s == StateLeft || s == StateEnded
}

// CloseReason explains why a session reached a terminal state.
type CloseReason string

const (
	ReasonLeft       CloseReason = "left"
	ReasonKicked     CloseReason = "kicked"
	ReasonEnded      CloseReason = "room_ended"
	ReasonHostLeft   CloseReason = "host_left"
	ReasonJoinFailed CloseReason = "join_failed"
)

// StateFor maps a close reason to the terminal state it produces.
func StateFor(reason CloseReason) SessionState {
	switch reason {
	case ReasonLeft:
		return StateLeft
	case ReasonKicked:
		return StateRemoved
	default:
		return StateEnded
	}
}
