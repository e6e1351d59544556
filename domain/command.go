package domain

// Command is a local operation requested by the UI on the running session.
// Commands are handled on the session loop like any transport event.
type Command interface {
	Action() Action
}

type RaiseHandCommand struct{}

func (RaiseHandCommand) Action() Action { return ActionRaiseHand }

type LowerHandCommand struct{}

func (LowerHandCommand) Action() Action { return ActionLowerHand }

type PostChatCommand struct {
	Text string
}

func (PostChatCommand) Action() Action { return ActionChat }

type ApproveSpeakerCommand struct {
	ParticipantID string
}

func (ApproveSpeakerCommand) Action() Action { return ActionApproveSpeak }

type AssignCohostCommand struct {
	ParticipantID string
}

func (AssignCohostCommand) Action() Action { return ActionAssignCohost }

type ForceMuteCommand struct {
	ParticipantID string
}

func (ForceMuteCommand) Action() Action { return ActionForceMute }

// MuteAllCommand force-mutes every non-host participant that can speak.
type MuteAllCommand struct{}

func (MuteAllCommand) Action() Action { return ActionForceMute }

type KickCommand struct {
	ParticipantID string
	Reason        string
}

func (KickCommand) Action() Action { return ActionKick }

type EndPanelCommand struct{}

func (EndPanelCommand) Action() Action { return ActionEndPanel }

// ToggleMuteCommand flips the local microphone track. Anyone may do it.
type ToggleMuteCommand struct{}

func (ToggleMuteCommand) Action() Action { return "" }

type LeaveCommand struct{}

func (LeaveCommand) Action() Action { return "" }
