package errors

import "fmt"

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
	ErrInvalidPayload = fmt.Errorf("invalid payload")
	ErrMissingPanelID = fmt.Errorf("missing panel id")

	// Roster and role state machine
	ErrParticipantNotFound = fmt.Errorf("participant not found")
	ErrAlreadyInRoster     = fmt.Errorf("participant already in roster")
	ErrHostImmutable       = fmt.Errorf("host role cannot be changed")
	ErrNotListener         = fmt.Errorf("participant is not a listener")
	ErrInvalidTransition   = fmt.Errorf("invalid role transition")
	ErrSpeakersFull        = fmt.Errorf("maximum number of speakers reached")
	ErrCohostsFull         = fmt.Errorf("maximum number of cohosts reached")
	ErrNotAllowed          = fmt.Errorf("action not allowed for this role")
	ErrInvalidRole         = fmt.Errorf("invalid role")

	// Session lifecycle
	ErrJoinFailed        = fmt.Errorf("unable to join panel")
	ErrSessionClosed     = fmt.Errorf("session is closed")
	ErrMicrophoneDenied  = fmt.Errorf("microphone access denied")
	ErrPeerUnavailable   = fmt.Errorf("peer unavailable")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrTransportClosed   = fmt.Errorf("transport closed")
	ErrCallAlreadyExists = fmt.Errorf("call already exists")
	ErrCommandQueueFull  = fmt.Errorf("command queue full")

	// Directory
	ErrPanelNotFound        = fmt.Errorf("panel not found")
	ErrPanelEnded           = fmt.Errorf("panel has ended")
	ErrNotPanelHost         = fmt.Errorf("only the panel host can do this")
	ErrUserAlreadyExists    = fmt.Errorf("user already exists")
	ErrUserNotFound         = fmt.Errorf("user not found")
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials")
	ErrInvalidPassword      = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration      = fmt.Errorf("token generation failed")
	ErrUnauthenticated      = fmt.Errorf("missing or invalid token")
	ErrDirectoryRejected    = fmt.Errorf("directory rejected the request")
	ErrDirectoryUnreachable = fmt.Errorf("directory unreachable")
)
