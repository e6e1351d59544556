package domain

import "time"

// PanelSummary is a joinable panel as listed by the directory.
type PanelSummary struct {
	ID          PanelID `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	HostID      string  `json:"hostId"`
	HostName    string  `json:"hostName"`
	MemberCount int     `json:"memberCount"`
}

type CreatePanelRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
	HostPeerID  string `json:"hostPeerId" validate:"required"`
}

// JoinTicket tells a joining peer where the hub is.
type JoinTicket struct {
	HostPeerID string    `json:"hostPeerId"`
	Panel      PanelInfo `json:"panel"`
}

type AuditAction string

const (
	AuditCreate    AuditAction = "create"
	AuditJoin      AuditAction = "join"
	AuditLeave     AuditAction = "leave"
	AuditRaiseHand AuditAction = "raise_hand"
	AuditLowerHand AuditAction = "lower_hand"
	AuditMuteAll   AuditAction = "mute_all"
	AuditPromote   AuditAction = "promote"
	AuditKick      AuditAction = "kick"
	AuditEnd       AuditAction = "end"
)

// AuditEntry is one persisted side effect of a panel.
type AuditEntry struct {
	PanelID  PanelID     `json:"panelId"`
	Action   AuditAction `json:"action"`
	ActorID  string      `json:"actorId"`
	TargetID string      `json:"targetId,omitempty"`
	At       time.Time   `json:"at"`
}
