// Package domain contains core concepts of the live panel.
// This file defines Participant entities and their roles.
// No runtime, network, or UI logic should be added here.
package domain

import "panel-lab/errors"

type Role string

const (
	RoleHost     Role = "host"
	RoleCohost   Role = "cohost"
	RoleSpeaker  Role = "speaker"
	RoleListener Role = "listener"
)

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleHost, RoleCohost, RoleSpeaker, RoleListener:
		return r, nil
	default:
		return "", errors.ErrInvalidRole
	}
}

// IsController reports whether the role may emit privileged control messages.
func (r Role) IsController() bool {
	return r == RoleHost || r == RoleCohost
}

// CanSpeak reports whether the role publishes audio.
func (r Role) CanSpeak() bool {
	return r == RoleHost || r == RoleCohost || r == RoleSpeaker
}

// Participant is one member of a panel roster.
// PeerID is the transport identifier and may change across reconnects,
// ID is the stable account identity.
type Participant struct {
	ID          string `json:"id"`
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	Muted       bool   `json:"muted"`
	HandRaised  bool   `json:"handRaised"`
}

// NewListener returns the initial state of a participant accepted by the hub.
func NewListener(id, peerID, displayName string) Participant {
	return Participant{
		ID:          id,
		PeerID:      peerID,
		DisplayName: displayName,
		Role:        RoleListener,
	}
}
