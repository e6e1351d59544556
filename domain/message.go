// Package domain contains core concepts of the live panel.
// This file defines chat messages and UI notifications.
// Messages are immutable once relayed by the hub.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a relayed chat message.
type Message struct {
	ID         uuid.UUID
	SenderID   string
	SenderName string
	Content    string
	Lang       string
	CreatedAt  time.Time
	Mine       bool
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a transient, local-only message for the user.
type Notification struct {
	Severity Severity
	Text     string
	Err      error
}
