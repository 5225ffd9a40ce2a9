// Package notification delivers threshold alerts to push services through shoutrrr.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type represents the category of a notification
type Type string

const (
	// TypeAlert is a label crossing the alert threshold
	TypeAlert Type = "alert"
	// TypeSystem indicates a system status notification
	TypeSystem Type = "system"
)

// Priority represents the urgency level of a notification
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Notification is one message to deliver
type Notification struct {
	ID        string
	Type      Type
	Priority  Priority
	Title     string
	Message   string
	Timestamp time.Time
}

// NewNotification creates a notification with a fresh id
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}
