// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventMailSent   EventType = "mail.sent"
	EventMailFailed EventType = "mail.failed"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Event records one delivery attempt of a mail task.
type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	// Task is the name the workflow engine gave the task.
	Task string `json:"task,omitempty"`

	// MessageID is the Message-ID header of the composed mail, if it got that far.
	MessageID string `json:"messageId,omitempty"`

	// Origin is "user" or "system", the source of the SMTP endpoint.
	Origin string `json:"origin,omitempty"`
	Host   string `json:"host,omitempty"`

	Recipients  int `json:"recipients"`
	Attachments int `json:"attachments"`

	// Details contains failure information
	Details map[string]any `json:"details,omitempty"`
}

// NewEvent returns an event with ID, timestamp and severity filled in.
func NewEvent(eventType EventType, task string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  SeverityForEventType(eventType),
		Timestamp: time.Now().UTC(),
		Task:      task,
	}
}

// SeverityForEventType returns the default severity for an event type
func SeverityForEventType(eventType EventType) Severity {
	if eventType == EventMailFailed {
		return SeverityWarning
	}
	return SeverityInfo
}
