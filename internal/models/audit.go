package models

import "time"

type AuditKind string

const (
	AuditUserAction  AuditKind = "user_action"
	AuditSystemEvent AuditKind = "system_event"
)

type AuditEvent struct {
	Kind       AuditKind `json:"kind"`
	Level      string    `json:"level"`
	UserID     string    `json:"userId,omitempty"`
	Username   string    `json:"username,omitempty"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
