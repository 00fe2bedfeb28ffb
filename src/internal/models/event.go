package models

import "time"

type SessionEvent struct {
	SessionID   string            `json:"session_id,omitempty"`
	ServiceName string            `json:"service_name"`
	Action      string            `json:"action"`
	Removed     int64             `json:"removed,omitempty"`
	Cutoff      int64             `json:"cutoff,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Session event action constants
const (
	ActionSessionCreated   = "session.created"
	ActionSessionDestroyed = "session.destroyed"
	ActionSessionGC        = "session.gc"
)

// Service name constants
const (
	ServiceSessionStore     = "session.store"
	ServiceSessionCollector = "session.collector"
	ServiceSessionAdmin     = "session.handler.admin"
)
