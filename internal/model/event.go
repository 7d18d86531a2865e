package model

import "time"

const (
	EventSyncCompleted    = "sync.completed"
	EventTaskAutoCreated  = "task.autocompleted"
	EventTaskAutoSkipped  = "task.skipped"
	EventDisconnected     = "integration.disconnected"
	EventAccountConnected = "integration.connected"
)

// IntegrationEvent is one audit-log entry for a (provider, user) pair.
type IntegrationEvent struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	Provider  string    `json:"provider"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
