package mq

import "time"

// Published when the automation engine turns a sent message into a task.
type TaskAutoCompletedPayload struct {
	TaskID    string    `json:"task_id"`
	UserID    int       `json:"user_id"`
	Provider  string    `json:"provider"`
	MessageID string    `json:"message_id"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// Published after a provider mailbox sync completes.
type IntegrationSyncedPayload struct {
	UserID   int       `json:"user_id"`
	Provider string    `json:"provider"`
	Count    int       `json:"count"`
	SyncedAt time.Time `json:"synced_at"`
}
