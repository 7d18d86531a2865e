package model

import "time"

const (
	FolderInbox = "inbox"
	FolderSent  = "sent"
)

// MessageMetadata is the provider-agnostic shape every adapter normalizes
// into. Unique by (provider, id) within one user's cache.
type MessageMetadata struct {
	ID       string    `json:"id"`
	Provider string    `json:"provider"`
	ThreadID string    `json:"thread_id,omitempty"`
	Folder   string    `json:"folder"`
	Subject  string    `json:"subject"`
	From     string    `json:"from"`
	To       []string  `json:"to"`
	Snippet  string    `json:"snippet"`
	Date     time.Time `json:"date"`
	WebLink  string    `json:"web_link,omitempty"`
	CachedAt time.Time `json:"cached_at"`
}

// MessagePage is one page of adapter output.
type MessagePage struct {
	Messages   []MessageMetadata `json:"messages"`
	NextCursor string            `json:"next_cursor,omitempty"`
}
