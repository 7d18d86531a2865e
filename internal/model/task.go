package model

import "time"

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"

	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"

	TaskEnergyLow    = "low"
	TaskEnergyMedium = "medium"
	TaskEnergyHigh   = "high"
)

// Task is a fully-typed task record. Normalization guarantees every field
// holds a typed value no matter how partial the client input was.
type Task struct {
	ID            string     `json:"id"`
	UserID        int        `json:"user_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Priority      string     `json:"priority"`
	Status        string     `json:"status"`
	Completed     bool       `json:"completed"`
	EnergyLevel   string     `json:"energy_level"`
	EstimatedTime int        `json:"estimated_time"` // minutes
	DueDate       *time.Time `json:"due_date,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Progress      int        `json:"progress"` // 0..100
	Tags          []string   `json:"tags"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CreatedBy     string     `json:"created_by"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Source        string     `json:"source,omitempty"`
}

// TaskInput is the loosely-typed request body for create/update. Pointers
// distinguish "absent" from zero values.
type TaskInput struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	Priority      *string    `json:"priority"`
	Status        *string    `json:"status"`
	Completed     *bool      `json:"completed"`
	EnergyLevel   *string    `json:"energy_level"`
	EstimatedTime *int       `json:"estimated_time"`
	DueDate       *time.Time `json:"due_date"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Progress      *int       `json:"progress"`
	Tags          []string   `json:"tags"`
	Source        *string    `json:"source"`
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	Priority  string
	Status    string
	Tag       string
	Completed *bool
	Scheduled *bool
}
