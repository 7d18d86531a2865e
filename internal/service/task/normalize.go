package task

import (
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
)

var validPriorities = map[string]bool{
	model.TaskPriorityLow:    true,
	model.TaskPriorityMedium: true,
	model.TaskPriorityHigh:   true,
}

var validStatuses = map[string]bool{
	model.TaskStatusTodo:       true,
	model.TaskStatusInProgress: true,
	model.TaskStatusDone:       true,
}

var validEnergyLevels = map[string]bool{
	model.TaskEnergyLow:    true,
	model.TaskEnergyMedium: true,
	model.TaskEnergyHigh:   true,
}

// Normalize turns loosely-typed client input into a fully-typed task. Every
// field gets an explicit default; the only hard requirement is a title.
func Normalize(userID int, input model.TaskInput, createdBy string) (*model.Task, error) {
	if input.Title == nil || *input.Title == "" {
		return nil, apierror.Validation("title is required")
	}

	now := time.Now()
	t := &model.Task{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         *input.Title,
		Priority:      model.TaskPriorityMedium,
		Status:        model.TaskStatusTodo,
		EnergyLevel:   model.TaskEnergyMedium,
		EstimatedTime: 30,
		Tags:          []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     createdBy,
	}

	if input.Description != nil {
		t.Description = *input.Description
	}
	if input.Priority != nil && validPriorities[*input.Priority] {
		t.Priority = *input.Priority
	}
	if input.Status != nil && validStatuses[*input.Status] {
		t.Status = *input.Status
	}
	if input.EnergyLevel != nil && validEnergyLevels[*input.EnergyLevel] {
		t.EnergyLevel = *input.EnergyLevel
	}
	if input.EstimatedTime != nil && *input.EstimatedTime > 0 {
		t.EstimatedTime = *input.EstimatedTime
	}
	if input.Progress != nil {
		t.Progress = clampProgress(*input.Progress)
	}
	if input.Tags != nil {
		t.Tags = input.Tags
	}
	if input.DueDate != nil {
		t.DueDate = input.DueDate
	}
	if input.ScheduledTime != nil {
		t.ScheduledTime = input.ScheduledTime
	}
	if input.Source != nil {
		t.Source = *input.Source
	}

	if input.Completed != nil && *input.Completed {
		markCompleted(t, now)
	} else if t.Status == model.TaskStatusDone {
		markCompleted(t, now)
	}

	return t, nil
}

// ApplyUpdate patches an existing task with the fields present in input.
func ApplyUpdate(t *model.Task, input model.TaskInput) {
	now := time.Now()

	if input.Title != nil && *input.Title != "" {
		t.Title = *input.Title
	}
	if input.Description != nil {
		t.Description = *input.Description
	}
	if input.Priority != nil && validPriorities[*input.Priority] {
		t.Priority = *input.Priority
	}
	if input.Status != nil && validStatuses[*input.Status] {
		t.Status = *input.Status
		if t.Status == model.TaskStatusDone && !t.Completed {
			markCompleted(t, now)
		}
		if t.Status != model.TaskStatusDone && t.Completed {
			markReopened(t)
		}
	}
	if input.EnergyLevel != nil && validEnergyLevels[*input.EnergyLevel] {
		t.EnergyLevel = *input.EnergyLevel
	}
	if input.EstimatedTime != nil && *input.EstimatedTime > 0 {
		t.EstimatedTime = *input.EstimatedTime
	}
	if input.Progress != nil {
		t.Progress = clampProgress(*input.Progress)
	}
	if input.Tags != nil {
		t.Tags = input.Tags
	}
	if input.DueDate != nil {
		t.DueDate = input.DueDate
	}
	if input.ScheduledTime != nil {
		t.ScheduledTime = input.ScheduledTime
	}
	if input.Source != nil {
		t.Source = *input.Source
	}
	if input.Completed != nil {
		if *input.Completed && !t.Completed {
			markCompleted(t, now)
		}
		if !*input.Completed && t.Completed {
			markReopened(t)
		}
	}

	t.UpdatedAt = now
}

func markCompleted(t *model.Task, now time.Time) {
	t.Completed = true
	t.Status = model.TaskStatusDone
	t.Progress = 100
	t.CompletedAt = &now
}

func markReopened(t *model.Task) {
	t.Completed = false
	t.Status = model.TaskStatusTodo
	t.Progress = 0
	t.CompletedAt = nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
