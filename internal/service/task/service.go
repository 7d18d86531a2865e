// Package task is the CRUD surface for normalized task records.
package task

import (
	"context"

	"go.uber.org/zap"

	"flowdesk/internal/model"
)

// Repo is the persistence surface the service needs.
type Repo interface {
	Create(ctx context.Context, t *model.Task) error
	FindByID(ctx context.Context, userID int, id string) (*model.Task, error)
	List(ctx context.Context, userID int, filter model.TaskFilter) ([]model.Task, error)
	Update(ctx context.Context, t *model.Task) error
	Delete(ctx context.Context, userID int, id string) error
	Toggle(ctx context.Context, userID int, id string) (*model.Task, error)
}

type Service struct {
	repo Repo
	log  *zap.Logger
}

func NewService(repo Repo, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// List returns the user's tasks matching filter, newest update first.
func (s *Service) List(ctx context.Context, userID int, filter model.TaskFilter) ([]model.Task, error) {
	return s.repo.List(ctx, userID, filter)
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, userID int, id string) (*model.Task, error) {
	return s.repo.FindByID(ctx, userID, id)
}

// Create normalizes input into a fully-typed record and persists it.
func (s *Service) Create(ctx context.Context, userID int, input model.TaskInput, createdBy string) (*model.Task, error) {
	t, err := Normalize(userID, input, createdBy)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.log.Info("task created",
		zap.String("task_id", t.ID),
		zap.Int("user_id", userID),
		zap.String("created_by", createdBy),
	)
	return t, nil
}

// Update patches a task with the fields present in input.
func (s *Service) Update(ctx context.Context, userID int, id string, input model.TaskInput) (*model.Task, error) {
	t, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	ApplyUpdate(t, input)

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, userID int, id string) error {
	return s.repo.Delete(ctx, userID, id)
}

// Toggle atomically flips completion state.
func (s *Service) Toggle(ctx context.Context, userID int, id string) (*model.Task, error) {
	return s.repo.Toggle(ctx, userID, id)
}
