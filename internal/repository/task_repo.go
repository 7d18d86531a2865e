package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowdesk/internal/model"
)

type TaskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `
    id, user_id, title, description, priority, status, completed,
    energy_level, estimated_time, due_date, scheduled_time, progress,
    tags, created_at, updated_at, created_by, completed_at, source
`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Priority,
		&t.Status,
		&t.Completed,
		&t.EnergyLevel,
		&t.EstimatedTime,
		&t.DueDate,
		&t.ScheduledTime,
		&t.Progress,
		&t.Tags,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CreatedBy,
		&t.CompletedAt,
		&t.Source,
	)
	if err != nil {
		return nil, err
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

// Create inserts a fully-normalized task.
func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	query := `
        INSERT INTO tasks (` + taskColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
    `
	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.Title,
		t.Description,
		t.Priority,
		t.Status,
		t.Completed,
		t.EnergyLevel,
		t.EstimatedTime,
		t.DueDate,
		t.ScheduledTime,
		t.Progress,
		t.Tags,
		t.CreatedAt,
		t.UpdatedAt,
		t.CreatedBy,
		t.CompletedAt,
		t.Source,
	)
	return err
}

// FindByID returns one task scoped to its owner.
func (r *TaskRepository) FindByID(ctx context.Context, userID int, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	t, err := scanTask(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// List returns the user's tasks matching filter, newest update first.
func (r *TaskRepository) List(ctx context.Context, userID int, filter model.TaskFilter) ([]model.Task, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	if filter.Priority != "" {
		args = append(args, filter.Priority)
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		where = append(where, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		where = append(where, fmt.Sprintf("completed = $%d", len(args)))
	}
	if filter.Scheduled != nil {
		if *filter.Scheduled {
			where = append(where, "scheduled_time IS NOT NULL")
		} else {
			where = append(where, "scheduled_time IS NULL")
		}
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update replaces the mutable fields of a task.
func (r *TaskRepository) Update(ctx context.Context, t *model.Task) error {
	query := `
        UPDATE tasks
        SET title = $1, description = $2, priority = $3, status = $4,
            completed = $5, energy_level = $6, estimated_time = $7,
            due_date = $8, scheduled_time = $9, progress = $10, tags = $11,
            completed_at = $12, source = $13, updated_at = NOW()
        WHERE id = $14 AND user_id = $15
    `
	tag, err := r.db.Exec(ctx, query,
		t.Title,
		t.Description,
		t.Priority,
		t.Status,
		t.Completed,
		t.EnergyLevel,
		t.EstimatedTime,
		t.DueDate,
		t.ScheduledTime,
		t.Progress,
		t.Tags,
		t.CompletedAt,
		t.Source,
		t.ID,
		t.UserID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a task scoped to its owner.
func (r *TaskRepository) Delete(ctx context.Context, userID int, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Toggle flips completed/status/progress/completed_at in a single statement
// so two concurrent toggles cannot interleave half a flip.
func (r *TaskRepository) Toggle(ctx context.Context, userID int, id string) (*model.Task, error) {
	query := `
        UPDATE tasks
        SET completed = NOT completed,
            status = CASE WHEN completed THEN 'todo' ELSE 'done' END,
            progress = CASE WHEN completed THEN 0 ELSE 100 END,
            completed_at = CASE WHEN completed THEN NULL ELSE NOW() END,
            updated_at = NOW()
        WHERE id = $1 AND user_id = $2
        RETURNING ` + taskColumns
	t, err := scanTask(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}
