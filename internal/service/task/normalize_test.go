package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }

func TestNormalizeRequiresTitle(t *testing.T) {
	_, err := Normalize(1, model.TaskInput{}, "user")
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierror.From(err).Code)

	_, err = Normalize(1, model.TaskInput{Title: strPtr("")}, "user")
	require.Error(t, err)
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	got, err := Normalize(7, model.TaskInput{Title: strPtr("write report")}, "user")
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 7, got.UserID)
	assert.Equal(t, "write report", got.Title)
	assert.Equal(t, model.TaskPriorityMedium, got.Priority)
	assert.Equal(t, model.TaskStatusTodo, got.Status)
	assert.Equal(t, model.TaskEnergyMedium, got.EnergyLevel)
	assert.Equal(t, 30, got.EstimatedTime)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, []string{}, got.Tags)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, "user", got.CreatedBy)
}

func TestNormalizeIgnoresInvalidEnums(t *testing.T) {
	got, err := Normalize(1, model.TaskInput{
		Title:    strPtr("x"),
		Priority: strPtr("urgent"),
		Status:   strPtr("archived"),
	}, "user")
	require.NoError(t, err)

	assert.Equal(t, model.TaskPriorityMedium, got.Priority)
	assert.Equal(t, model.TaskStatusTodo, got.Status)
}

func TestNormalizeClampsProgress(t *testing.T) {
	got, err := Normalize(1, model.TaskInput{Title: strPtr("x"), Progress: intPtr(250)}, "user")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)

	got, err = Normalize(1, model.TaskInput{Title: strPtr("x"), Progress: intPtr(-5)}, "user")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
}

func TestNormalizeCompletedInput(t *testing.T) {
	got, err := Normalize(1, model.TaskInput{Title: strPtr("x"), Completed: boolPtr(true)}, "automation")
	require.NoError(t, err)

	assert.True(t, got.Completed)
	assert.Equal(t, model.TaskStatusDone, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)
}

func TestNormalizeStatusDoneImpliesCompleted(t *testing.T) {
	got, err := Normalize(1, model.TaskInput{Title: strPtr("x"), Status: strPtr(model.TaskStatusDone)}, "user")
	require.NoError(t, err)

	assert.True(t, got.Completed)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.CompletedAt)
}

func TestApplyUpdatePatchesOnlyPresentFields(t *testing.T) {
	existing := &model.Task{
		Title:         "old title",
		Description:   "old description",
		Priority:      model.TaskPriorityHigh,
		Status:        model.TaskStatusInProgress,
		EnergyLevel:   model.TaskEnergyHigh,
		EstimatedTime: 45,
		Tags:          []string{"keep"},
	}

	ApplyUpdate(existing, model.TaskInput{Description: strPtr("new description")})

	assert.Equal(t, "old title", existing.Title)
	assert.Equal(t, "new description", existing.Description)
	assert.Equal(t, model.TaskPriorityHigh, existing.Priority)
	assert.Equal(t, 45, existing.EstimatedTime)
	assert.Equal(t, []string{"keep"}, existing.Tags)
	assert.False(t, existing.UpdatedAt.IsZero())
}

func TestApplyUpdateStatusDoneCompletes(t *testing.T) {
	existing := &model.Task{Status: model.TaskStatusTodo}

	ApplyUpdate(existing, model.TaskInput{Status: strPtr(model.TaskStatusDone)})

	assert.True(t, existing.Completed)
	assert.Equal(t, 100, existing.Progress)
	require.NotNil(t, existing.CompletedAt)
}

func TestApplyUpdateReopening(t *testing.T) {
	done := time.Now()
	existing := &model.Task{
		Status:      model.TaskStatusDone,
		Completed:   true,
		Progress:    100,
		CompletedAt: &done,
	}

	ApplyUpdate(existing, model.TaskInput{Completed: boolPtr(false)})

	assert.False(t, existing.Completed)
	assert.Equal(t, model.TaskStatusTodo, existing.Status)
	assert.Equal(t, 0, existing.Progress)
	assert.Nil(t, existing.CompletedAt)
}

func TestApplyUpdateStatusAwayFromDoneReopens(t *testing.T) {
	done := time.Now()
	existing := &model.Task{
		Status:      model.TaskStatusDone,
		Completed:   true,
		Progress:    100,
		CompletedAt: &done,
	}

	ApplyUpdate(existing, model.TaskInput{Status: strPtr(model.TaskStatusInProgress)})

	assert.False(t, existing.Completed)
	assert.Equal(t, model.TaskStatusInProgress, existing.Status)
	assert.Nil(t, existing.CompletedAt)
}
