package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowdesk/internal/model"
	"flowdesk/internal/repository"
	"flowdesk/internal/service/task"
)

type TaskHandler struct {
	tasks  *task.Service
	logger *zap.Logger
}

func NewTaskHandler(tasks *task.Service, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// List handles GET /tasks
func (h *TaskHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	filter := model.TaskFilter{
		Priority: c.Query("priority"),
		Status:   c.Query("status"),
		Tag:      c.Query("tag"),
	}
	if raw := c.Query("completed"); raw != "" {
		completed := raw == "true"
		filter.Completed = &completed
	}
	if raw := c.Query("scheduled"); raw != "" {
		scheduled := raw == "true"
		filter.Scheduled = &scheduled
	}

	tasks, err := h.tasks.List(c.Request.Context(), userID, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Get handles GET /tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	t, err := h.tasks.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Create handles POST /tasks
func (h *TaskHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var input model.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	t, err := h.tasks.Create(c.Request.Context(), userID, input, "user")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// Update handles PUT /tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var input model.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	t, err := h.tasks.Update(c.Request.Context(), userID, c.Param("id"), input)
	if err != nil {
		h.respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Delete handles DELETE /tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Toggle handles POST /tasks/:id/toggle
func (h *TaskHandler) Toggle(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	t, err := h.tasks.Toggle(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TaskHandler) respondTaskError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	respondError(c, h.logger, err)
}
