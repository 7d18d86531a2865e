package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
	"flowdesk/internal/service/automation"
	"flowdesk/internal/service/mailbox"
)

// SettingsStore is the settings persistence surface the handler needs.
type SettingsStore interface {
	Get(ctx context.Context, userID int) (model.EmailSettings, error)
	Upsert(ctx context.Context, s model.EmailSettings) error
}

type EmailHandler struct {
	mailbox  *mailbox.Service
	engine   *automation.Engine
	settings SettingsStore
	logger   *zap.Logger
}

func NewEmailHandler(
	mailboxSvc *mailbox.Service,
	engine *automation.Engine,
	settings SettingsStore,
	logger *zap.Logger,
) *EmailHandler {
	return &EmailHandler{
		mailbox:  mailboxSvc,
		engine:   engine,
		settings: settings,
		logger:   logger,
	}
}

// Messages handles GET /email/messages
func (h *EmailHandler) Messages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	providerName := c.DefaultQuery("provider", mailbox.ProviderAll)
	folder := c.DefaultQuery("folder", model.FolderInbox)
	if folder != model.FolderInbox && folder != model.FolderSent {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folder must be inbox or sent"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	result, err := h.mailbox.FetchMessages(
		c.Request.Context(),
		userID,
		providerName,
		folder,
		limit,
		c.Query("cursor"),
		c.Query("q"),
	)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SentEvent handles POST /email/events/sent. The route accepts either a user
// bearer token or the shared webhook secret; with a bearer token the caller
// may only submit events for themselves.
func (h *EmailHandler) SentEvent(c *gin.Context) {
	var ev automation.SentEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !c.GetBool("webhook_auth") {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}
		if userID != ev.UserID {
			respondError(c, h.logger, apierror.Forbidden("cannot submit events for another user"))
			return
		}
	}

	result, err := h.engine.Process(c.Request.Context(), ev, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := gin.H{"success": true}
	switch {
	case result.Deduped:
		resp["deduped"] = true
	case result.Skipped != "":
		resp["skipped"] = result.Skipped
	default:
		resp["task_id"] = result.TaskID
	}
	c.JSON(http.StatusOK, resp)
}

// GetSettings handles GET /email/settings
func (h *EmailHandler) GetSettings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	settings, err := h.settings.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// PutSettings handles PUT /email/settings
func (h *EmailHandler) PutSettings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req struct {
		AutoCompleteSentEmails *bool `json:"auto_complete_sent_emails"`
		RetentionDays          *int  `json:"retention_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	settings, err := h.settings.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if req.AutoCompleteSentEmails != nil {
		settings.AutoCompleteSentEmails = *req.AutoCompleteSentEmails
	}
	if req.RetentionDays != nil {
		settings.RetentionDays = model.ClampRetentionDays(*req.RetentionDays)
	}
	settings.UserID = userID

	if err := h.settings.Upsert(c.Request.Context(), settings); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}
