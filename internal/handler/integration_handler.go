package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowdesk/internal/model"
	"flowdesk/internal/repository"
	"flowdesk/internal/service/authflow"
	"flowdesk/internal/service/mailbox"
)

type IntegrationHandler struct {
	flow    *authflow.Service
	mailbox *mailbox.Service
	events  *repository.EventRepository
	logger  *zap.Logger
}

func NewIntegrationHandler(
	flow *authflow.Service,
	mailboxSvc *mailbox.Service,
	events *repository.EventRepository,
	logger *zap.Logger,
) *IntegrationHandler {
	return &IntegrationHandler{
		flow:    flow,
		mailbox: mailboxSvc,
		events:  events,
		logger:  logger,
	}
}

// Authorize handles POST /integrations/:provider/authorize
func (h *IntegrationHandler) Authorize(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req struct {
		Scopes      []string `json:"scopes"`
		RedirectURI string   `json:"redirect_uri"`
	}
	// body is optional; defaults come from config
	_ = c.ShouldBindJSON(&req)

	providerName := c.Param("provider")
	authURL, state, err := h.flow.Authorize(c.Request.Context(), providerName, userID, req.Scopes, req.RedirectURI)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auth_url": authURL,
		"state":    state,
	})
}

// Callback handles POST /integrations/:provider/callback
func (h *IntegrationHandler) Callback(c *gin.Context) {
	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" || req.State == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and state required"})
		return
	}

	providerName := c.Param("provider")
	info, err := h.flow.Callback(c.Request.Context(), providerName, req.Code, req.State)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"provider":     providerName,
		"account_info": info,
	})
}

// Disconnect handles POST /integrations/:provider/disconnect
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if err := h.flow.Disconnect(c.Request.Context(), c.Param("provider"), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Status handles GET /integrations/:provider/status
func (h *IntegrationHandler) Status(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	status, err := h.flow.Status(c.Request.Context(), c.Param("provider"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// Sync handles POST /integrations/:provider/sync
func (h *IntegrationHandler) Sync(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	providerName := c.Param("provider")
	count, err := h.mailbox.Sync(c.Request.Context(), userID, providerName)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("mailbox synced",
		zap.String("provider", providerName),
		zap.Int("user_id", userID),
		zap.Int("count", count),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// Events handles GET /integrations/:provider/events
func (h *IntegrationHandler) Events(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	providerName := c.Param("provider")
	if !model.IsValidProvider(providerName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider: " + providerName})
		return
	}

	events, err := h.events.ListByProvider(c.Request.Context(), userID, providerName, 50)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
