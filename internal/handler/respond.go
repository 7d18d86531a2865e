package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowdesk/internal/apierror"
)

// respondError renders the stable {error, details?} shape for any error the
// services return. Untyped errors become opaque 500s.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	if apiErr := apierror.From(err); apiErr != nil {
		body := gin.H{"error": apiErr.Message}
		if apiErr.Details != nil {
			body["details"] = apiErr.Details
		}
		c.JSON(apiErr.Status, body)
		return
	}

	log.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func currentUserID(c *gin.Context) (int, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}
