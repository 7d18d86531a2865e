package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"flowdesk/pkg/metrics"
	"flowdesk/pkg/trace"
	"flowdesk/pkg/util"
)

func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		userID, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		// store user_id in context so handlers can use it
		c.Set("user_id", userID)

		c.Next()
	}
}

// WebhookAuthMiddleware authenticates the sent-events route: either the
// shared webhook secret header (server-to-server delivery) or a regular user
// bearer token.
func WebhookAuthMiddleware(jwtSecret, webhookSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := c.GetHeader("X-Webhook-Secret"); secret != "" {
			if webhookSecret != "" &&
				subtle.ConstantTimeCompare([]byte(secret), []byte(webhookSecret)) == 1 {
				c.Set("webhook_auth", true)
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			c.Abort()
			return
		}

		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}
		userID, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

// TraceMiddleware propagates the X-Trace-ID header into the request context,
// generating one when the caller didn't send any.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}

		ctx := trace.WithContext(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName(), traceID)

		c.Next()
	}
}

// MetricsMiddleware records request latency per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
