package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowdesk/internal/handler"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *handler.AuthHandler,
	integrationHandler *handler.IntegrationHandler,
	emailHandler *handler.EmailHandler,
	taskHandler *handler.TaskHandler,
	jwtSecret string,
	webhookSecret string,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), MetricsMiddleware())

	// Public
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhook: bearer token OR shared secret
	r.POST("/email/events/sent",
		WebhookAuthMiddleware(jwtSecret, webhookSecret),
		emailHandler.SentEvent,
	)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		integrations := auth.Group("/integrations/:provider")
		{
			integrations.POST("/authorize", integrationHandler.Authorize)
			integrations.POST("/callback", integrationHandler.Callback)
			integrations.POST("/disconnect", integrationHandler.Disconnect)
			integrations.GET("/status", integrationHandler.Status)
			integrations.POST("/sync", integrationHandler.Sync)
			integrations.GET("/events", integrationHandler.Events)
		}

		auth.GET("/email/messages", emailHandler.Messages)
		auth.GET("/email/settings", emailHandler.GetSettings)
		auth.PUT("/email/settings", emailHandler.PutSettings)

		tasks := auth.Group("/tasks")
		{
			tasks.GET("", taskHandler.List)
			tasks.POST("", taskHandler.Create)
			tasks.GET("/:id", taskHandler.Get)
			tasks.PUT("/:id", taskHandler.Update)
			tasks.DELETE("/:id", taskHandler.Delete)
			tasks.POST("/:id/toggle", taskHandler.Toggle)
		}
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
