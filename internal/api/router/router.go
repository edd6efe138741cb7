package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/chat-relay/internal/api/handler"
)

// Config holds router-level settings
type Config struct {
	APIKeys     map[string]string
	CORSOrigins []string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, cfg Config) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	queueHandler := handler.NewQueueHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)

	v1 := r.Group("/api/v1")
	v1.Use(APIKeyAuth(cfg.APIKeys, deps.Logger))
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
			jobs.POST("/:job_id/retry", jobHandler.RetryJob)
		}

		q := v1.Group("/queue")
		{
			q.GET("/status", queueHandler.Status)
			q.POST("/pause", queueHandler.Pause)
			q.POST("/resume", queueHandler.Resume)
			q.POST("/cleanup", queueHandler.Cleanup)
		}

		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("", webhookHandler.Register)
			webhooks.GET("", webhookHandler.List)
			webhooks.DELETE("/:id", webhookHandler.Deactivate)
			webhooks.POST("/:id/test", webhookHandler.Test)
		}
	}

	return r
}
