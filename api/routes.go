package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailmirror/api/handlers"
	"github.com/customeros/mailmirror/api/middleware"
	"github.com/customeros/mailmirror/internal/repository"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/services"
)

const APIKeyHeader = "X-MAILMIRROR-API-KEY"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.Gateway))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware("mailmirror"))
	api.Use(middleware.TracingMiddleware())
	{
		api.POST("/commands", handlers.PostCommand(s.CommandHandler))
		api.POST("/triggers/:tag", handlers.PostTrigger(s.MutationService))
		api.GET("/notifications", handlers.StreamNotifications(s.EventsService.Bus))

		accounts := api.Group("/accounts/:account")
		{
			accounts.GET("/sync", handlers.GetSyncStatus(s.SyncService))
			accounts.DELETE("/sync", handlers.DeleteSync(s.SyncService))

			accounts.GET("/folders", handlers.ListFolders(repos))
			accounts.GET("/messages", handlers.ListMessages(repos))
			accounts.GET("/messages/:id/body", handlers.GetMessageBody(repos))

			accounts.POST("/mutations", handlers.EnqueueMutation(s.MutationService))
			accounts.GET("/mutations", handlers.ListMutations(s.MutationService))
			accounts.DELETE("/mutations/:id", handlers.DiscardMutation(s.MutationService))
		}
	}
}
