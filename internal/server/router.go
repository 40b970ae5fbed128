package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nanofleet/agentd/internal/handlers"
)

type RouterConfig struct {
	AgentHandler  *handlers.AgentHandler
	SystemHandler *handlers.SystemHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("agentd"))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
	}))

	// ===============
	// || System    ||
	// ===============
	router.GET("/healthcheck", cfg.SystemHandler.HealthCheck)
	router.GET("/identity", cfg.SystemHandler.Identity)
	router.GET("/system-prompt", cfg.SystemHandler.SystemPrompt)
	router.GET("/skills", cfg.SystemHandler.Skills)
	router.GET("/skills/:skillId", cfg.SystemHandler.SkillContent)
	router.GET("/memory/config", cfg.SystemHandler.MemorySettings)

	// ===============
	// || Agents    ||
	// ===============
	api := router.Group("/api")
	{
		api.GET("/agents", cfg.AgentHandler.ListAgents)

		agent := api.Group("/agents/:id")
		{
			agent.POST("/generate", cfg.AgentHandler.Generate)
			agent.POST("/stream", cfg.AgentHandler.Stream)
			agent.GET("/memory/threads", cfg.AgentHandler.ListThreads)
			agent.POST("/memory/threads", cfg.AgentHandler.CreateThread)
			agent.GET("/usage", cfg.AgentHandler.AgentUsage)
			agent.GET("/usage/threads/:threadId", cfg.AgentHandler.ThreadUsage)
			agent.GET("/notifications/stream", cfg.AgentHandler.NotificationsStream)
		}
	}

	return router
}
