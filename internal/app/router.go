package app

import (
	"github.com/gin-gonic/gin"

	"github.com/nanofleet/agentd/internal/server"
)

func wireRouter(handlerset Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AgentHandler:  handlerset.Agent,
		SystemHandler: handlerset.System,
	})
}
