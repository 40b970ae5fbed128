package app

import (
	"gorm.io/gorm"

	"github.com/nanofleet/agentd/internal/llm"
	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/services"
)

type Services struct {
	Session services.SessionService
	Usage   services.UsageService
	Gateway services.GatewayService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, client llm.Client, systemPrompt string) Services {
	log.Info("Wiring services...")

	sessionService := services.NewSessionService(db, log, reposet.Thread)
	usageService := services.NewUsageService(db, log, reposet.Usage)
	gatewayService := services.NewGatewayService(
		log,
		cfg.AgentID,
		cfg.AgentModel,
		systemPrompt,
		client,
		sessionService,
		usageService,
	)

	return Services{
		Session: sessionService,
		Usage:   usageService,
		Gateway: gatewayService,
	}
}
