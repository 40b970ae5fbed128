package app

import (
	"github.com/nanofleet/agentd/internal/handlers"
	"github.com/nanofleet/agentd/internal/identity"
	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/notify"
	"github.com/nanofleet/agentd/internal/skills"
)

type Handlers struct {
	Agent  *handlers.AgentHandler
	System *handlers.SystemHandler
}

func wireHandlers(
	log *logger.Logger,
	cfg Config,
	serviceset Services,
	bus *notify.Bus,
	identityLoader *identity.Loader,
	loadedSkills []skills.Skill,
) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Agent: handlers.NewAgentHandler(
			log,
			cfg.AgentName,
			serviceset.Gateway,
			serviceset.Session,
			serviceset.Usage,
			bus,
		),
		System: handlers.NewSystemHandler(
			log,
			Version,
			identityLoader,
			loadedSkills,
			handlers.MemoryConfig{
				LastMessages:           cfg.MemoryLastMessages,
				ConsolidationThreshold: cfg.MemoryConsolidationThreshold,
			},
		),
	}
}
