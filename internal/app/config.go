package app

import (
	"fmt"
	"time"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/utils"
)

// Version is reported by the healthcheck route.
const Version = "0.1.0"

type Config struct {
	Port      string
	AgentID   string
	AgentName string
	// AgentModel selects the provider: "openrouter:<model>" goes through
	// OpenRouter, "google/*" or "gemini*" through Gemini, anything else
	// through Anthropic.
	AgentModel string
	// Workspace is the directory holding SOUL.md, MEMORY.md, HEARTBEAT.md
	// and the skills/ tree.
	Workspace         string
	HeartbeatInterval time.Duration

	MemoryLastMessages           int
	MemoryConsolidationThreshold int
}

func LoadConfig(log *logger.Logger) (Config, error) {
	model, err := utils.RequireEnv("AGENT_MODEL", log)
	if err != nil {
		return Config{}, err
	}
	workspace, err := utils.RequireEnv("AGENT_WORKSPACE", log)
	if err != nil {
		return Config{}, err
	}

	heartbeatSeconds := utils.GetEnvAsInt("HEARTBEAT_INTERVAL", 1800, log)
	if heartbeatSeconds <= 0 {
		return Config{}, fmt.Errorf("HEARTBEAT_INTERVAL must be a positive number of seconds, got %d", heartbeatSeconds)
	}

	return Config{
		Port:              utils.GetEnv("PORT", "4111", log),
		AgentID:           "main",
		AgentName:         utils.GetEnv("AGENT_NAME", "Main Agent", log),
		AgentModel:        model,
		Workspace:         workspace,
		HeartbeatInterval: time.Duration(heartbeatSeconds) * time.Second,

		MemoryLastMessages:           utils.GetEnvAsInt("MEMORY_LAST_MESSAGES", 20, log),
		MemoryConsolidationThreshold: utils.GetEnvAsInt("MEMORY_CONSOLIDATION_THRESHOLD", 85, log),
	}, nil
}
