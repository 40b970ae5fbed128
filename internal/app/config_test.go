package app

import (
	"testing"
	"time"

	"github.com/nanofleet/agentd/internal/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AGENT_MODEL", "claude-haiku-4-5")
	t.Setenv("AGENT_WORKSPACE", t.TempDir())
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(mustTestLogger(t))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "4111" {
		t.Fatalf("port: want=4111 got=%s", cfg.Port)
	}
	if cfg.AgentID != "main" {
		t.Fatalf("agentID: want=main got=%s", cfg.AgentID)
	}
	if cfg.HeartbeatInterval != 1800*time.Second {
		t.Fatalf("heartbeat interval: want=30m got=%s", cfg.HeartbeatInterval)
	}
	if cfg.MemoryLastMessages != 20 || cfg.MemoryConsolidationThreshold != 85 {
		t.Fatalf("memory config: want=20/85 got=%d/%d", cfg.MemoryLastMessages, cfg.MemoryConsolidationThreshold)
	}
}

func TestLoadConfigRequiresModel(t *testing.T) {
	t.Setenv("AGENT_MODEL", "")
	t.Setenv("AGENT_WORKSPACE", t.TempDir())

	if _, err := LoadConfig(nil); err == nil {
		t.Fatalf("LoadConfig without AGENT_MODEL: want error, got nil")
	}
}

func TestLoadConfigRejectsNonPositiveHeartbeatInterval(t *testing.T) {
	setRequiredEnv(t)

	for _, interval := range []string{"0", "-60"} {
		t.Setenv("HEARTBEAT_INTERVAL", interval)
		if _, err := LoadConfig(mustTestLogger(t)); err == nil {
			t.Fatalf("LoadConfig with HEARTBEAT_INTERVAL=%s: want error, got nil", interval)
		}
	}
}
