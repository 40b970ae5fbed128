package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/utils"
)

// RedisMirror republishes every notification onto a Redis channel so that
// processes outside this one can observe heartbeat output. The in-process
// bus keeps its drop semantics; the mirror is fire-and-forget.
type RedisMirror struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisMirror(log *logger.Logger) (*RedisMirror, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := strings.TrimSpace(utils.GetEnv("REDIS_CHANNEL", "notifications", log))

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisMirror{
		log:     log.With("component", "RedisNotificationMirror"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (m *RedisMirror) Forward(n Notification) {
	raw, err := json.Marshal(n)
	if err != nil {
		m.log.Warn("Failed to marshal notification for redis", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.rdb.Publish(ctx, m.channel, raw).Err(); err != nil {
		m.log.Warn("Failed to publish notification to redis", "error", err)
	}
}

func (m *RedisMirror) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}
