package heartbeat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nanofleet/agentd/internal/logger"
)

// Reserved conversational identifiers for unattended runs. Never shared
// with ordinary sessions, so heartbeat output cannot leak into a user's
// conversation memory.
const (
	ThreadID   = "heartbeat:main"
	ResourceID = "heartbeat"
)

// SentinelOK is the acknowledgement token the agent emits when a run needs
// no human-visible output.
const SentinelOK = "HEARTBEAT_OK"

const stateFileName = "HEARTBEAT.md"

// Unchecked checklist items mark a tick as actionable.
var actionableRe = regexp.MustCompile(`- \[ \]`)

// Invoker runs one prompt in a dedicated conversational context.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, threadID, resourceID string) (string, error)
}

// Publisher receives replies that need human attention.
type Publisher interface {
	Notify(text string)
}

// Runner re-reads the operator-authored HEARTBEAT.md on every tick and
// conditionally invokes the agent. Ticks run independently: a slow run does
// not delay or exclude the next one. Every tick failure is contained here;
// nothing propagates to stop future ticks.
type Runner struct {
	log       *logger.Logger
	workspace string
	interval  time.Duration
	agent     Invoker
	bus       Publisher
}

func NewRunner(baseLog *logger.Logger, workspace string, interval time.Duration, agent Invoker, bus Publisher) *Runner {
	return &Runner{
		log:       baseLog.With("component", "HeartbeatRunner"),
		workspace: workspace,
		interval:  interval,
		agent:     agent,
		bus:       bus,
	}
}

// Start launches the tick loop. It returns immediately; the loop stops when
// ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.log.Info("Starting heartbeat", "interval", r.interval)
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				go r.RunTick(ctx)
			}
		}
	}()
}

// RunTick executes one heartbeat pass. Exported for the scheduler and for
// operator-triggered manual runs.
func (r *Runner) RunTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Heartbeat tick panicked", "panic", rec)
		}
	}()

	r.log.Debug("Heartbeat tick")

	content, ok := r.readState()
	if !ok {
		return
	}

	prompt := buildPrompt(content)

	reply, err := r.agent.Invoke(ctx, prompt, ThreadID, ResourceID)
	if err != nil {
		r.log.Error("Heartbeat run failed", "error", err)
		return
	}

	if strings.HasPrefix(reply, SentinelOK) {
		r.log.Info("Heartbeat OK")
		return
	}

	r.log.Info("Heartbeat processed, emitting notification")
	r.bus.Notify(reply)
}

// readState loads HEARTBEAT.md fresh from disk. Absence and emptiness are
// normal skip conditions, not errors.
func (r *Runner) readState() (string, bool) {
	path := filepath.Join(r.workspace, stateFileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Debug("Heartbeat skipped, state file not found", "path", path)
		} else {
			r.log.Error("Heartbeat state read failed", "path", path, "error", err)
		}
		return "", false
	}

	content := string(raw)
	if strings.TrimSpace(content) == "" || !actionableRe.MatchString(content) {
		r.log.Debug("Heartbeat skipped, no actionable items")
		return "", false
	}
	return content, true
}

func buildPrompt(content string) string {
	return fmt.Sprintf(
		"You are running a scheduled heartbeat check. Here is your HEARTBEAT.md:\n\n%s\n\nProcess any unchecked tasks (- [ ]) above. When done, respond with %s.",
		content, SentinelOK,
	)
}
