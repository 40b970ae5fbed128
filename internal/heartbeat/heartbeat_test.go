package heartbeat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

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

type fakeInvoker struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	threads []string
	reply   string
	err     error
}

func (f *fakeInvoker) Invoke(ctx context.Context, prompt, threadID, resourceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.threads = append(f.threads, threadID+"/"+resourceID)
	return f.reply, f.err
}

type fakePublisher struct {
	mu  sync.Mutex
	got []string
}

func (f *fakePublisher) Notify(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, text)
}

func writeHeartbeatFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, stateFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write heartbeat file: %v", err)
	}
}

func newTestRunner(t *testing.T, dir string, agent *fakeInvoker, bus *fakePublisher) *Runner {
	t.Helper()
	return NewRunner(mustTestLogger(t), dir, 0, agent, bus)
}

func TestTickSkipsWhenFileMissing(t *testing.T) {
	agent := &fakeInvoker{}
	bus := &fakePublisher{}
	newTestRunner(t, t.TempDir(), agent, bus).RunTick(context.Background())

	if agent.calls != 0 {
		t.Fatalf("invocations: want=0 got=%d", agent.calls)
	}
	if len(bus.got) != 0 {
		t.Fatalf("notifications: want=0 got=%d", len(bus.got))
	}
}

func TestTickSkipsWithoutActionableItems(t *testing.T) {
	dir := t.TempDir()
	writeHeartbeatFile(t, dir, "# Heartbeat\n- [x] already done\nnotes\n")

	agent := &fakeInvoker{}
	bus := &fakePublisher{}
	newTestRunner(t, dir, agent, bus).RunTick(context.Background())

	if agent.calls != 0 {
		t.Fatalf("invocations: want=0 got=%d", agent.calls)
	}
	if len(bus.got) != 0 {
		t.Fatalf("notifications: want=0 got=%d", len(bus.got))
	}
}

func TestTickSentinelReplyStaysSilent(t *testing.T) {
	dir := t.TempDir()
	writeHeartbeatFile(t, dir, "- [ ] check the feeds\n")

	agent := &fakeInvoker{reply: SentinelOK + " nothing to report"}
	bus := &fakePublisher{}
	newTestRunner(t, dir, agent, bus).RunTick(context.Background())

	if agent.calls != 1 {
		t.Fatalf("invocations: want=1 got=%d", agent.calls)
	}
	if len(bus.got) != 0 {
		t.Fatalf("notifications: want=0 got=%d", len(bus.got))
	}
}

func TestTickPublishesNonSentinelReply(t *testing.T) {
	dir := t.TempDir()
	writeHeartbeatFile(t, dir, "- [ ] check the feeds\n")

	agent := &fakeInvoker{reply: "Feed X is down, you should look at it."}
	bus := &fakePublisher{}
	newTestRunner(t, dir, agent, bus).RunTick(context.Background())

	if agent.calls != 1 {
		t.Fatalf("invocations: want=1 got=%d", agent.calls)
	}
	if len(bus.got) != 1 {
		t.Fatalf("notifications: want=1 got=%d", len(bus.got))
	}
	if bus.got[0] != agent.reply {
		t.Fatalf("notification text: want=%q got=%q", agent.reply, bus.got[0])
	}
}

func TestTickUsesReservedIdentifiersAndEmbedsDocument(t *testing.T) {
	dir := t.TempDir()
	writeHeartbeatFile(t, dir, "- [ ] rotate the logs\n")

	agent := &fakeInvoker{reply: SentinelOK}
	newTestRunner(t, dir, agent, &fakePublisher{}).RunTick(context.Background())

	if agent.threads[0] != ThreadID+"/"+ResourceID {
		t.Fatalf("context: want=%s/%s got=%s", ThreadID, ResourceID, agent.threads[0])
	}
	if !strings.Contains(agent.prompts[0], "rotate the logs") {
		t.Fatalf("prompt missing document content: %q", agent.prompts[0])
	}
	if !strings.Contains(agent.prompts[0], SentinelOK) {
		t.Fatalf("prompt missing sentinel instruction: %q", agent.prompts[0])
	}
}

func TestTickContainsInvokerFailure(t *testing.T) {
	dir := t.TempDir()
	writeHeartbeatFile(t, dir, "- [ ] anything\n")

	agent := &fakeInvoker{err: errors.New("upstream exploded")}
	bus := &fakePublisher{}
	runner := newTestRunner(t, dir, agent, bus)

	// Must not panic, must not notify.
	runner.RunTick(context.Background())
	if len(bus.got) != 0 {
		t.Fatalf("notifications after failure: want=0 got=%d", len(bus.got))
	}

	// The next tick still runs.
	agent.err = nil
	agent.reply = SentinelOK
	runner.RunTick(context.Background())
	if agent.calls != 2 {
		t.Fatalf("invocations: want=2 got=%d", agent.calls)
	}
}

func TestTickRereadsDocumentEachRun(t *testing.T) {
	dir := t.TempDir()
	writeHeartbeatFile(t, dir, "- [ ] first pass\n")

	agent := &fakeInvoker{reply: SentinelOK}
	runner := newTestRunner(t, dir, agent, &fakePublisher{})
	runner.RunTick(context.Background())

	// Checking everything off stops further invocations without restarting.
	writeHeartbeatFile(t, dir, "- [x] first pass\n")
	runner.RunTick(context.Background())

	if agent.calls != 1 {
		t.Fatalf("invocations: want=1 got=%d", agent.calls)
	}
}
