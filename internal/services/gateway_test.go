package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nanofleet/agentd/internal/llm"
	"github.com/nanofleet/agentd/internal/types"
)

type fakeSessions struct {
	threadID   string
	resourceID string
}

func (f *fakeSessions) Resolve(ctx context.Context, threadID, resourceID string) (string, string, error) {
	return f.threadID, f.resourceID, nil
}

func (f *fakeSessions) ListThreads(ctx context.Context) ([]*types.Thread, error) {
	return nil, nil
}

func (f *fakeSessions) CreateThread(ctx context.Context, resourceID string) (*types.Thread, error) {
	return types.NewThread(resourceID), nil
}

type recordedUsage struct {
	agentID  string
	threadID *string
	modelID  string
	usage    llm.Usage
}

type fakeUsage struct {
	mu      sync.Mutex
	records []recordedUsage
	err     error
}

func (f *fakeUsage) Record(ctx context.Context, agentID string, threadID *string, modelID string, usage llm.Usage) error {
	// Honor cancellation the way a real database driver would.
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, recordedUsage{agentID: agentID, threadID: threadID, modelID: modelID, usage: usage})
	return nil
}

func (f *fakeUsage) AgentSummary(ctx context.Context, agentID string) (*types.UsageSummary, error) {
	return &types.UsageSummary{}, nil
}

func (f *fakeUsage) ThreadSummary(ctx context.Context, agentID, threadID string) (*types.UsageSummary, error) {
	return &types.UsageSummary{}, nil
}

type fakeClient struct {
	modelID    string
	text       string
	usage      *llm.Usage
	chunks     []string
	err        error
	lastReq    llm.Request
	generates  int
	streamRuns int
	finish     func()
}

func (f *fakeClient) Generate(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	f.generates++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.finish != nil {
		f.finish()
	}
	return &llm.Completion{Text: f.text, Usage: f.usage}, nil
}

func (f *fakeClient) Stream(ctx context.Context, req llm.Request, onChunk llm.ChunkFunc) (*llm.Completion, error) {
	f.streamRuns++
	f.lastReq = req
	for _, chunk := range f.chunks {
		onChunk(chunk)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.finish != nil {
		f.finish()
	}
	return &llm.Completion{Text: strings.Join(f.chunks, ""), Usage: f.usage}, nil
}

func newTestGateway(t *testing.T, client *fakeClient, usage *fakeUsage) GatewayService {
	t.Helper()
	sessions := &fakeSessions{threadID: "thread-1", resourceID: "default"}
	return NewGatewayService(mustTestLogger(t), "main", client.modelID, "You are a test.", client, sessions, usage)
}

func TestHasAgent(t *testing.T) {
	gw := newTestGateway(t, &fakeClient{modelID: "claude-haiku-4-5"}, &fakeUsage{})

	if !gw.HasAgent("main") {
		t.Fatalf("HasAgent(main): want=true got=false")
	}
	if gw.HasAgent("other") {
		t.Fatalf("HasAgent(other): want=false got=true")
	}
}

func TestGenerateRecordsUsageAndComputesCost(t *testing.T) {
	client := &fakeClient{
		modelID: "claude-haiku-4-5",
		text:    "hello",
		usage:   &llm.Usage{InputTokens: 1_000_000, OutputTokens: 0},
	}
	usage := &fakeUsage{}
	gw := newTestGateway(t, client, usage)

	result, err := gw.Generate(context.Background(), "main", []llm.Message{{Role: "user", Content: "hi"}}, "", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text != "hello" {
		t.Fatalf("text: want=hello got=%s", result.Text)
	}
	if result.ThreadID != "thread-1" {
		t.Fatalf("threadID: want=thread-1 got=%s", result.ThreadID)
	}
	if result.Cost == nil || *result.Cost != 1.0 {
		t.Fatalf("cost: want=1.0 got=%v", result.Cost)
	}
	if len(usage.records) != 1 {
		t.Fatalf("usage records: want=1 got=%d", len(usage.records))
	}
	if *usage.records[0].threadID != "thread-1" {
		t.Fatalf("recorded threadID: want=thread-1 got=%s", *usage.records[0].threadID)
	}
}

func TestGenerateAppendsRemindersWithoutMutatingInput(t *testing.T) {
	client := &fakeClient{modelID: "claude-haiku-4-5", text: "ok"}
	gw := newTestGateway(t, client, &fakeUsage{})

	messages := []llm.Message{{Role: "user", Content: "what time is it"}}
	if _, err := gw.Generate(context.Background(), "main", messages, "", ""); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	sent := client.lastReq.Messages
	if !strings.Contains(sent[len(sent)-1].Content, "<system-reminder>") {
		t.Fatalf("final message missing reminder block: %q", sent[len(sent)-1].Content)
	}
	if messages[0].Content != "what time is it" {
		t.Fatalf("caller slice mutated: %q", messages[0].Content)
	}
}

func TestStreamForwardsChunksAndRecordsOnce(t *testing.T) {
	client := &fakeClient{
		modelID: "claude-haiku-4-5",
		chunks:  []string{"one ", "two ", "three"},
		usage:   &llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
	usage := &fakeUsage{}
	gw := newTestGateway(t, client, usage)

	var got []string
	threadID, err := gw.Stream(context.Background(), "main", []llm.Message{{Role: "user", Content: "go"}}, "", "", func(text string) {
		got = append(got, text)
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if threadID != "thread-1" {
		t.Fatalf("threadID: want=thread-1 got=%s", threadID)
	}
	if strings.Join(got, "") != "one two three" {
		t.Fatalf("chunks: want=%q got=%q", "one two three", strings.Join(got, ""))
	}
	if len(usage.records) != 1 {
		t.Fatalf("usage records: want=1 got=%d", len(usage.records))
	}
}

func TestFailedStreamRecordsNoUsage(t *testing.T) {
	client := &fakeClient{
		modelID: "claude-haiku-4-5",
		chunks:  []string{"partial "},
		err:     errors.New("connection reset"),
	}
	usage := &fakeUsage{}
	gw := newTestGateway(t, client, usage)

	_, err := gw.Stream(context.Background(), "main", []llm.Message{{Role: "user", Content: "go"}}, "", "", func(string) {})
	if err == nil {
		t.Fatalf("Stream: want error, got nil")
	}
	if len(usage.records) != 0 {
		t.Fatalf("usage records after failed stream: want=0 got=%d", len(usage.records))
	}
}

func TestGenerateSurvivesUsageWriteFailure(t *testing.T) {
	client := &fakeClient{
		modelID: "claude-haiku-4-5",
		text:    "still here",
		usage:   &llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
	usage := &fakeUsage{err: errors.New("disk full")}
	gw := newTestGateway(t, client, usage)

	result, err := gw.Generate(context.Background(), "main", []llm.Message{{Role: "user", Content: "hi"}}, "", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text != "still here" {
		t.Fatalf("text: want=still here got=%s", result.Text)
	}
}

func TestUsageSurvivesDisconnectAfterCompletedStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		modelID: "claude-haiku-4-5",
		chunks:  []string{"all ", "done"},
		usage:   &llm.Usage{InputTokens: 10, OutputTokens: 5},
		// The client drops the connection the instant the stream finishes.
		finish: cancel,
	}
	usage := &fakeUsage{}
	gw := newTestGateway(t, client, usage)

	if _, err := gw.Stream(ctx, "main", []llm.Message{{Role: "user", Content: "go"}}, "", "", func(string) {}); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(usage.records) != 1 {
		t.Fatalf("usage records after disconnect: want=1 got=%d", len(usage.records))
	}
}

func TestUsageSurvivesDisconnectAfterCompletedGenerate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		modelID: "claude-haiku-4-5",
		text:    "done",
		usage:   &llm.Usage{InputTokens: 10, OutputTokens: 5},
		finish:  cancel,
	}
	usage := &fakeUsage{}
	gw := newTestGateway(t, client, usage)

	if _, err := gw.Generate(ctx, "main", []llm.Message{{Role: "user", Content: "go"}}, "", ""); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(usage.records) != 1 {
		t.Fatalf("usage records after disconnect: want=1 got=%d", len(usage.records))
	}
}

func TestInvokeRecordsUnderGivenThread(t *testing.T) {
	client := &fakeClient{
		modelID: "claude-haiku-4-5",
		text:    "HEARTBEAT_OK",
		usage:   &llm.Usage{InputTokens: 42, OutputTokens: 7},
	}
	usage := &fakeUsage{}
	gw := newTestGateway(t, client, usage)

	reply, err := gw.Invoke(context.Background(), "check tasks", "heartbeat:main", "heartbeat")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply != "HEARTBEAT_OK" {
		t.Fatalf("reply: want=HEARTBEAT_OK got=%s", reply)
	}
	if len(usage.records) != 1 {
		t.Fatalf("usage records: want=1 got=%d", len(usage.records))
	}
	if *usage.records[0].threadID != "heartbeat:main" {
		t.Fatalf("recorded threadID: want=heartbeat:main got=%s", *usage.records[0].threadID)
	}
}
