package services

import (
	"context"
	"sync"
	"time"

	"github.com/nanofleet/agentd/internal/identity"
	"github.com/nanofleet/agentd/internal/llm"
	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/pricing"
)

// GenerateResult is the synchronous response payload: text plus the resolved
// thread and the metering outcome for this one call.
type GenerateResult struct {
	Text     string
	ThreadID string
	Usage    *llm.Usage
	Cost     *float64
}

// GatewayService orchestrates one request end to end: session resolution,
// agent invocation, then best-effort usage metering. Metering failures are
// logged and never affect the caller's response.
type GatewayService interface {
	HasAgent(agentID string) bool
	Generate(ctx context.Context, agentID string, messages []llm.Message, threadID, resourceID string) (*GenerateResult, error)
	// Stream forwards each text delta to onChunk as it arrives and returns
	// the resolved thread id after the stream has completed. Usage is
	// recorded exactly once, only for streams that ran to completion.
	Stream(ctx context.Context, agentID string, messages []llm.Message, threadID, resourceID string, onChunk llm.ChunkFunc) (string, error)
	// Invoke runs a single prompt in a dedicated conversational context,
	// for unattended (heartbeat) runs.
	Invoke(ctx context.Context, prompt string, threadID, resourceID string) (string, error)
}

type gatewayService struct {
	log      *logger.Logger
	agentID  string
	modelID  string
	system   string
	client   llm.Client
	sessions SessionService
	usage    UsageService

	// last model id seen per thread, for prompt-cache observability. Grows
	// without eviction for the life of the process.
	modelMu    sync.Mutex
	modelCache map[string]string
}

func NewGatewayService(
	baseLog *logger.Logger,
	agentID string,
	modelID string,
	systemPrompt string,
	client llm.Client,
	sessionService SessionService,
	usageService UsageService,
) GatewayService {
	return &gatewayService{
		log:        baseLog.With("service", "GatewayService"),
		agentID:    agentID,
		modelID:    modelID,
		system:     systemPrompt,
		client:     client,
		sessions:   sessionService,
		usage:      usageService,
		modelCache: make(map[string]string),
	}
}

func (s *gatewayService) HasAgent(agentID string) bool {
	return agentID == s.agentID
}

// checkModelPin warns when a thread switches models mid-session, which
// defeats the provider's prompt cache. Informational only.
func (s *gatewayService) checkModelPin(threadID string) {
	s.modelMu.Lock()
	defer s.modelMu.Unlock()

	previous, seen := s.modelCache[threadID]
	if seen && previous != s.modelID {
		s.log.Warn("Model changed mid-session; prompt cache will miss",
			"thread_id", threadID, "previous_model", previous, "model", s.modelID)
	}
	s.modelCache[threadID] = s.modelID
}

// withReminders appends the dynamic reminder block to the final user
// message, leaving the caller's slice untouched.
func withReminders(messages []llm.Message) []llm.Message {
	if len(messages) == 0 {
		return messages
	}
	last := len(messages) - 1
	if messages[last].Role != "user" {
		return messages
	}
	enhanced := make([]llm.Message, len(messages))
	copy(enhanced, messages)
	enhanced[last].Content = enhanced[last].Content + "\n\n" + identity.DynamicReminders(time.Now())
	return enhanced
}

func (s *gatewayService) recordUsage(ctx context.Context, threadID string, usage *llm.Usage) {
	if usage == nil {
		return
	}
	tid := threadID
	// The write is detached from the request context: a client that
	// disconnects after the generation completed must not lose the record.
	writeCtx := context.WithoutCancel(ctx)
	if err := s.usage.Record(writeCtx, s.agentID, &tid, s.modelID, *usage); err != nil {
		s.log.Error("Failed to record usage", "thread_id", threadID, "error", err)
	}
}

func (s *gatewayService) Generate(ctx context.Context, agentID string, messages []llm.Message, threadID, resourceID string) (*GenerateResult, error) {
	resolvedThread, _, err := s.sessions.Resolve(ctx, threadID, resourceID)
	if err != nil {
		return nil, err
	}
	s.checkModelPin(resolvedThread)

	completion, err := s.client.Generate(ctx, llm.Request{
		System:   s.system,
		Messages: withReminders(messages),
	})
	if err != nil {
		return nil, err
	}

	var cost *float64
	if completion.Usage != nil {
		cost = pricing.CalculateCost(s.modelID, completion.Usage.InputTokens, completion.Usage.OutputTokens)
		s.recordUsage(ctx, resolvedThread, completion.Usage)
	}

	return &GenerateResult{
		Text:     completion.Text,
		ThreadID: resolvedThread,
		Usage:    completion.Usage,
		Cost:     cost,
	}, nil
}

func (s *gatewayService) Stream(ctx context.Context, agentID string, messages []llm.Message, threadID, resourceID string, onChunk llm.ChunkFunc) (string, error) {
	resolvedThread, _, err := s.sessions.Resolve(ctx, threadID, resourceID)
	if err != nil {
		return "", err
	}
	s.checkModelPin(resolvedThread)

	completion, err := s.client.Stream(ctx, llm.Request{
		System:   s.system,
		Messages: withReminders(messages),
	}, onChunk)
	if err != nil {
		// No partial usage record for a failed stream.
		return resolvedThread, err
	}

	s.recordUsage(ctx, resolvedThread, completion.Usage)
	return resolvedThread, nil
}

func (s *gatewayService) Invoke(ctx context.Context, prompt string, threadID, resourceID string) (string, error) {
	completion, err := s.client.Generate(ctx, llm.Request{
		System:   s.system,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if completion.Usage != nil {
		s.recordUsage(ctx, threadID, completion.Usage)
	}
	return completion.Text, nil
}
