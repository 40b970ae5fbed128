package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nanofleet/agentd/internal/logger"
)

// Message is one turn of chat input to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage carries the provider's token counters for one completed call. Cache
// counters default to zero for providers that do not report them.
type Usage struct {
	InputTokens      int64           `json:"inputTokens"`
	OutputTokens     int64           `json:"outputTokens"`
	CacheReadTokens  int64           `json:"cacheReadTokens"`
	CacheWriteTokens int64           `json:"cacheWriteTokens"`
	Raw              json.RawMessage `json:"-"`
}

type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

type Completion struct {
	Text  string
	Usage *Usage
}

// ChunkFunc receives each incremental text delta during streaming, in order.
type ChunkFunc func(text string)

// Client is the model invocation boundary. Implementations perform no
// retries; errors propagate to the caller. Stream calls onChunk for each
// text delta and returns the final completion (with usage) only after the
// underlying stream has finished.
type Client interface {
	Generate(ctx context.Context, req Request) (*Completion, error)
	Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Completion, error)
}

// NewClient dispatches on the configured model id:
//   - "openrouter:<model>" → OpenRouter (":online" suffix for built-in search)
//   - "google/*" or "gemini*" → Gemini
//   - anything else → Anthropic
func NewClient(log *logger.Logger, modelID string) (Client, error) {
	httpClient := &http.Client{Timeout: 10 * time.Minute}

	if strings.HasPrefix(modelID, "openrouter:") {
		return newOpenRouterClient(log, strings.TrimPrefix(modelID, "openrouter:"), httpClient)
	}
	if strings.HasPrefix(modelID, "google/") || strings.HasPrefix(modelID, "gemini") {
		return newGeminiClient(log, modelID, httpClient)
	}
	return newAnthropicClient(log, modelID, httpClient)
}

const defaultMaxTokens = 8192

func maxTokensOrDefault(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
