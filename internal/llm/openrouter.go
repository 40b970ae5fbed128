package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/utils"
)

// openRouterClient speaks the OpenAI chat-completions dialect. The ":online"
// model suffix enables OpenRouter's provider-side web search.
type openRouterClient struct {
	httpClient *http.Client
	log        *logger.Logger
	apiKey     string
	baseURL    string
	model      string
}

func newOpenRouterClient(log *logger.Logger, model string, httpClient *http.Client) (Client, error) {
	apiKey, err := utils.RequireEnv("OPENROUTER_API_KEY", log)
	if err != nil {
		return nil, err
	}
	baseURL := utils.GetEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1", log)
	return &openRouterClient{
		httpClient: httpClient,
		log:        log.With("service", "OpenRouterClient", "model", model),
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model + ":online",
	}, nil
}

type openAIUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	PromptTokensDetails struct {
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

func (u openAIUsage) toUsage() *Usage {
	raw, _ := json.Marshal(u)
	return &Usage{
		InputTokens:     u.PromptTokens,
		OutputTokens:    u.CompletionTokens,
		CacheReadTokens: u.PromptTokensDetails.CachedTokens,
		Raw:             raw,
	}
}

func (c *openRouterClient) post(ctx context.Context, body map[string]any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("openrouter: status %d: %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

func (c *openRouterClient) buildMessages(req Request) []Message {
	messages := req.Messages
	if req.System != "" {
		messages = append([]Message{{Role: "system", Content: req.System}}, messages...)
	}
	return messages
}

func (c *openRouterClient) Generate(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.post(ctx, map[string]any{
		"model":      c.model,
		"max_tokens": maxTokensOrDefault(req),
		"messages":   c.buildMessages(req),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage openAIUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: response contained no choices")
	}
	return &Completion{Text: parsed.Choices[0].Message.Content, Usage: parsed.Usage.toUsage()}, nil
}

func (c *openRouterClient) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Completion, error) {
	resp, err := c.post(ctx, map[string]any{
		"model":          c.model,
		"max_tokens":     maxTokensOrDefault(req),
		"messages":       c.buildMessages(req),
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		text  bytes.Buffer
		usage *Usage
	)

	err = scanSSE(resp.Body, func(data string) error {
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Usage *openAIUsage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("openrouter: decode stream chunk: %w", err)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			text.WriteString(chunk.Choices[0].Delta.Content)
			onChunk(chunk.Choices[0].Delta.Content)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage.toUsage()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if usage == nil {
		usage = &Usage{}
	}
	return &Completion{Text: text.String(), Usage: usage}, nil
}
