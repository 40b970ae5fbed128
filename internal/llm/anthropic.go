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

type anthropicClient struct {
	httpClient *http.Client
	log        *logger.Logger
	apiKey     string
	baseURL    string
	model      string
}

func newAnthropicClient(log *logger.Logger, model string, httpClient *http.Client) (Client, error) {
	apiKey, err := utils.RequireEnv("ANTHROPIC_API_KEY", log)
	if err != nil {
		return nil, err
	}
	baseURL := utils.GetEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com", log)
	return &anthropicClient{
		httpClient: httpClient,
		log:        log.With("service", "AnthropicClient", "model", model),
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
	}, nil
}

type anthropicSystemBlock struct {
	Type         string         `json:"type"`
	Text         string         `json:"text"`
	CacheControl map[string]any `json:"cache_control,omitempty"`
}

type anthropicRequest struct {
	Model     string                 `json:"model"`
	MaxTokens int                    `json:"max_tokens"`
	System    []anthropicSystemBlock `json:"system,omitempty"`
	Messages  []Message              `json:"messages"`
	Stream    bool                   `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage anthropicUsage `json:"usage"`
}

func (c *anthropicClient) buildRequest(req Request, stream bool) anthropicRequest {
	body := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokensOrDefault(req),
		Messages:  req.Messages,
		Stream:    stream,
	}
	if req.System != "" {
		// Ephemeral cache on the system block keeps repeated requests on the
		// provider's prompt cache.
		body.System = []anthropicSystemBlock{{
			Type:         "text",
			Text:         req.System,
			CacheControl: map[string]any{"type": "ephemeral"},
		}}
	}
	return body
}

func (c *anthropicClient) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

func (c *anthropicClient) Generate(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	rawUsage, _ := json.Marshal(parsed.Usage)
	return &Completion{
		Text: text,
		Usage: &Usage{
			InputTokens:      parsed.Usage.InputTokens,
			OutputTokens:     parsed.Usage.OutputTokens,
			CacheReadTokens:  parsed.Usage.CacheReadTokens,
			CacheWriteTokens: parsed.Usage.CacheCreationTokens,
			Raw:              rawUsage,
		},
	}, nil
}

func (c *anthropicClient) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Completion, error) {
	resp, err := c.post(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		text  bytes.Buffer
		usage Usage
	)

	err = scanSSE(resp.Body, func(data string) error {
		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Message struct {
				Usage anthropicUsage `json:"usage"`
			} `json:"message"`
			Usage anthropicUsage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("anthropic: decode stream event: %w", err)
		}
		switch event.Type {
		case "message_start":
			usage.InputTokens = event.Message.Usage.InputTokens
			usage.CacheReadTokens = event.Message.Usage.CacheReadTokens
			usage.CacheWriteTokens = event.Message.Usage.CacheCreationTokens
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				text.WriteString(event.Delta.Text)
				onChunk(event.Delta.Text)
			}
		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				usage.OutputTokens = event.Usage.OutputTokens
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	usage.Raw, _ = json.Marshal(usage)
	return &Completion{Text: text.String(), Usage: &usage}, nil
}
