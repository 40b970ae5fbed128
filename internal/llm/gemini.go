package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/utils"
)

type geminiClient struct {
	httpClient *http.Client
	log        *logger.Logger
	apiKey     string
	baseURL    string
	model      string
}

func newGeminiClient(log *logger.Logger, model string, httpClient *http.Client) (Client, error) {
	apiKey, err := utils.RequireEnv("GOOGLE_GENERATIVE_AI_API_KEY", log)
	if err != nil {
		return nil, err
	}
	baseURL := utils.GetEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com", log)
	return &geminiClient{
		httpClient: httpClient,
		log:        log.With("service", "GeminiClient", "model", model),
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      strings.TrimPrefix(model, "google/"),
	}, nil
}

type geminiContent struct {
	Role  string `json:"role,omitempty"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

type geminiUsage struct {
	PromptTokenCount        int64 `json:"promptTokenCount"`
	CandidatesTokenCount    int64 `json:"candidatesTokenCount"`
	CachedContentTokenCount int64 `json:"cachedContentTokenCount"`
}

func (u geminiUsage) toUsage() *Usage {
	raw, _ := json.Marshal(u)
	return &Usage{
		InputTokens:     u.PromptTokenCount,
		OutputTokens:    u.CandidatesTokenCount,
		CacheReadTokens: u.CachedContentTokenCount,
		Raw:             raw,
	}
}

type geminiChunk struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *geminiUsage `json:"usageMetadata"`
}

func (ch geminiChunk) text() string {
	var b strings.Builder
	for _, cand := range ch.Candidates {
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func (c *geminiClient) buildBody(req Request) map[string]any {
	contents := make([]map[string]any, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": msg.Content}},
		})
	}
	body := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokensOrDefault(req),
		},
	}
	if req.System != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.System}},
		}
	}
	return body
}

func (c *geminiClient) post(ctx context.Context, action string, req Request) (*http.Response, error) {
	payload, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:%s", c.baseURL, c.model, action)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

func (c *geminiClient) Generate(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.post(ctx, "generateContent", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed geminiChunk
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	usage := &Usage{}
	if parsed.UsageMetadata != nil {
		usage = parsed.UsageMetadata.toUsage()
	}
	return &Completion{Text: parsed.text(), Usage: usage}, nil
}

func (c *geminiClient) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Completion, error) {
	resp, err := c.post(ctx, "streamGenerateContent?alt=sse", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		text  bytes.Buffer
		usage *Usage
	)

	err = scanSSE(resp.Body, func(data string) error {
		var chunk geminiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("gemini: decode stream chunk: %w", err)
		}
		if delta := chunk.text(); delta != "" {
			text.WriteString(delta)
			onChunk(delta)
		}
		if chunk.UsageMetadata != nil {
			usage = chunk.UsageMetadata.toUsage()
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
