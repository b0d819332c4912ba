package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/flynn-ai/vox/internal/errors"
)

// OpenAIConfig configures a client for an OpenAI-compatible chat
// completions endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // Default: https://api.openai.com/v1
	Model      string // e.g., "gpt-4o-mini"
	Timeout    time.Duration
	MaxRetries int
}

// DefaultOpenAIConfig returns default configuration.
func DefaultOpenAIConfig(apiKey string) *OpenAIConfig {
	return &OpenAIConfig{
		APIKey:     apiKey,
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// OpenAIClient implements Model over the chat completions API with
// function calling.
type OpenAIClient struct {
	cfg         *OpenAIConfig
	client      *http.Client
	retryPolicy *errors.Policy
	logger      *zap.Logger
}

// NewOpenAIClient creates a new client. Transport failures, 5xx and 429
// responses are retried.
func NewOpenAIClient(cfg *OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	retryPolicy := errors.SlowPolicy()
	switch {
	case cfg.MaxRetries == 1:
		retryPolicy = errors.NoRetry()
	case cfg.MaxRetries > 1:
		retryPolicy.MaxAttempts = cfg.MaxRetries
	}

	return &OpenAIClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryPolicy: retryPolicy,
		logger:      logger,
	}
}

// Generate sends the conversation and returns the assistant turn.
func (c *OpenAIClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if c == nil {
		return nil, errors.Permanent(errors.CodeModelUnavailable, "model client not initialized")
	}
	if !c.IsAvailable() {
		return nil, errors.Permanent(errors.CodeModelUnavailable, "API key not configured (set OPENAI_API_KEY or model.api_key)")
	}

	jsonBody, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelInvalidResponse, "failed to marshal request", errors.CategoryPermanent)
	}

	start := time.Now()
	respBody, err := errors.DoWithResult(ctx, c.retryPolicy, func() ([]byte, error) {
		return c.post(ctx, jsonBody)
	})
	if err != nil {
		return nil, err
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.Wrap(err, errors.CodeModelInvalidResponse, "failed to parse API response", errors.CategoryPermanent)
	}
	if len(apiResp.Choices) == 0 {
		return nil, errors.New(errors.CodeModelInvalidResponse, "API response contained no choices", errors.CategoryPermanent)
	}

	choice := apiResp.Choices[0]
	resp := &Response{
		Text:       choice.Message.Content,
		Model:      apiResp.Model,
		TokensUsed: apiResp.Usage.TotalTokens,
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "" && tc.Type != "function" {
			continue
		}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"raw": tc.Function.Arguments}
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: args,
		})
	}
	resp.FinishReason = normalizeFinish(choice.FinishReason, len(resp.ToolCalls))

	c.logger.Debug("model generated",
		zap.String("model", resp.Model),
		zap.String("finish", string(resp.FinishReason)),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("tokens", resp.TokensUsed),
		zap.Int64("duration_ms", resp.DurationMs))
	return resp, nil
}

// post performs one HTTP attempt and classifies failures for retry.
func (c *OpenAIClient) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelUnavailable, "failed to create HTTP request", errors.CategoryPermanent)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	r, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelUnavailable, "network request failed", errors.CategoryTemporary)
	}
	b, readErr := io.ReadAll(r.Body)
	r.Body.Close()
	if readErr != nil {
		return nil, errors.Wrap(readErr, errors.CodeModelUnavailable, "failed to read response body", errors.CategoryTemporary)
	}

	switch {
	case r.StatusCode == http.StatusOK:
		return b, nil
	case r.StatusCode == http.StatusTooManyRequests:
		return nil, errors.RateLimit(errors.CodeModelRateLimit, "rate limited by model API", retryAfter(r.Header.Get("Retry-After")))
	case r.StatusCode >= 500:
		c.logger.Warn("model API unavailable", zap.Int("status", r.StatusCode))
		return nil, errors.Temporary(errors.CodeModelUnavailable, fmt.Sprintf("API unavailable: %s", r.Status))
	default:
		return nil, errors.Permanent(errors.CodeModelInvalidResponse, fmt.Sprintf("API error (status %d): %s", r.StatusCode, string(b)))
	}
}

func (c *OpenAIClient) buildBody(req *Request) chatRequest {
	body := chatRequest{
		Model:       c.cfg.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: string(RoleSystem), Content: ptr(req.System)})
	}
	for _, m := range req.Messages {
		msg := chatMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			msg.Content = ptr(m.Content)
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Input)
			if err != nil || tc.Input == nil {
				args = []byte("{}")
			}
			call := chatToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = string(args)
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		body.Messages = append(body.Messages, msg)
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return body
}

// IsAvailable checks if the client is configured.
func (c *OpenAIClient) IsAvailable() bool {
	return c != nil && c.cfg != nil && c.cfg.APIKey != ""
}

// Name returns the model name.
func (c *OpenAIClient) Name() string {
	if c != nil && c.cfg != nil {
		return c.cfg.Model
	}
	return "openai"
}

func normalizeFinish(reason string, toolCalls int) FinishReason {
	if toolCalls > 0 || reason == string(FinishToolCalls) {
		return FinishToolCalls
	}
	return FinishStop
}

func retryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func ptr[T any](v T) *T { return &v }

// ============================================================
// Chat Completions API Types
// ============================================================

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string         `json:"role"`
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
