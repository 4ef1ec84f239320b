package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pawbot/internal/provider"
	"pawbot/pkg/logger"
)

var _ provider.Provider = (*Provider)(nil)

// Error definitions.
var (
	ErrConnectionFailed = errors.New("failed to connect to model API")
	ErrInvalidResponse  = errors.New("invalid response from model API")
)

const name = "openai"

// Provider talks to /chat/completions.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// New creates a provider, filling unset fields with defaults.
func New(cfg Config) *Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Provider{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return name }

// Model returns the default model.
func (p *Provider) Model() string { return p.model }

// Chat sends a chat completion request and returns the response.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	chatReq := p.buildRequest(req)

	logger.Debug().
		Str("model", chatReq.Model).
		Int("message_count", len(chatReq.Messages)).
		Msg("chat request")

	resp, err := p.doRequest(ctx, "/chat/completions", chatReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("model error response")
		return nil, p.handleErrorResponse(resp.StatusCode, body)
	}

	if len(body) == 0 {
		return nil, provider.NewProviderError(provider.ErrCodeServiceUnavailable,
			"empty response (HTTP 200)", name, true)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		logger.Error().Err(err).Str("body", string(body)).Msg("failed to parse model response")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("model API error: [%s] %s", chatResp.Error.Type, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, provider.NewProviderError(provider.ErrCodeServiceUnavailable,
			"response has no choices", name, true)
	}

	return convertResponse(&chatResp), nil
}

func (p *Provider) buildRequest(req provider.ChatRequest) *chatRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	chatReq := &chatRequest{
		Model:     model,
		Messages:  make([]chatMessage, 0, len(req.Messages)),
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		chatReq.Temperature = &temp
	}
	for _, msg := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, chatMessage{
			Role:    string(msg.Role),
			Content: strPtr(msg.Content),
		})
	}
	return chatReq
}

func (p *Provider) doRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, provider.NewProviderError(provider.ErrCodeNetworkError,
			fmt.Sprintf("%v: %v", ErrConnectionFailed, err), name, true)
	}
	return resp, nil
}

// handleErrorResponse maps an HTTP failure onto a ProviderError.
func (p *Provider) handleErrorResponse(statusCode int, body []byte) error {
	msg := string(body)
	var errResp chatResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		msg = errResp.Error.Message
	}

	lowerMsg := strings.ToLower(msg)
	if strings.Contains(lowerMsg, "context window") ||
		strings.Contains(lowerMsg, "context length") ||
		strings.Contains(lowerMsg, "too many tokens") {
		return provider.NewProviderError(provider.ErrCodeContextWindowExceeded, msg, name, false)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return provider.NewProviderError(provider.ErrCodeAuthFailed, msg, name, false)
	case statusCode == http.StatusNotFound:
		return provider.NewProviderError(provider.ErrCodeModelNotFound, msg, name, false)
	case statusCode == http.StatusTooManyRequests:
		// insufficient_quota 不可重试，普通限流可重试
		if strings.Contains(lowerMsg, "quota") {
			return provider.NewProviderError(provider.ErrCodeQuotaExceeded, msg, name, false)
		}
		return provider.NewProviderError(provider.ErrCodeRateLimited, msg, name, true)
	case statusCode == http.StatusBadRequest:
		return provider.NewProviderError(provider.ErrCodeInvalidRequest, msg, name, false)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return provider.NewProviderError(provider.ErrCodeTimeout, msg, name, true)
	case statusCode >= 500:
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable, msg, name, true)
	default:
		return provider.NewProviderError(provider.ErrCodeUnknown,
			fmt.Sprintf("status %d: %s", statusCode, msg), name, false)
	}
}

func convertResponse(resp *chatResponse) *provider.ChatResponse {
	result := &provider.ChatResponse{FinishReason: provider.FinishReasonStop}

	choice := resp.Choices[0]
	if choice.Message.Content != nil {
		result.Content = *choice.Message.Content
	}
	if choice.FinishReason != "" {
		result.FinishReason = choice.FinishReason
	}
	if resp.Usage != nil {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result
}
