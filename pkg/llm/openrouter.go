package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIURL is the OpenRouter chat-completions endpoint. One key routes
// to every council model.
const DefaultAPIURL = "https://openrouter.ai/api/v1/chat/completions"

// maxErrorBodyBytes bounds how much of an upstream error body is kept in the
// classified error message.
const maxErrorBodyBytes = 400

// OpenRouterClient is the production ModelClient. It speaks the
// OpenAI-compatible chat-completions wire format.
type OpenRouterClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewOpenRouterClient creates a client for the given endpoint and key.
// apiURL may be empty to use DefaultAPIURL. The http.Client carries no
// timeout of its own; deadlines come from the per-call context.
func NewOpenRouterClient(apiURL, apiKey string) *OpenRouterClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &OpenRouterClient{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements ModelClient.
func (c *OpenRouterClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", NewError(ErrorKindPermanent, req.Model, errors.New("missing API key"))
	}

	messages := make([]chatMessage, 0, len(req.SystemPrompts)+1)
	for _, sys := range req.SystemPrompts {
		messages = append(messages, chatMessage{Role: "system", Content: sys})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: 0.2,
	})
	if err != nil {
		return "", NewError(ErrorKindPermanent, req.Model, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", NewError(ErrorKindPermanent, req.Model, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", NewError(classifyTransportError(ctx, err), req.Model, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		httpErr := fmt.Errorf("HTTP %d after %s: %s",
			resp.StatusCode, time.Since(start).Round(time.Millisecond), strings.TrimSpace(string(snippet)))
		return "", NewError(classifyStatus(resp.StatusCode), req.Model, httpErr)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", NewError(ErrorKindTransient, req.Model, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", NewError(ErrorKindTransient, req.Model, errors.New("response contained no choices"))
	}
	return parsed.Choices[0].Message.Content, nil
}

// classifyStatus maps an upstream HTTP status to an error kind.
// 429 and 5xx are retryable; every other 4xx is permanent.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorKindTransient
	case status >= 500:
		return ErrorKindTransient
	default:
		return ErrorKindPermanent
	}
}

// classifyTransportError distinguishes deadline expiry and cancellation from
// ordinary network failures. http.Client wraps context errors, so check the
// context first.
func classifyTransportError(ctx context.Context, err error) ErrorKind {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	default:
		return ErrorKindTransient
	}
}
