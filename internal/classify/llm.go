package classify

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	openailib "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements ChatCompleter against any OpenAI-compatible
// endpoint. One small completion per classification; no streaming.
type OpenAIClient struct {
	client *openailib.Client
	model  string
}

// NewOpenAIClientFromEnv builds a client from LLM_API_KEY, LLM_BASE_URL,
// LLM_MODEL and LLM_HTTP_TIMEOUT (seconds, default 30). Returns an error
// when the key or model is missing so callers can fall back to the
// heuristic-only classifier.
func NewOpenAIClientFromEnv() (*OpenAIClient, error) {
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("classify: LLM_API_KEY not set")
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		return nil, fmt.Errorf("classify: LLM_MODEL not set")
	}

	cfg := openailib.DefaultConfig(apiKey)
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	timeout := 30
	if s := os.Getenv("LLM_HTTP_TIMEOUT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			timeout = n
		}
	}
	// Prevent indefinite hangs when the endpoint is unresponsive; the
	// caller degrades to the heuristic verdict on timeout.
	cfg.HTTPClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}

	return &OpenAIClient{
		client: openailib.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openailib.ChatCompletionRequest{
		Model: c.model,
		Messages: []openailib.ChatCompletionMessage{
			{Role: openailib.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openailib.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("classify: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("classify: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
