package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultCompletionModel = "gpt-3.5-turbo"
	defaultAdvancedModel   = "gpt-4"

	standardTimeout = 60 * time.Second
	advancedTimeout = 120 * time.Second
)

// Tier selects the model used for a completion. The standard tier is the
// cheaper, faster model; the advanced tier is reserved for call sites that
// need deeper reasoning (ticket analysis) and tolerates a longer timeout.
type Tier string

const (
	TierStandard Tier = "standard"
	TierAdvanced Tier = "advanced"
)

// Completer is the surface the agents program against. Tests substitute a
// stub; production wires a ChatClient, optionally wrapped by a ResponseCache.
type Completer interface {
	Complete(ctx context.Context, prompt string, tier Tier) (string, error)
}

// Config carries the provider settings for a ChatClient.
type Config struct {
	APIKey          string
	BaseURL         string
	CompletionModel string
	AdvancedModel   string
	Verbose         bool
}

// ChatClient wraps the HTTP calls to an OpenAI compatible chat completions API.
type ChatClient struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	completionModel string
	advancedModel   string
	verbose         bool
}

// NewChatClient constructs a ChatClient from the given configuration,
// filling in provider defaults for any blank field except the API key.
func NewChatClient(cfg Config) (*ChatClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm: provider API key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("llm: invalid base URL %q", baseURL)
	}

	completionModel := strings.TrimSpace(cfg.CompletionModel)
	if completionModel == "" {
		completionModel = defaultCompletionModel
	}
	advancedModel := strings.TrimSpace(cfg.AdvancedModel)
	if advancedModel == "" {
		advancedModel = defaultAdvancedModel
	}

	return &ChatClient{
		httpClient:      &http.Client{},
		baseURL:         baseURL,
		apiKey:          apiKey,
		completionModel: completionModel,
		advancedModel:   advancedModel,
		verbose:         cfg.Verbose,
	}, nil
}

// NewChatClientFromEnv constructs a ChatClient using environment variables.
//
// Expected variables:
//   - OPENAI_API_KEY: required API key for the provider
//   - OPENAI_BASE_URL: optional override for the API base URL
//   - OPENAI_COMPLETION_MODEL: optional standard-tier model name
//   - OPENAI_ADVANCED_MODEL: optional advanced-tier model name
func NewChatClientFromEnv() (*ChatClient, error) {
	return NewChatClient(Config{
		APIKey:          os.Getenv("OPENAI_API_KEY"),
		BaseURL:         os.Getenv("OPENAI_BASE_URL"),
		CompletionModel: os.Getenv("OPENAI_COMPLETION_MODEL"),
		AdvancedModel:   os.Getenv("OPENAI_ADVANCED_MODEL"),
		Verbose:         strings.EqualFold(strings.TrimSpace(os.Getenv("AGENT_VERBOSE")), "true"),
	})
}

// ChatMessage represents a single turn in a chat conversation payload.
type ChatMessage struct {
	Role    string
	Content string
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

// tierSettings returns the model, temperature, token budget and timeout for
// the requested tier. Unknown tiers fall back to standard.
func (c *ChatClient) tierSettings(tier Tier) (model string, temperature float64, maxTokens int, timeout time.Duration) {
	if tier == TierAdvanced {
		return c.advancedModel, 0.5, 2000, advancedTimeout
	}
	return c.completionModel, 0.7, 1000, standardTimeout
}

// Complete sends the given prompt to the chat completions API using the
// requested model tier and returns the assistant reply.
func (c *ChatClient) Complete(ctx context.Context, prompt string, tier Tier) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", errors.New("llm: prompt cannot be empty")
	}
	return c.Chat(ctx, []ChatMessage{{Role: "user", Content: trimmed}}, tier)
}

// Chat sends the provided conversational messages to the LLM and returns the
// first assistant reply. A timeout specific to the tier bounds the call; a
// timeout surfaces like any other provider failure.
func (c *ChatClient) Chat(ctx context.Context, messages []ChatMessage, tier Tier) (string, error) {
	if c == nil {
		return "", errors.New("llm: client is nil")
	}
	if len(messages) == 0 {
		return "", errors.New("llm: messages cannot be empty")
	}

	model, temperature, maxTokens, timeout := c.tierSettings(tier)

	payload := chatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    make([]chatCompletionMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		payload.Messages = append(payload.Messages, chatCompletionMessage{Role: role, Content: content})
	}
	if len(payload.Messages) == 0 {
		return "", errors.New("llm: messages contain no content")
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("llm: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("llm: response contains no choices")
	}

	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
