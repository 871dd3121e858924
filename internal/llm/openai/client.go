package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"rd-prediction-backend/internal/llm"
	"rd-prediction-backend/internal/shared/telemetry"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	defaultGeminiModel = "gemini-2.0-flash"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultTimeout     = 20 * time.Second
	maxTokens          = 400
)

// Options configures the chat completions client.
type Options struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements llm.Client against any OpenAI-compatible chat completions endpoint.
type Client struct {
	api     *goopenai.Client
	model   string
	timeout time.Duration
}

// NewClient constructs a client. Gemini is reached through its OpenAI-compatible endpoint.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("GENAI_API_KEY is required")
	}
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	model := strings.TrimSpace(opts.Model)

	config := goopenai.DefaultConfig(opts.APIKey)
	switch provider {
	case ProviderOpenAI:
		if model == "" {
			model = defaultOpenAIModel
		}
	case ProviderGemini, "":
		config.BaseURL = GeminiBaseURL
		if model == "" {
			model = defaultGeminiModel
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", opts.Provider)
	}
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		config.BaseURL = base
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if opts.HTTPClient != nil {
		config.HTTPClient = opts.HTTPClient
	} else {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		api:     goopenai.NewClientWithConfig(config),
		model:   model,
		timeout: timeout,
	}, nil
}

// Interpret makes a single chat completion call bounded by the client timeout.
func (c *Client) Interpret(ctx context.Context, input llm.InterpretInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: llm.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: llm.BuildUserPrompt(input)},
		},
	}
	// gpt-5 models reject explicit sampling parameters.
	if !isGPT5(c.model) {
		req.Temperature = 0.2
		req.MaxTokens = maxTokens
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("llm request timeout: %w", err)
		}
		return "", fmt.Errorf("llm chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm response missing choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("llm response empty content")
	}

	telemetry.Info("llm.response", map[string]any{
		"model":             c.model,
		"model_key":         input.ModelKey,
		"duration_ms":       time.Since(start).Milliseconds(),
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	})
	return content, nil
}

// Model returns the resolved model name.
func (c *Client) Model() string {
	return c.model
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ llm.Client = (*Client)(nil)
