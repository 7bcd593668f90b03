package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tuannvm/jira-dashboard/internal/config"
	"github.com/tuannvm/jira-dashboard/internal/logging"
)

const defaultTimeout = 30 * time.Second

// Completer answers a prompt under a system instruction
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Client is a Completer backed by a langchaingo chat model
type Client struct {
	model       llms.Model
	name        string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewClient creates a client for the configured provider
func NewClient(cfg *config.Config) (*Client, error) {
	opts, err := providerOptions(cfg)
	if err != nil {
		return nil, err
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s model %s: %w", cfg.LLMProvider, cfg.LLMModel, err)
	}

	timeout := time.Duration(cfg.LLMTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		model:       model,
		name:        cfg.LLMModel,
		maxTokens:   cfg.LLMMaxTokens,
		temperature: cfg.LLMTemperature,
		timeout:     timeout,
	}, nil
}

// providerOptions maps the provider setting onto openai client options.
// Azure deployments need an explicit endpoint.
func providerOptions(cfg *config.Config) ([]openai.Option, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.LLMAPIKey),
		openai.WithModel(cfg.LLMModel),
	}
	switch cfg.LLMProvider {
	case "openai":
		if cfg.LLMServiceURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLMServiceURL))
		}
	case "azure":
		if cfg.LLMServiceURL == "" {
			return nil, errors.New("llm.service_url is required for the azure provider")
		}
		opts = append(opts,
			openai.WithBaseURL(cfg.LLMServiceURL),
			openai.WithAPIType(openai.APITypeAzure),
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
	return opts, nil
}

// Complete sends system and prompt as a two-message chat and returns the
// first choice
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	logging.Debugw("Requesting completion", "model", c.name, "promptBytes", len(prompt))

	started := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(c.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("completion with %s failed: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion with %s returned no choices", c.name)
	}

	out := strings.TrimSpace(resp.Choices[0].Content)
	logging.Debugw("Completion received", "model", c.name, "elapsed", time.Since(started), "replyBytes", len(out))
	return out, nil
}
