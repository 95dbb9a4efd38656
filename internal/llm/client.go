package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// Client implements contracts.CompletionService against the Anthropic API.
// ⭐ SSOT: completion 서비스 호출은 여기서만
type Client struct {
	api      anthropic.Client
	defaults contracts.CallOptions
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *logger.Logger
}

// NewClient creates the completion-service client from config
func NewClient(cfg config.LLMConfig, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Client{
		api: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
		),
		defaults: contracts.CallOptions{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		},
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  log,
	}, nil
}

// Defaults returns the configured default call options. Callers derive their
// immutable per-call options from this value instead of mutating the client.
func (c *Client) Defaults() contracts.CallOptions {
	return c.defaults
}

// Complete sends one completion request and returns content plus token usage
func (c *Client) Complete(ctx context.Context, opts contracts.CallOptions, messages []contracts.Message) (*contracts.Completion, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params, err := c.buildParams(opts, messages)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.api.Messages.New(callCtx, params)
	if err != nil {
		c.logger.WithError(err).WithField("model", string(params.Model)).Error("Completion call failed")
		return nil, fmt.Errorf("completion call failed: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("completion returned no text content")
	}

	usage := contracts.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CachedTokens: resp.Usage.CacheReadInputTokens,
	}

	c.logger.WithFields(map[string]interface{}{
		"model":         string(params.Model),
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"duration":      time.Since(start),
	}).Debug("Completion call finished")

	return &contracts.Completion{
		Content: content.String(),
		Usage:   usage,
		Model:   string(params.Model),
	}, nil
}

// buildParams converts our messages to the provider format. System messages
// are lifted into the System parameter; JSONOnly appends the JSON-only
// instruction to the system text.
func (c *Client) buildParams(opts contracts.CallOptions, messages []contracts.Message) (anthropic.MessageNewParams, error) {
	model := opts.Model
	if model == "" {
		model = c.defaults.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaults.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var systemText string
	converted := make([]anthropic.MessageParam, 0, len(messages))
	hasUser := false

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			hasUser = true
			converted = append(converted, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	if !hasUser {
		return anthropic.MessageNewParams{}, fmt.Errorf("at least one message must have role 'user'")
	}

	if opts.JSONOnly {
		if systemText != "" {
			systemText += "\n\n"
		}
		systemText += "Respond with a single JSON object only. No markdown fences, no prose outside the JSON."
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  converted,
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	return params, nil
}
