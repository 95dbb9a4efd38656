package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/llm"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// Classifier turns recent headlines into a qualitative sentiment view via
// the completion service. It is fail-soft: headline problems never block the
// pipeline, the caller just proceeds without a sentiment context.
type Classifier struct {
	completions contracts.CompletionService
	opts        contracts.CallOptions
	logger      *logger.Logger
}

// NewClassifier wires the classifier to a completion service. opts should be
// a small, cheap configuration; sentiment is an auxiliary call.
func NewClassifier(completions contracts.CompletionService, opts contracts.CallOptions, log *logger.Logger) *Classifier {
	opts.JSONOnly = true
	if opts.MaxTokens <= 0 || opts.MaxTokens > 1024 {
		opts.MaxTokens = 1024
	}
	return &Classifier{
		completions: completions,
		opts:        opts,
		logger:      log,
	}
}

const systemPrompt = `You are a financial news analyst. Given recent headlines about one instrument, classify the aggregate sentiment for the stated trading horizon.

Respond with one JSON object:
{
  "sentiment": "bullish" | "bearish" | "neutral",
  "confidence": 0.0-1.0,
  "reasoning": "one or two sentences",
  "signals": ["short factual signal", ...]
}

Base the view only on the headlines given. If they are mixed or uninformative, answer neutral with low confidence.`

// Classify returns a sentiment view for the headlines, plus the tokens the
// call consumed so the ledger can attribute them to the sentiment stage.
func (c *Classifier) Classify(ctx context.Context, headlines []contracts.Headline, horizon string) (*contracts.SentimentContext, contracts.TokenUsage, error) {
	var usage contracts.TokenUsage

	if len(headlines) == 0 {
		return nil, usage, fmt.Errorf("no headlines to classify")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Trading horizon: %s\n\nHeadlines:\n", horizon)
	for i, h := range headlines {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, h.Source, h.Title)
	}

	resp, err := c.completions.Complete(ctx, c.opts, []contracts.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return nil, usage, fmt.Errorf("sentiment call: %w", err)
	}
	usage = resp.Usage

	var out contracts.SentimentContext
	if err := llm.Decode(resp.Content, &out); err != nil {
		c.logger.WithError(err).Warn("Sentiment response unparseable, treating as neutral")
		return &contracts.SentimentContext{
			Sentiment:  "neutral",
			Confidence: 0,
			Reasoning:  "classifier output unparseable",
			Horizon:    horizon,
		}, usage, nil
	}

	out.Horizon = horizon
	if out.Sentiment != "bullish" && out.Sentiment != "bearish" {
		out.Sentiment = "neutral"
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}

	c.logger.WithFields(map[string]interface{}{
		"sentiment":  out.Sentiment,
		"confidence": out.Confidence,
		"headlines":  len(headlines),
	}).Debug("Sentiment classified")

	return &out, usage, nil
}
