package sentiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

var testLog = logger.New(&config.Config{LogLevel: "error"})

type stubCompletions struct {
	content string
	err     error
	usage   contracts.TokenUsage
}

func (s *stubCompletions) Complete(_ context.Context, _ contracts.CallOptions, _ []contracts.Message) (*contracts.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &contracts.Completion{Content: s.content, Usage: s.usage}, nil
}

func testHeadlines() []contracts.Headline {
	return []contracts.Headline{
		{Title: "Samsung Electronics posts record chip profit", Source: "yonhap"},
		{Title: "Memory prices rally continues", Source: "reuters"},
	}
}

func TestClassify(t *testing.T) {
	stub := &stubCompletions{
		content: `{"sentiment":"bullish","confidence":0.8,"reasoning":"strong earnings","signals":["record profit"]}`,
		usage:   contracts.TokenUsage{InputTokens: 200, OutputTokens: 50},
	}
	c := NewClassifier(stub, contracts.CallOptions{Model: "test"}, testLog)

	got, usage, err := c.Classify(context.Background(), testHeadlines(), "swing")
	require.NoError(t, err)

	assert.Equal(t, "bullish", got.Sentiment)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, "swing", got.Horizon)
	assert.Equal(t, int64(200), usage.InputTokens)
}

func TestClassify_UnparseableFallsBackToNeutral(t *testing.T) {
	stub := &stubCompletions{content: "the market looks fine to me"}
	c := NewClassifier(stub, contracts.CallOptions{Model: "test"}, testLog)

	got, _, err := c.Classify(context.Background(), testHeadlines(), "intraday")
	require.NoError(t, err)

	assert.Equal(t, "neutral", got.Sentiment)
	assert.Zero(t, got.Confidence)
}

func TestClassify_NoHeadlines(t *testing.T) {
	c := NewClassifier(&stubCompletions{}, contracts.CallOptions{}, testLog)

	_, _, err := c.Classify(context.Background(), nil, "swing")
	assert.Error(t, err)
}

func TestClassify_ClampsConfidence(t *testing.T) {
	stub := &stubCompletions{content: `{"sentiment":"bearish","confidence":1.7}`}
	c := NewClassifier(stub, contracts.CallOptions{Model: "test"}, testLog)

	got, _, err := c.Classify(context.Background(), testHeadlines(), "swing")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Confidence)
}
