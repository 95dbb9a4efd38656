package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

var testLog = logger.New(&config.Config{LogLevel: "error"})

type memRepo struct {
	entries []*contracts.UsageEntry
	err     error
}

func (m *memRepo) Append(_ context.Context, entry *contracts.UsageEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func testPricing(t *testing.T) *Pricing {
	t.Helper()
	p, err := NewPricing(config.PricingConfig{
		InputUSDPerMTok:  "3.00",
		OutputUSDPerMTok: "15.00",
		CachedUSDPerMTok: "0.30",
		USDKRW:           "1380",
	})
	require.NoError(t, err)
	return p
}

func TestPricing_CostUSD(t *testing.T) {
	p := testPricing(t)

	// 1M input + 1M output + 1M cached = 3 + 15 + 0.3
	cost := p.CostUSD(contracts.TokenUsage{
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
		CachedTokens: 1_000_000,
	})
	assert.True(t, cost.Equal(decimal.RequireFromString("18.3")), "got %s", cost)

	// 10k input + 2k output = 0.03 + 0.03
	cost = p.CostUSD(contracts.TokenUsage{InputTokens: 10_000, OutputTokens: 2_000})
	assert.True(t, cost.Equal(decimal.RequireFromString("0.06")), "got %s", cost)
}

func TestPricing_ToKRW(t *testing.T) {
	p := testPricing(t)

	krw := p.ToKRW(decimal.RequireFromString("1.5"))
	assert.True(t, krw.Equal(decimal.NewFromInt(2070)), "got %s", krw)
}

func TestNewPricing_InvalidDecimal(t *testing.T) {
	_, err := NewPricing(config.PricingConfig{
		InputUSDPerMTok:  "three dollars",
		OutputUSDPerMTok: "15.00",
		CachedUSDPerMTok: "0.30",
		USDKRW:           "1380",
	})
	assert.Error(t, err)
}

func TestRecordRun(t *testing.T) {
	repo := &memRepo{}
	r := NewRecorder(repo, testPricing(t), testLog)

	stages := []contracts.StageUsage{
		{Stage: contracts.StagePreflight, Model: "m", Usage: contracts.TokenUsage{InputTokens: 1000, OutputTokens: 200}},
		{Stage: contracts.StageSkeleton, Model: "m", Usage: contracts.TokenUsage{InputTokens: 2000, OutputTokens: 500}},
		{Stage: contracts.StageFinalize, Model: "m", Usage: contracts.TokenUsage{InputTokens: 3000, OutputTokens: 900, CachedTokens: 400}},
	}
	r.RecordRun(context.Background(), "KRX|005930", contracts.AnalysisSwing, "u1", stages)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, int64(6000), entry.Totals.InputTokens)
	assert.Equal(t, int64(1600), entry.Totals.OutputTokens)
	assert.Equal(t, int64(400), entry.Totals.CachedTokens)
	assert.False(t, entry.Cached)
	assert.True(t, entry.CostUSD.GreaterThan(decimal.Zero))
	assert.True(t, entry.CostKRW.GreaterThan(entry.CostUSD))
	assert.Len(t, entry.Stages, 3)
}

func TestRecordCacheHit_ZeroCost(t *testing.T) {
	repo := &memRepo{}
	r := NewRecorder(repo, testPricing(t), testLog)

	r.RecordCacheHit(context.Background(), "KRX|005930", contracts.AnalysisSwing, "u2")

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]

	assert.True(t, entry.Cached)
	assert.True(t, entry.CostUSD.IsZero())
	assert.True(t, entry.CostKRW.IsZero())
	assert.Zero(t, entry.TotalTokens())
}

func TestRecord_AppendFailureIsSwallowed(t *testing.T) {
	repo := &memRepo{err: errors.New("db down")}
	r := NewRecorder(repo, testPricing(t), testLog)

	// Must not panic or surface the error
	r.RecordRun(context.Background(), "KRX|005930", contracts.AnalysisSwing, "u1", nil)
	r.RecordCacheHit(context.Background(), "KRX|005930", contracts.AnalysisSwing, "u1")
	assert.Empty(t, repo.entries)
}
