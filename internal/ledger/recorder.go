package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// Pricing converts token counts into cost in both ledger currencies.
// ⭐ SSOT: 비용 계산은 여기서만, float 금지
type Pricing struct {
	inputUSDPerMTok  decimal.Decimal
	outputUSDPerMTok decimal.Decimal
	cachedUSDPerMTok decimal.Decimal
	usdkrw           decimal.Decimal
}

var mTok = decimal.NewFromInt(1_000_000)

// NewPricing parses the configured decimal price strings
func NewPricing(cfg config.PricingConfig) (*Pricing, error) {
	input, err := decimal.NewFromString(cfg.InputUSDPerMTok)
	if err != nil {
		return nil, fmt.Errorf("invalid input price %q: %w", cfg.InputUSDPerMTok, err)
	}
	output, err := decimal.NewFromString(cfg.OutputUSDPerMTok)
	if err != nil {
		return nil, fmt.Errorf("invalid output price %q: %w", cfg.OutputUSDPerMTok, err)
	}
	cached, err := decimal.NewFromString(cfg.CachedUSDPerMTok)
	if err != nil {
		return nil, fmt.Errorf("invalid cached price %q: %w", cfg.CachedUSDPerMTok, err)
	}
	fx, err := decimal.NewFromString(cfg.USDKRW)
	if err != nil {
		return nil, fmt.Errorf("invalid USDKRW rate %q: %w", cfg.USDKRW, err)
	}

	return &Pricing{
		inputUSDPerMTok:  input,
		outputUSDPerMTok: output,
		cachedUSDPerMTok: cached,
		usdkrw:           fx,
	}, nil
}

// CostUSD prices one usage total in USD
func (p *Pricing) CostUSD(u contracts.TokenUsage) decimal.Decimal {
	input := decimal.NewFromInt(u.InputTokens).Mul(p.inputUSDPerMTok)
	output := decimal.NewFromInt(u.OutputTokens).Mul(p.outputUSDPerMTok)
	cached := decimal.NewFromInt(u.CachedTokens).Mul(p.cachedUSDPerMTok)
	return input.Add(output).Add(cached).Div(mTok)
}

// ToKRW converts a USD cost at the configured rate
func (p *Pricing) ToKRW(usd decimal.Decimal) decimal.Decimal {
	return usd.Mul(p.usdkrw).Round(0)
}

// Recorder assembles and appends usage-ledger entries. Append failures are
// logged and swallowed: the ledger never fails the request path.
type Recorder struct {
	repo    contracts.UsageRepository
	pricing *Pricing
	logger  *logger.Logger
}

// NewRecorder creates a ledger recorder
func NewRecorder(repo contracts.UsageRepository, pricing *Pricing, log *logger.Logger) *Recorder {
	return &Recorder{repo: repo, pricing: pricing, logger: log}
}

// RecordRun writes the originating entry for one full pipeline run
func (r *Recorder) RecordRun(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType, userID string, stages []contracts.StageUsage) {
	var totals contracts.TokenUsage
	for _, s := range stages {
		totals.Add(s.Usage)
	}

	costUSD := r.pricing.CostUSD(totals)
	entry := &contracts.UsageEntry{
		ID:            uuid.NewString(),
		InstrumentKey: instrumentKey,
		AnalysisType:  analysisType,
		UserID:        userID,
		Stages:        stages,
		Totals:        totals,
		CostUSD:       costUSD,
		CostKRW:       r.pricing.ToKRW(costUSD),
		Cached:        false,
		CreatedAt:     time.Now(),
	}
	r.append(ctx, entry)
}

// RecordCacheHit writes the zero-cost secondary entry for a requester served
// from an existing record. 캐시 히트도 원장에는 남김
func (r *Recorder) RecordCacheHit(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType, userID string) {
	entry := &contracts.UsageEntry{
		ID:            uuid.NewString(),
		InstrumentKey: instrumentKey,
		AnalysisType:  analysisType,
		UserID:        userID,
		CostUSD:       decimal.Zero,
		CostKRW:       decimal.Zero,
		Cached:        true,
		CreatedAt:     time.Now(),
	}
	r.append(ctx, entry)
}

func (r *Recorder) append(ctx context.Context, entry *contracts.UsageEntry) {
	if err := r.repo.Append(ctx, entry); err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"instrument": entry.InstrumentKey,
			"user_id":    entry.UserID,
			"cached":     entry.Cached,
		}).Error("Usage ledger append failed")
		return
	}

	r.logger.WithFields(map[string]interface{}{
		"instrument":   entry.InstrumentKey,
		"user_id":      entry.UserID,
		"total_tokens": entry.TotalTokens(),
		"cost_usd":     entry.CostUSD.String(),
		"cached":       entry.Cached,
	}).Debug("Usage ledger entry appended")
}
