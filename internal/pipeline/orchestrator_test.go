package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/ledger"
	"github.com/wonny/pythia/backend/internal/market"
	"github.com/wonny/pythia/backend/internal/quota"
	"github.com/wonny/pythia/backend/internal/scoring"
	"github.com/wonny/pythia/backend/internal/store"
	"github.com/wonny/pythia/backend/pkg/config"
)

type stubMarketData struct {
	candles []contracts.Candle
	err     error
}

func (s *stubMarketData) GetCandles(_ context.Context, _ string, timeframe contracts.Timeframe, skipIntraday bool) ([]contracts.Candle, error) {
	if skipIntraday && timeframe != contracts.TimeframeDay {
		return nil, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	if timeframe != contracts.TimeframeDay {
		return nil, nil
	}
	return s.candles, nil
}

type stubUsageRepo struct {
	mu      sync.Mutex
	entries []*contracts.UsageEntry
}

func (s *stubUsageRepo) Append(_ context.Context, entry *contracts.UsageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubUsageRepo) cachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Cached {
			n++
		}
	}
	return n
}

// uptrendCandles produces a long rising series with range 2 per bar
func uptrendCandles(n int) []contracts.Candle {
	candles := make([]contracts.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := 100 + float64(i)*0.2
		candles[i] = contracts.Candle{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	}
	return candles
}

type orchestratorFixture struct {
	orch      *Orchestrator
	repo      *store.MemoryAnalysisRepository
	usageRepo *stubUsageRepo
}

func newFixture(t *testing.T, completions contracts.CompletionService, md contracts.MarketDataProvider, freeLimit int) *orchestratorFixture {
	t.Helper()

	cal, err := market.NewCalendar(config.CalendarConfig{
		Timezone: "Asia/Seoul", CutoffHour: 15, CutoffMinute: 30,
	})
	require.NoError(t, err)

	pricing, err := ledger.NewPricing(config.PricingConfig{
		InputUSDPerMTok: "3.00", OutputUSDPerMTok: "15.00", CachedUSDPerMTok: "0.30", USDKRW: "1380",
	})
	require.NoError(t, err)

	repo := store.NewMemoryAnalysisRepository()
	usageRepo := &stubUsageRepo{}
	opts := contracts.CallOptions{Model: "test", MaxTokens: 1024}

	orch := NewOrchestrator(Deps{
		Repo:       repo,
		MarketData: md,
		Calendar:   cal,
		Guard:      quota.NewGuard(config.QuotaConfig{FreeLimit: freeLimit, ProLimit: 25}, quota.NewMemoryStore(), cal, testLog),
		Scorer:     scoring.NewEngine(scoring.DefaultConfig()),
		Recorder:   ledger.NewRecorder(usageRepo, pricing, testLog),
		Preflight:  NewPreflightStage(completions, opts, testLog),
		Skeleton:   NewSkeletonStage(completions, opts, DefaultConfig(), scoring.DefaultConfig(), testLog),
		Finalize:   NewFinalizeStage(completions, opts, DefaultConfig(), testLog),
		Logger:     testLog,
	})

	return &orchestratorFixture{orch: orch, repo: repo, usageRepo: usageRepo}
}

func happyResponses() []string {
	return []string{
		`{"trend":"bullish","volatility":"low","volume":"normal","commentary":"추세 양호"}`,
		`{"type":"BUY","archetype":"pullback","target_atr_mult":1.2,"stop_atr_mult":0.8,"alignment":"with_trend"}`,
		`{"triggers":[{"scope":"entry","left":{"field":"last"},"operator":"gt","right":{"value":0}}],"invalidations":[],"confidence":0.7,"explanation":"ok"}`,
	}
}

func testRequest(userID string) Request {
	return Request{
		InstrumentKey: "KRX|005930",
		StockName:     "삼성전자",
		StockSymbol:   "005930",
		Type:          contracts.AnalysisSwing,
		UserID:        userID,
		Plan:          "free",
	}
}

func TestRequestAnalysis_FreshRun(t *testing.T) {
	stub := &scriptedCompletions{responses: happyResponses()}
	f := newFixture(t, stub, &stubMarketData{candles: uptrendCandles(250)}, 3)

	result, err := f.orch.RequestAnalysis(context.Background(), testRequest("u1"))
	require.NoError(t, err)

	assert.Equal(t, contracts.RequestFresh, result.Status)
	require.NotNil(t, result.Record)
	assert.Equal(t, contracts.StatusCompleted, result.Record.Status)

	strategy := result.Record.Strategy()
	require.NotNil(t, strategy)
	assert.Equal(t, contracts.StrategyBuy, strategy.Type)
	assert.NoError(t, strategy.Validate())
	assert.Positive(t, strategy.Score)
	assert.NotEmpty(t, string(strategy.ScoreBand))

	// 완료 레코드는 전략 정확히 1개
	assert.Len(t, result.Record.Data.Strategies, 1)
	assert.Equal(t, 100, result.Record.Progress.Percentage)

	// valid_until lands on a trading day
	assert.False(t, result.Record.ValidUntil.IsZero())

	// Originating ledger row, not cached
	require.Len(t, f.usageRepo.entries, 1)
	assert.False(t, f.usageRepo.entries[0].Cached)
	assert.Len(t, f.usageRepo.entries[0].Stages, 3)
}

func TestRequestAnalysis_CacheHitWritesZeroCostRow(t *testing.T) {
	stub := &scriptedCompletions{responses: happyResponses()}
	f := newFixture(t, stub, &stubMarketData{candles: uptrendCandles(250)}, 3)
	ctx := context.Background()

	first, err := f.orch.RequestAnalysis(ctx, testRequest("u1"))
	require.NoError(t, err)
	require.Equal(t, contracts.RequestFresh, first.Status)
	callsAfterRun := stub.calls

	second, err := f.orch.RequestAnalysis(ctx, testRequest("u2"))
	require.NoError(t, err)

	assert.Equal(t, contracts.RequestCached, second.Status)
	assert.Equal(t, callsAfterRun, stub.calls, "cache hit must not call the completion service")
	assert.Equal(t, 1, f.usageRepo.cachedCount())
}

func TestRequestAnalysis_InsufficientDataFailsRecord(t *testing.T) {
	// 10 candles: ATR14와 장기 이평 계산 불가
	stub := &scriptedCompletions{}
	f := newFixture(t, stub, &stubMarketData{candles: uptrendCandles(10)}, 3)

	result, err := f.orch.RequestAnalysis(context.Background(), testRequest("u1"))
	require.NoError(t, err)

	assert.Equal(t, contracts.RequestFresh, result.Status)
	assert.Equal(t, contracts.StatusFailed, result.Record.Status)
	assert.NotEmpty(t, result.Record.FailureReason)
	assert.Nil(t, result.Record.Strategy())
	assert.Zero(t, stub.calls, "pipeline must halt before any completion call")
}

func TestRequestAnalysis_FailedRecordIsRetryable(t *testing.T) {
	stub := &scriptedCompletions{}
	md := &stubMarketData{candles: uptrendCandles(10)}
	f := newFixture(t, stub, md, 3)
	ctx := context.Background()

	result, err := f.orch.RequestAnalysis(ctx, testRequest("u1"))
	require.NoError(t, err)
	require.Equal(t, contracts.StatusFailed, result.Record.Status)

	// Provider recovers; retry succeeds on the same key
	md.candles = uptrendCandles(250)
	stub.responses = happyResponses()
	stub.calls = 0

	result, err = f.orch.RequestAnalysis(ctx, testRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, contracts.RequestFresh, result.Status)
	assert.Equal(t, contracts.StatusCompleted, result.Record.Status)
}

func TestRequestAnalysis_QuotaExceeded(t *testing.T) {
	stub := &scriptedCompletions{responses: happyResponses()}
	f := newFixture(t, stub, &stubMarketData{candles: uptrendCandles(250)}, 1)
	ctx := context.Background()

	_, err := f.orch.RequestAnalysis(ctx, testRequest("u1"))
	require.NoError(t, err)

	other := testRequest("u1")
	other.InstrumentKey = "KRX|000660"
	_, err = f.orch.RequestAnalysis(ctx, other)
	require.Error(t, err)
	assert.True(t, contracts.IsQuotaExceeded(err))

	// 같은 종목 재요청은 쿼터 소진 없이 허용
	result, err := f.orch.RequestAnalysis(ctx, testRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, contracts.RequestCached, result.Status)
}

func TestRequestAnalysis_SingleFlight(t *testing.T) {
	block := make(chan struct{})
	stub := &scriptedCompletions{responses: happyResponses(), block: block}
	f := newFixture(t, stub, &stubMarketData{candles: uptrendCandles(250)}, 3)
	ctx := context.Background()

	var firstResult *contracts.RequestResult
	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		firstResult, firstErr = f.orch.RequestAnalysis(ctx, testRequest("u1"))
	}()

	// Wait until the first run holds the key in a non-terminal state
	require.Eventually(t, func() bool {
		rec, err := f.repo.FindByKey(ctx, "KRX|005930", contracts.AnalysisSwing)
		return err == nil && !rec.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	second, err := f.orch.RequestAnalysis(ctx, testRequest("u2"))
	require.NoError(t, err)
	assert.Equal(t, contracts.RequestInProgress, second.Status, "second observer must not start a pipeline")

	close(block)
	<-done
	require.NoError(t, firstErr)
	assert.Equal(t, contracts.RequestFresh, firstResult.Status)
	assert.Equal(t, contracts.StatusCompleted, firstResult.Record.Status)
}

func TestRequestAnalysis_FallbackStrategyClosesOrderGate(t *testing.T) {
	// S2 출력 파싱 불가 → 대체 골격; S3는 통과하는 트리거를 반환하지만
	// 대체 전략은 자동 주문 게이트를 열 수 없음
	stub := &scriptedCompletions{responses: []string{
		`{"trend":"bullish","volatility":"low","volume":"normal","commentary":"추세 양호"}`,
		`total garbage, no json`,
		`{"triggers":[{"scope":"entry","left":{"field":"last"},"operator":"gt","right":{"value":0}}],"invalidations":[],"confidence":0.7,"explanation":"ok"}`,
	}}
	f := newFixture(t, stub, &stubMarketData{candles: uptrendCandles(250)}, 3)

	result, err := f.orch.RequestAnalysis(context.Background(), testRequest("u1"))
	require.NoError(t, err)
	require.Equal(t, contracts.StatusCompleted, result.Record.Status)

	strategy := result.Record.Strategy()
	require.NotNil(t, strategy)
	assert.Equal(t, "fallback", strategy.Archetype)

	gate := result.Record.Data.OrderGate
	assert.False(t, gate.CanPlaceOrder)
	assert.Contains(t, gate.Reasons, "fallback strategy substituted")
}

// wrappedNotFoundRepo wraps FindByKey errors the way a decorated repository
// might
type wrappedNotFoundRepo struct {
	contracts.AnalysisRepository
}

func (r *wrappedNotFoundRepo) FindByKey(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType) (*contracts.AnalysisRecord, error) {
	rec, err := r.AnalysisRepository.FindByKey(ctx, instrumentKey, analysisType)
	if err != nil {
		return nil, fmt.Errorf("find analysis: %w", err)
	}
	return rec, nil
}

func TestRequestAnalysis_WrappedNotFoundStartsRun(t *testing.T) {
	stub := &scriptedCompletions{responses: happyResponses()}
	f := newFixture(t, stub, &stubMarketData{candles: uptrendCandles(250)}, 3)
	f.orch.repo = &wrappedNotFoundRepo{f.repo}

	result, err := f.orch.RequestAnalysis(context.Background(), testRequest("u1"))
	require.NoError(t, err, "wrapped not-found must start a fresh run, not fail the lookup")
	assert.Equal(t, contracts.RequestFresh, result.Status)
	assert.Equal(t, contracts.StatusCompleted, result.Record.Status)
}

func TestRequestAnalysis_InvalidRequest(t *testing.T) {
	f := newFixture(t, &scriptedCompletions{}, &stubMarketData{}, 3)
	ctx := context.Background()

	_, err := f.orch.RequestAnalysis(ctx, Request{})
	assert.Error(t, err)

	bad := testRequest("u1")
	bad.Type = "scalping"
	_, err = f.orch.RequestAnalysis(ctx, bad)
	assert.Error(t, err)
}

func TestGetAnalysisStatus(t *testing.T) {
	stub := &scriptedCompletions{responses: happyResponses()}
	f := newFixture(t, stub, &stubMarketData{candles: uptrendCandles(250)}, 3)
	ctx := context.Background()

	_, err := f.orch.GetAnalysisStatus(ctx, "KRX|005930", contracts.AnalysisSwing)
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	_, err = f.orch.RequestAnalysis(ctx, testRequest("u1"))
	require.NoError(t, err)

	rec, err := f.orch.GetAnalysisStatus(ctx, "KRX|005930", contracts.AnalysisSwing)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, rec.Status)
}
