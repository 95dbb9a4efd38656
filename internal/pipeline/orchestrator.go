package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/ledger"
	"github.com/wonny/pythia/backend/internal/market"
	"github.com/wonny/pythia/backend/internal/quota"
	"github.com/wonny/pythia/backend/internal/scoring"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// Request is one analysis request as the orchestrator sees it
type Request struct {
	InstrumentKey string
	StockName     string
	StockSymbol   string
	CurrentPrice  float64 // 0 means use the last close
	Type          contracts.AnalysisType
	UserID        string
	Plan          string
	Notify        contracts.NotifyPolicy
}

// Orchestrator drives the full request path: quota, cache, providers, the
// three-stage pipeline, scoring, persistence, and side effects.
// ⭐ SSOT: AnalysisRecord 상태 전이는 여기서만 일어남
type Orchestrator struct {
	repo       contracts.AnalysisRepository
	marketData contracts.MarketDataProvider
	news       contracts.NewsProvider
	sentiment  contracts.SentimentClassifier
	calendar   *market.Calendar
	guard      *quota.Guard
	scorer     *scoring.Engine
	recorder   *ledger.Recorder
	notifier   contracts.NotificationDispatcher

	preflight *PreflightStage
	skeleton  *SkeletonStage
	finalize  *FinalizeStage

	logger *logger.Logger
}

// Deps bundles the orchestrator collaborators
type Deps struct {
	Repo       contracts.AnalysisRepository
	MarketData contracts.MarketDataProvider
	News       contracts.NewsProvider       // optional
	Sentiment  contracts.SentimentClassifier // optional
	Calendar   *market.Calendar
	Guard      *quota.Guard
	Scorer     *scoring.Engine
	Recorder   *ledger.Recorder
	Notifier   contracts.NotificationDispatcher // optional

	Preflight *PreflightStage
	Skeleton  *SkeletonStage
	Finalize  *FinalizeStage

	Logger *logger.Logger
}

// NewOrchestrator wires the orchestrator
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		repo:       d.Repo,
		marketData: d.MarketData,
		news:       d.News,
		sentiment:  d.Sentiment,
		calendar:   d.Calendar,
		guard:      d.Guard,
		scorer:     d.Scorer,
		recorder:   d.Recorder,
		notifier:   d.Notifier,
		preflight:  d.Preflight,
		skeleton:   d.Skeleton,
		finalize:   d.Finalize,
		logger:     d.Logger,
	}
}

// 파이프라인 진행 단계 (progress 표기용)
const totalSteps = 5

// RequestAnalysis is the single entry point for analysis requests.
// Cache hit → cached record plus a zero-cost ledger row for this requester.
// In-flight run → inProgress without a second pipeline.
// Otherwise this caller claims the key and runs the pipeline to a terminal
// state before returning.
func (o *Orchestrator) RequestAnalysis(ctx context.Context, req Request) (*contracts.RequestResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	now := time.Now()
	log := o.logger.WithAnalysis(req.InstrumentKey, string(req.Type))

	decision, err := o.guard.Consume(ctx, req.UserID, req.Plan, req.InstrumentKey, now)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, quota.Exceeded(req.UserID, decision)
	}

	// Read path: reusable record or in-flight run
	existing, err := o.repo.FindByKey(ctx, req.InstrumentKey, req.Type)
	if err == nil {
		if existing.IsReusableAt(now) {
			// 재계산 없이 제공: 이 사용자 몫의 0원 원장 row만 추가
			o.recorder.RecordCacheHit(ctx, req.InstrumentKey, req.Type, req.UserID)
			log.Debug("Served from cache")
			return &contracts.RequestResult{Status: contracts.RequestCached, Record: existing}, nil
		}
		if !existing.Status.IsTerminal() {
			return &contracts.RequestResult{Status: contracts.RequestInProgress, Record: existing}, nil
		}
		if existing.Status == contracts.StatusCompleted && now.Before(existing.ValidUntil) {
			// Completed but held for scheduled release
			return &contracts.RequestResult{Status: contracts.RequestInProgress, Record: existing}, nil
		}
	} else if !errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("record lookup failed: %w", err)
	}

	// Write path: claim the key atomically; losing the race is not an error
	pending := &contracts.AnalysisRecord{
		InstrumentKey: req.InstrumentKey,
		StockName:     req.StockName,
		StockSymbol:   req.StockSymbol,
		Type:          req.Type,
		CurrentPrice:  req.CurrentPrice,
		ValidUntil:    o.calendar.ValidUntil(now),
		Progress:      contracts.Progress{Step: "queued", TotalSteps: totalSteps},
	}
	started, record, err := o.repo.TryStartPending(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim analysis slot: %w", err)
	}
	if !started {
		if record.IsReusableAt(now) {
			o.recorder.RecordCacheHit(ctx, req.InstrumentKey, req.Type, req.UserID)
			return &contracts.RequestResult{Status: contracts.RequestCached, Record: record}, nil
		}
		return &contracts.RequestResult{Status: contracts.RequestInProgress, Record: record}, nil
	}

	log.Info("Pipeline run starting")
	final, runErr := o.run(ctx, req, record)
	if runErr != nil {
		// 실패 레코드는 다음 요청에서 재시도 가능
		reason := runErr.Error()
		if failErr := o.repo.Fail(ctx, req.InstrumentKey, req.Type, reason); failErr != nil {
			log.WithError(failErr).Error("Failed to mark record failed")
		}
		log.WithError(runErr).Warn("Pipeline run failed")

		failed, findErr := o.repo.FindByKey(ctx, req.InstrumentKey, req.Type)
		if findErr != nil {
			return nil, runErr
		}
		return &contracts.RequestResult{Status: contracts.RequestFresh, Record: failed}, nil
	}

	o.dispatchNotify(req, final)
	return &contracts.RequestResult{Status: contracts.RequestFresh, Record: final}, nil
}

// GetAnalysisStatus returns the current record for polling
func (o *Orchestrator) GetAnalysisStatus(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType) (*contracts.AnalysisRecord, error) {
	return o.repo.FindByKey(ctx, instrumentKey, analysisType)
}

// CheckQuota reports quota state without consuming a slot
func (o *Orchestrator) CheckQuota(ctx context.Context, userID, plan, instrumentKey string) (contracts.QuotaDecision, error) {
	return o.guard.Check(ctx, userID, plan, instrumentKey, time.Now())
}

// run executes fetch → S1 → S2 → S3 → scoring → persist for one claimed key
func (o *Orchestrator) run(ctx context.Context, req Request, record *contracts.AnalysisRecord) (*contracts.AnalysisRecord, error) {
	log := o.logger.WithAnalysis(req.InstrumentKey, string(req.Type))
	var stages []contracts.StageUsage

	if err := o.repo.SetInProgress(ctx, req.InstrumentKey, req.Type); err != nil {
		return nil, err
	}
	o.progress(ctx, req, 1, "fetch_data")

	// ① 시세 데이터 → 지표 스냅샷
	candles, err := o.marketData.GetCandles(ctx, req.InstrumentKey, contracts.TimeframeDay, false)
	if err != nil {
		return nil, err
	}
	snap := market.BuildSnapshot(candles, req.CurrentPrice)

	// intraday 분석은 시간봉 마지막 종가로 last를 보정 (swing은 호출 생략)
	skipIntraday := req.Type == contracts.AnalysisSwing
	if hourly, herr := o.marketData.GetCandles(ctx, req.InstrumentKey, contracts.TimeframeHour, skipIntraday); herr == nil && len(hourly) > 0 && req.CurrentPrice == 0 {
		last := hourly[len(hourly)-1].Close
		if last > 0 {
			snap.Last = last
			snap.HasLast = true
		}
	}

	// ② Stage 1: 시장 요약과 데이터 충분성
	o.progress(ctx, req, 2, "preflight")
	preflightResult, usage, err := o.preflight.Run(ctx, req.StockSymbol, req.StockName, req.Type, snap)
	if err != nil {
		return nil, err
	}
	stages = append(stages, usage)

	if preflightResult.InsufficientData {
		// 하류 단계 생략, 즉시 종결
		o.recorder.RecordRun(ctx, req.InstrumentKey, req.Type, req.UserID, stages)
		return nil, &contracts.InsufficientDataError{
			Symbol:  req.InstrumentKey,
			Missing: preflightResult.MissingFields,
		}
	}

	// ③ 뉴스 감성 (실패해도 파이프라인은 계속)
	o.progress(ctx, req, 3, "sentiment")
	sentimentCtx := o.classifySentiment(ctx, req, &stages)

	// ④ Stage 2: 전략 골격
	o.progress(ctx, req, 4, "skeleton")
	skeletonResult, usage, err := o.skeleton.Run(ctx, req.StockSymbol, req.Type, preflightResult, snap)
	if err != nil {
		return nil, err
	}
	stages = append(stages, usage)

	// ⑤ Stage 3: 전략 완성
	o.progress(ctx, req, 5, "finalize")
	finalResult, usage, err := o.finalize.Run(ctx, req.StockSymbol, req.Type, skeletonResult, snap, sentimentCtx)
	if err != nil {
		return nil, err
	}
	stages = append(stages, usage)

	strategy := finalResult.Strategy

	// 점수/게이트/런타임 평가
	now := time.Now()
	runtimeEval, gate := EvaluateGate(&strategy, snap, now)
	if finalResult.Fallback && gate.CanPlaceOrder {
		gate.CanPlaceOrder = false
		gate.Reasons = append(gate.Reasons, "fallback strategy substituted")
	}

	scoreResult := o.scorer.Score(&strategy, scoring.Context{
		AnalysisType:  req.Type,
		Trend:         preflightResult.MarketSummary.Trend,
		Indicators:    indicatorViews(snap),
		VolumeRatio:   snap.VolumeRatio(),
		TargetATRMult: skeletonResult.TargetATRMult,
		StopATRMult:   skeletonResult.StopATRMult,
		Sentiment:     sentimentCtx,
		DataQuality:   dataQuality(snap),
	})
	strategy.Score = scoreResult.Score
	strategy.ScoreBand = scoreResult.Band
	strategy.RiskMeter = scoreResult.RiskMeter

	if err := strategy.Validate(); err != nil {
		return nil, &contracts.SchemaViolationError{Stage: contracts.StageFinalize, Cause: err}
	}

	// 완료 레코드 저장
	record.CurrentPrice = snap.Last
	record.ValidUntil = o.calendar.ValidUntil(now)
	record.Progress = contracts.Progress{
		Percentage:     100,
		Step:           "completed",
		StepsCompleted: totalSteps,
		TotalSteps:     totalSteps,
	}
	record.Data = &contracts.AnalysisData{
		MarketSummary: preflightResult.MarketSummary,
		Sentiment:     sentimentCtx,
		Strategies:    []contracts.Strategy{strategy},
		Runtime:       &runtimeEval,
		OrderGate:     gate,
	}
	if err := o.repo.Complete(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist completed record: %w", err)
	}

	o.recorder.RecordRun(ctx, req.InstrumentKey, req.Type, req.UserID, stages)

	log.WithFields(map[string]interface{}{
		"strategy":  string(strategy.Type),
		"score":     strategy.Score,
		"band":      string(strategy.ScoreBand),
		"can_order": gate.CanPlaceOrder,
	}).Info("Pipeline run completed")

	done, err := o.repo.FindByKey(ctx, req.InstrumentKey, req.Type)
	if err != nil {
		return record, nil
	}
	return done, nil
}

// classifySentiment fetches headlines and classifies them; any failure is
// logged and the pipeline proceeds without sentiment.
func (o *Orchestrator) classifySentiment(ctx context.Context, req Request, stages *[]contracts.StageUsage) *contracts.SentimentContext {
	if o.news == nil || o.sentiment == nil {
		return nil
	}

	query := req.StockName
	if query == "" {
		query = req.StockSymbol
	}
	headlines, err := o.news.FetchNews(ctx, query)
	if err != nil || len(headlines) == 0 {
		if err != nil {
			o.logger.WithError(err).Debug("Headline fetch failed, proceeding without sentiment")
		}
		return nil
	}

	sentimentCtx, usage, err := o.sentiment.Classify(ctx, headlines, string(req.Type))
	*stages = append(*stages, contracts.StageUsage{
		Stage: contracts.StageSentiment,
		Usage: usage,
	})
	if err != nil {
		o.logger.WithError(err).Debug("Sentiment classification failed, proceeding without it")
		return nil
	}
	return sentimentCtx
}

// dispatchNotify fires the completion notice without blocking or failing the
// request path.
func (o *Orchestrator) dispatchNotify(req Request, record *contracts.AnalysisRecord) {
	if o.notifier == nil || !req.Notify.Enabled {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.WithField("panic", r).Error("Notification dispatch panicked")
			}
		}()
		o.notifier.NotifyComplete(req.UserID, record)
	}()
}

func (o *Orchestrator) progress(ctx context.Context, req Request, step int, label string) {
	p := contracts.Progress{
		Percentage:     step * 100 / totalSteps,
		Step:           label,
		StepsCompleted: step - 1,
		TotalSteps:     totalSteps,
		ETASeconds:     (totalSteps - step) * 8,
	}
	if err := o.repo.UpdateProgress(ctx, req.InstrumentKey, req.Type, p); err != nil {
		o.logger.WithError(err).Debug("Progress update failed")
	}
}

func validateRequest(req Request) error {
	if req.InstrumentKey == "" {
		return fmt.Errorf("instrument_key is required")
	}
	if !req.Type.IsValid() {
		return fmt.Errorf("invalid analysis_type %q", req.Type)
	}
	if req.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// indicatorViews derives the confluence inputs from the snapshot
func indicatorViews(snap *market.Snapshot) []scoring.IndicatorView {
	views := make([]scoring.IndicatorView, 0, 3)

	if snap.HasEMA {
		trend := contracts.TrendNeutral
		if snap.EMA20 > snap.EMA50 {
			trend = contracts.TrendBullish
		} else if snap.EMA20 < snap.EMA50 {
			trend = contracts.TrendBearish
		}
		views = append(views, scoring.IndicatorView{Name: "ema_cross", Trend: trend})
	}
	if snap.HasSMA && snap.HasLast {
		trend := contracts.TrendNeutral
		if snap.Last > snap.SMA200 {
			trend = contracts.TrendBullish
		} else if snap.Last < snap.SMA200 {
			trend = contracts.TrendBearish
		}
		views = append(views, scoring.IndicatorView{Name: "sma200", Trend: trend})
	}
	if snap.HasLast && snap.PrevClose > 0 {
		trend := contracts.TrendNeutral
		if snap.Last > snap.PrevClose {
			trend = contracts.TrendBullish
		} else if snap.Last < snap.PrevClose {
			trend = contracts.TrendBearish
		}
		views = append(views, scoring.IndicatorView{Name: "momentum", Trend: trend})
	}
	return views
}

// dataQuality is the fraction of required indicator groups present
func dataQuality(snap *market.Snapshot) float64 {
	present := 0
	for _, has := range []bool{snap.HasLast, snap.HasATR, snap.HasEMA, snap.HasSMA} {
		if has {
			present++
		}
	}
	return float64(present) / 4
}
