package commands

import (
	"fmt"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/external/marketdata"
	"github.com/wonny/pythia/backend/internal/external/news"
	"github.com/wonny/pythia/backend/internal/ledger"
	"github.com/wonny/pythia/backend/internal/llm"
	"github.com/wonny/pythia/backend/internal/market"
	"github.com/wonny/pythia/backend/internal/notify"
	"github.com/wonny/pythia/backend/internal/pipeline"
	"github.com/wonny/pythia/backend/internal/quota"
	"github.com/wonny/pythia/backend/internal/scoring"
	"github.com/wonny/pythia/backend/internal/sentiment"
	"github.com/wonny/pythia/backend/internal/store"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/database"
	"github.com/wonny/pythia/backend/pkg/httputil"
	"github.com/wonny/pythia/backend/pkg/logger"
	redisutil "github.com/wonny/pythia/backend/pkg/redis"
)

// runtime bundles the wired collaborators shared by the CLI commands
// ⭐ SSOT: 의존성 조립은 이 함수에서만
type runtime struct {
	orchestrator *pipeline.Orchestrator
	repo         *store.AnalysisRepository
	hub          *notify.Hub
}

func buildRuntime(cfg *config.Config, log *logger.Logger, db *database.DB, rdb *redisutil.Client) (*runtime, error) {
	cal, err := market.NewCalendar(cfg.Calendar)
	if err != nil {
		return nil, fmt.Errorf("build calendar: %w", err)
	}

	pricing, err := ledger.NewPricing(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("build pricing: %w", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("build completion client: %w", err)
	}
	opts := llmClient.Defaults()

	marketHTTP := httputil.New(log, cfg.MarketData.Timeout)
	newsHTTP := httputil.New(log, cfg.MarketData.Timeout)

	var cache *redisutil.Cache
	var quotaStore contracts.QuotaStore = quota.NewMemoryStore()
	if rdb != nil && rdb.Enabled() {
		cache = redisutil.NewCache(rdb, "pythia")
		quotaStore = quota.NewRedisStore(rdb, "pythia:quota")

		// 공급자별 슬라이딩 윈도우 레이트 리밋
		limiter := redisutil.NewRateLimiter(rdb, "pythia")
		marketHTTP = marketHTTP.WithRateLimiter(limiter, redisutil.MarketDataRateLimit)
		newsHTTP = newsHTTP.WithRateLimiter(limiter, redisutil.NewsRateLimit)
	}

	repo := store.NewAnalysisRepository(db.Pool)
	hub := notify.NewHub(log)

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Repo:       repo,
		MarketData: marketdata.NewClient(cfg.MarketData, marketHTTP, cache, log),
		News:       news.NewClient(cfg.News, newsHTTP, cache, log),
		Sentiment:  sentiment.NewClassifier(llmClient, opts, log),
		Calendar:   cal,
		Guard:      quota.NewGuard(cfg.Quota, quotaStore, cal, log),
		Scorer:     scoring.NewEngine(scoring.DefaultConfig()),
		Recorder:   ledger.NewRecorder(ledger.NewRepository(db.Pool), pricing, log),
		Notifier:   hub,
		Preflight:  pipeline.NewPreflightStage(llmClient, opts, log),
		Skeleton:   pipeline.NewSkeletonStage(llmClient, opts, pipeline.DefaultConfig(), scoring.DefaultConfig(), log),
		Finalize:   pipeline.NewFinalizeStage(llmClient, opts, pipeline.DefaultConfig(), log),
		Logger:     log,
	})

	return &runtime{orchestrator: orch, repo: repo, hub: hub}, nil
}

// connect opens the shared infrastructure for a command
func connect(cfg *config.Config, log *logger.Logger) (*database.DB, *redisutil.Client, error) {
	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Connected to database")

	rdb, err := redisutil.New(cfg)
	if err != nil {
		// Redis는 선택 의존성: 없으면 메모리 쿼터/무캐시로 진행
		log.WithError(err).Warn("Redis unavailable, continuing without it")
		rdb = nil
	}

	return db, rdb, nil
}

const shutdownTimeout = 30 * time.Second
