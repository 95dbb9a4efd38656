package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/market"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// Guard enforces the per-plan distinct-instrument cap over the rolling
// trading-cycle window. Re-requesting an instrument already counted in the
// current window is always free.
// ⭐ SSOT: 쿼터 판정은 여기서만
type Guard struct {
	store    contracts.QuotaStore
	calendar *market.Calendar
	plans    map[string]contracts.Plan
	logger   *logger.Logger
}

// NewGuard creates a quota guard with the configured plan limits
func NewGuard(cfg config.QuotaConfig, store contracts.QuotaStore, calendar *market.Calendar, log *logger.Logger) *Guard {
	return &Guard{
		store:    store,
		calendar: calendar,
		plans: map[string]contracts.Plan{
			"free": {Name: "free", StockLimit: cfg.FreeLimit},
			"pro":  {Name: "pro", StockLimit: cfg.ProLimit},
		},
		logger: log,
	}
}

// PlanFor resolves a plan name; unknown names fall back to free
func (g *Guard) PlanFor(name string) contracts.Plan {
	if p, ok := g.plans[name]; ok {
		return p
	}
	return g.plans["free"]
}

// Consume counts the instrument against the user's window and decides.
// The store operation is atomic, so two concurrent requests for the last
// remaining slot cannot both be allowed.
func (g *Guard) Consume(ctx context.Context, userID, planName, instrumentKey string, now time.Time) (contracts.QuotaDecision, error) {
	plan := g.PlanFor(planName)
	window := g.calendar.WindowFor(now)
	windowKey := g.calendar.WindowKey(window)

	// TTL outlives the window slightly so a set never expires mid-window
	ttl := window.End.Sub(now) + time.Hour

	usage, err := g.store.Record(ctx, userID, windowKey, instrumentKey, plan.StockLimit, ttl)
	if err != nil {
		return contracts.QuotaDecision{}, fmt.Errorf("quota consume for %s: %w", userID, err)
	}

	decision := contracts.QuotaDecision{
		Allowed:  usage.Counted || usage.AlreadyPresent,
		Used:     usage.Used,
		Limit:    plan.StockLimit,
		ResetsAt: window.End,
	}
	if !decision.Allowed {
		decision.Reason = fmt.Sprintf("plan %s allows %d distinct instruments per window", plan.Name, plan.StockLimit)
		g.logger.WithFields(map[string]interface{}{
			"user_id":    userID,
			"plan":       plan.Name,
			"instrument": instrumentKey,
			"used":       usage.Used,
			"limit":      plan.StockLimit,
		}).Info("Quota exceeded")
	}

	return decision, nil
}

// Check reports quota state without consuming a slot
func (g *Guard) Check(ctx context.Context, userID, planName, instrumentKey string, now time.Time) (contracts.QuotaDecision, error) {
	plan := g.PlanFor(planName)
	window := g.calendar.WindowFor(now)
	windowKey := g.calendar.WindowKey(window)

	usage, err := g.store.Peek(ctx, userID, windowKey, instrumentKey)
	if err != nil {
		return contracts.QuotaDecision{}, fmt.Errorf("quota check for %s: %w", userID, err)
	}

	allowed := usage.AlreadyPresent || usage.Used < plan.StockLimit
	decision := contracts.QuotaDecision{
		Allowed:  allowed,
		Used:     usage.Used,
		Limit:    plan.StockLimit,
		ResetsAt: window.End,
	}
	if !allowed {
		decision.Reason = fmt.Sprintf("plan %s allows %d distinct instruments per window", plan.Name, plan.StockLimit)
	}
	return decision, nil
}

// Exceeded converts a denial into the caller-facing error
func Exceeded(userID string, d contracts.QuotaDecision) error {
	return &contracts.QuotaExceededError{
		UserID:   userID,
		Limit:    d.Limit,
		ResetsAt: d.ResetsAt,
	}
}
