package pipeline

import (
	"fmt"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/market"
)

// 게이트 평가 (SSOT)
// can_place_order는 여기서 계산된 값만 사용

// EvaluateGate resolves every entry trigger and pre-entry invalidation
// against the snapshot, derives actionability, and computes the auto-submit
// gate. Conditions are mutated in place with their evaluated value and
// pass/fail outcome.
func EvaluateGate(strategy *contracts.Strategy, snap *market.Snapshot, now time.Time) (contracts.RuntimeEval, contracts.OrderGate) {
	eval := contracts.RuntimeEval{EvaluatedAt: now}

	if !strategy.Type.IsDirectional() {
		eval.Actionability = contracts.NotActionable
		strategy.Actionability = eval.Actionability
		return eval, contracts.OrderGate{
			CanPlaceOrder: false,
			Reasons:       []string{"strategy is NO_TRADE"},
		}
	}

	fields := snap.Fields()

	triggersPassed := true
	entryCount := 0
	for i := range strategy.Triggers {
		c := &strategy.Triggers[i]
		if c.Scope != contracts.ScopeEntry {
			continue
		}
		entryCount++
		evaluate(c, fields)
		if !c.Passed {
			triggersPassed = false
		}
	}
	if entryCount == 0 {
		triggersPassed = false
	}

	invalidationFired := false
	for i := range strategy.Invalidations {
		c := &strategy.Invalidations[i]
		if c.Scope != contracts.ScopePreEntry {
			continue
		}
		evaluate(c, fields)
		if c.Passed {
			invalidationFired = true
		}
	}

	eval.EntryTriggersPassed = triggersPassed
	eval.PreEntryInvalidationFired = invalidationFired

	switch {
	case invalidationFired:
		eval.Actionability = contracts.Invalidated
	case triggersPassed:
		eval.Actionability = contracts.ActionableNow
	default:
		eval.Actionability = contracts.WaitForTrigger
	}
	strategy.Actionability = eval.Actionability

	gate := contracts.OrderGate{}
	var reasons []string
	if !triggersPassed {
		reasons = append(reasons, "entry triggers not satisfied")
	}
	if invalidationFired {
		reasons = append(reasons, "pre-entry invalidation fired")
	}
	if eval.Actionability != contracts.ActionableNow {
		reasons = append(reasons, fmt.Sprintf("actionability is %s", eval.Actionability))
	}

	gate.CanPlaceOrder = len(reasons) == 0
	gate.Reasons = reasons
	return eval, gate
}

// evaluate resolves one condition. A reference to a missing field fails the
// condition rather than erroring: the gate only opens on positive evidence.
func evaluate(c *contracts.Condition, fields map[string]float64) {
	left, okL := resolve(c.Left, fields)
	right, okR := resolve(c.Right, fields)

	c.Evaluated = left
	if !okL || !okR {
		c.Passed = false
		return
	}
	c.Passed = c.Compare(left, right)
}

func resolve(ref contracts.ValueRef, fields map[string]float64) (float64, bool) {
	if ref.IsLiteral() {
		return ref.Value, true
	}
	v, ok := fields[ref.Field]
	return v, ok
}
