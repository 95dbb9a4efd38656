package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/pythia/backend/internal/contracts"
)

func gateStrategy(triggers []contracts.Condition, invalidations []contracts.Condition) *contracts.Strategy {
	return &contracts.Strategy{
		Type:          contracts.StrategyBuy,
		Entry:         100,
		Target:        102.4,
		StopLoss:      98.4,
		Triggers:      triggers,
		Invalidations: invalidations,
	}
}

func TestEvaluateGate_AllTriggersPass(t *testing.T) {
	// snapshot: last=100, ema20=105, volume=avg ⇒ last<ema20 true with lt
	s := gateStrategy(
		[]contracts.Condition{
			{Scope: contracts.ScopeEntry, Left: contracts.ValueRef{Field: "last"}, Operator: contracts.OpLT, Right: contracts.ValueRef{Field: "ema20"}},
			{Scope: contracts.ScopeEntry, Left: contracts.ValueRef{Field: "last"}, Operator: contracts.OpGT, Right: contracts.ValueRef{Value: 99}},
		},
		[]contracts.Condition{
			{Scope: contracts.ScopePreEntry, Left: contracts.ValueRef{Field: "last"}, Operator: contracts.OpLT, Right: contracts.ValueRef{Value: 98.4}},
		},
	)

	eval, gate := EvaluateGate(s, bullishSnapshot(), time.Now())

	assert.True(t, eval.EntryTriggersPassed)
	assert.False(t, eval.PreEntryInvalidationFired)
	assert.Equal(t, contracts.ActionableNow, eval.Actionability)
	assert.Equal(t, contracts.ActionableNow, s.Actionability)
	assert.True(t, gate.CanPlaceOrder)
	assert.Empty(t, gate.Reasons)

	// 조건에 평가값이 기록됨
	assert.Equal(t, 100.0, s.Triggers[0].Evaluated)
	assert.True(t, s.Triggers[0].Passed)
}

func TestEvaluateGate_FailedTriggerBlocksOrder(t *testing.T) {
	s := gateStrategy(
		[]contracts.Condition{
			{Scope: contracts.ScopeEntry, Left: contracts.ValueRef{Field: "last"}, Operator: contracts.OpGT, Right: contracts.ValueRef{Field: "ema20"}}, // 100 > 105 false
		},
		nil,
	)

	eval, gate := EvaluateGate(s, bullishSnapshot(), time.Now())

	assert.False(t, eval.EntryTriggersPassed)
	assert.Equal(t, contracts.WaitForTrigger, eval.Actionability)
	assert.False(t, gate.CanPlaceOrder)
	assert.NotEmpty(t, gate.Reasons)
}

func TestEvaluateGate_InvalidationWins(t *testing.T) {
	// Triggers pass but an invalidation fires ⇒ invalidated, gate closed
	s := gateStrategy(
		[]contracts.Condition{
			{Scope: contracts.ScopeEntry, Left: contracts.ValueRef{Field: "last"}, Operator: contracts.OpGT, Right: contracts.ValueRef{Value: 99}},
		},
		[]contracts.Condition{
			{Scope: contracts.ScopePreEntry, Left: contracts.ValueRef{Field: "last"}, Operator: contracts.OpGTE, Right: contracts.ValueRef{Value: 100}},
		},
	)

	eval, gate := EvaluateGate(s, bullishSnapshot(), time.Now())

	assert.True(t, eval.PreEntryInvalidationFired)
	assert.Equal(t, contracts.Invalidated, eval.Actionability)
	assert.False(t, gate.CanPlaceOrder)
}

func TestEvaluateGate_NoTrade(t *testing.T) {
	s := &contracts.Strategy{Type: contracts.StrategyNoTrade}

	eval, gate := EvaluateGate(s, bullishSnapshot(), time.Now())

	assert.Equal(t, contracts.NotActionable, eval.Actionability)
	assert.False(t, gate.CanPlaceOrder)
}

func TestEvaluateGate_NoEntryTriggersNeverOpens(t *testing.T) {
	s := gateStrategy(nil, nil)

	eval, gate := EvaluateGate(s, bullishSnapshot(), time.Now())

	assert.False(t, eval.EntryTriggersPassed)
	assert.False(t, gate.CanPlaceOrder)
}

func TestEvaluateGate_MissingFieldFailsCondition(t *testing.T) {
	s := gateStrategy(
		[]contracts.Condition{
			{Scope: contracts.ScopeEntry, Left: contracts.ValueRef{Field: "nonexistent"}, Operator: contracts.OpGT, Right: contracts.ValueRef{Value: 0}},
		},
		nil,
	)

	_, gate := EvaluateGate(s, bullishSnapshot(), time.Now())
	assert.False(t, gate.CanPlaceOrder)
	assert.False(t, s.Triggers[0].Passed)
}

// Property: gate open implies directional type, all entry triggers passed,
// and no pre-entry invalidation fired.
func TestEvaluateGate_OpenImpliesInvariants(t *testing.T) {
	s := gateStrategy(
		[]contracts.Condition{
			{Scope: contracts.ScopeEntry, Left: contracts.ValueRef{Field: "last"}, Operator: contracts.OpGTE, Right: contracts.ValueRef{Value: 100}},
		},
		[]contracts.Condition{
			{Scope: contracts.ScopePreEntry, Left: contracts.ValueRef{Field: "last"}, Operator: contracts.OpLT, Right: contracts.ValueRef{Value: 90}},
		},
	)

	eval, gate := EvaluateGate(s, bullishSnapshot(), time.Now())
	if gate.CanPlaceOrder {
		assert.True(t, s.Type.IsDirectional())
		for _, trig := range s.EntryTriggers() {
			assert.True(t, trig.Passed)
		}
		assert.False(t, eval.PreEntryInvalidationFired)
		assert.Equal(t, contracts.ActionableNow, eval.Actionability)
	} else {
		t.Fatal("expected the gate to open for this setup")
	}
}
