package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/market"
)

// 프롬프트 조립 (SSOT)
// 단계별 시스템 프롬프트와 입력 페이로드는 전부 여기서 만듦

const preflightSystem = `You are a market analyst. Given an indicator snapshot for one instrument, write a short market commentary and restate the condition labels.

Respond with one JSON object:
{
  "trend": "bullish" | "bearish" | "neutral",
  "volatility": "low" | "medium" | "high",
  "volume": "low" | "normal" | "high",
  "commentary": "two or three sentences on current conditions"
}`

const skeletonSystem = `You are a trading strategist. Given a market summary and indicator snapshot, propose exactly one best-fit strategy skeleton for the stated horizon.

Respond with one JSON object:
{
  "type": "BUY" | "SELL" | "NO_TRADE",
  "archetype": "pullback" | "breakout" | "mean_reversion" | "trend_follow",
  "entry": number,
  "target_atr_mult": number,
  "stop_atr_mult": number,
  "alignment": "with_trend" | "counter_trend" | "neutral"
}

Rules:
- Propose NO_TRADE when conditions give no edge.
- target and stop are derived from entry and ATR by the caller; you choose the multiples.
- Stay inside the stated multiple bounds.`

const finalizeSystem = `You are a trading strategist completing a strategy. Given the skeleton and market context, produce entry triggers, pre-entry invalidations, and a short explanation.

Respond with one JSON object:
{
  "triggers": [
    {"scope": "entry", "left": {"field": "<field>"}, "operator": "gt|gte|lt|lte", "right": {"field": "<field>"} or {"value": number}, "description": "..."}
  ],
  "invalidations": [
    {"scope": "pre_entry", "left": {...}, "operator": "...", "right": {...}, "description": "..."}
  ],
  "confidence": 0.0-1.0,
  "explanation": "three or four sentences for a retail investor"
}

Rules:
- Field references may use ONLY the field names listed in the snapshot.
- 1 to 3 entry triggers, 0 to 2 pre-entry invalidations.
- Keep conditions simple and evaluable from the snapshot alone.`

// snapshotPayload renders the indicator snapshot as a JSON block with the
// referencable field list spelled out
func snapshotPayload(snap *market.Snapshot) string {
	fields := snap.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}

	data, _ := json.MarshalIndent(fields, "", "  ")
	return fmt.Sprintf("Indicator snapshot:\n%s\n\nReferencable fields: %s",
		string(data), strings.Join(names, ", "))
}

func preflightUserPrompt(symbol, stockName string, analysisType contracts.AnalysisType, snap *market.Snapshot, summary contracts.MarketSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Instrument: %s (%s)\nHorizon: %s\n\n", stockName, symbol, analysisType)
	sb.WriteString(snapshotPayload(snap))
	fmt.Fprintf(&sb, "\n\nComputed labels (restate these exactly): trend=%s volatility=%s volume=%s\n",
		summary.Trend, summary.Volatility, summary.Volume)
	return sb.String()
}

func skeletonUserPrompt(symbol string, analysisType contracts.AnalysisType, preflight *contracts.PreflightResult, snap *market.Snapshot, targetBand, stopBand string) string {
	summaryJSON, _ := json.Marshal(preflight.MarketSummary)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Instrument: %s\nHorizon: %s\nMarket summary: %s\n", symbol, analysisType, string(summaryJSON))
	if preflight.Commentary != "" {
		fmt.Fprintf(&sb, "Commentary: %s\n", preflight.Commentary)
	}
	fmt.Fprintf(&sb, "\nTarget multiple bounds: %s\nStop multiple bounds: %s\n\n", targetBand, stopBand)
	sb.WriteString(snapshotPayload(snap))
	return sb.String()
}

func finalizeUserPrompt(symbol string, analysisType contracts.AnalysisType, skeleton *contracts.SkeletonResult, snap *market.Snapshot, sentiment *contracts.SentimentContext) string {
	skeletonJSON, _ := json.Marshal(skeleton)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Instrument: %s\nHorizon: %s\nSkeleton: %s\n\n", symbol, analysisType, string(skeletonJSON))
	if sentiment != nil {
		sentimentJSON, _ := json.Marshal(sentiment)
		fmt.Fprintf(&sb, "News sentiment: %s\n\n", string(sentimentJSON))
	}
	sb.WriteString(snapshotPayload(snap))
	return sb.String()
}
