package pipeline

import "github.com/wonny/pythia/backend/internal/contracts"

// Config holds the pipeline tuning that is not scoring-related.
// ⭐ SSOT: 단계별 한계값은 여기서만
type Config struct {
	// Minimum acceptable risk-reward; below it the skeleton retunes once,
	// then degrades to NO_TRADE
	MinRiskReward float64

	// Session-based validity windows per analysis type
	SwingEntrySessions    int
	SwingTimeStopSessions int
	IntradayEntrySessions int
	IntradayTimeStop      int

	// Position sizing
	RiskBudgetPct   float64 // of account, e.g. 1.0
	AccountNotional float64 // reference account size for quantity suggestion
}

// DefaultConfig returns the production pipeline configuration
func DefaultConfig() Config {
	return Config{
		MinRiskReward: 1.5,

		SwingEntrySessions:    3,
		SwingTimeStopSessions: 10,
		IntradayEntrySessions: 1,
		IntradayTimeStop:      1,

		RiskBudgetPct:   1.0,
		AccountNotional: 10_000_000,
	}
}

// EntrySessions returns the entry validity window for an analysis type
func (c Config) EntrySessions(t contracts.AnalysisType) int {
	if t == contracts.AnalysisIntraday {
		return c.IntradayEntrySessions
	}
	return c.SwingEntrySessions
}

// TimeStopSessions returns the time-stop window for an analysis type
func (c Config) TimeStopSessions(t contracts.AnalysisType) int {
	if t == contracts.AnalysisIntraday {
		return c.IntradayTimeStop
	}
	return c.SwingTimeStopSessions
}
