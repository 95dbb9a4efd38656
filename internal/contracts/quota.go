package contracts

import "time"

// Plan names a subscription tier with its distinct-instrument cap
type Plan struct {
	Name       string `json:"name"`
	StockLimit int    `json:"stock_limit"`
}

// QuotaWindow is one rolling trading-cycle window, anchored at the market
// close cutoff of day T through the same cutoff of day T+1.
type QuotaWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window
func (w QuotaWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// QuotaDecision is the structured result of a quota check
type QuotaDecision struct {
	Allowed  bool      `json:"allowed"`
	Reason   string    `json:"reason,omitempty"`
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resets_at"`
}
