package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: 외부 협력자 인터페이스 정의는 여기서만

// Timeframe identifies a candle resolution
type Timeframe string

const (
	TimeframeDay   Timeframe = "1d"
	TimeframeHour  Timeframe = "1h"
	Timeframe15Min Timeframe = "15m"
)

// Candle is one normalized OHLCV bar
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// MarketDataProvider returns normalized OHLCV per timeframe.
// 데이터 부족은 InsufficientDataError로 보고
type MarketDataProvider interface {
	GetCandles(ctx context.Context, instrumentKey string, timeframe Timeframe, skipIntraday bool) ([]Candle, error)
}

// MarketCalendar is the trading-day oracle
type MarketCalendar interface {
	IsTradingDay(date time.Time) bool
	NextTradingDay(date time.Time) time.Time
}

// Headline is one scraped news item
type Headline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url,omitempty"`
}

// NewsProvider fetches recent headlines for a query
type NewsProvider interface {
	FetchNews(ctx context.Context, query string) ([]Headline, error)
}

// SentimentClassifier turns headlines into a qualitative view
type SentimentClassifier interface {
	Classify(ctx context.Context, headlines []Headline, horizon string) (*SentimentContext, TokenUsage, error)
}

// Message is one turn of a completion-service conversation
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// CallOptions is the immutable per-call completion configuration.
// 공유 상태 변경 대신 호출마다 값으로 전달 (동시성 안전)
type CallOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	JSONOnly    bool
}

// Completion is the completion-service response
type Completion struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
	Model   string     `json:"model"`
}

// CompletionService is the external language-model completion collaborator
type CompletionService interface {
	Complete(ctx context.Context, opts CallOptions, messages []Message) (*Completion, error)
}

// NotifyPolicy controls completion notifications for one request.
// bool 플래그 여러 개 대신 정책 값 하나로 전달
type NotifyPolicy struct {
	Enabled bool
	Channel string // e.g. "websocket"
}

// NotificationDispatcher delivers completion notices, fire-and-forget
type NotificationDispatcher interface {
	NotifyComplete(userID string, record *AnalysisRecord)
}
