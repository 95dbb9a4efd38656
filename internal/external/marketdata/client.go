package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/httputil"
	"github.com/wonny/pythia/backend/pkg/logger"
	"github.com/wonny/pythia/backend/pkg/redis"
)

// Client fetches normalized OHLCV candles from the market data provider.
// ⭐ SSOT: 시세 데이터 호출은 이 패키지에서만
type Client struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

// NewClient creates a market data client. cache may be nil to disable the
// read-through cache.
func NewClient(cfg config.MarketDataConfig, httpClient *httputil.Client, cache *redis.Cache, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		cache:      cache,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     log,
	}
}

// candleRow is the provider's wire format for one bar
type candleRow struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

type candlesResponse struct {
	Symbol  string      `json:"symbol"`
	Candles []candleRow `json:"candles"`
}

// barsPerTimeframe: 일봉은 SMA200 계산에 충분해야 함
var barsPerTimeframe = map[contracts.Timeframe]int{
	contracts.TimeframeDay:   260,
	contracts.TimeframeHour:  120,
	contracts.Timeframe15Min: 96,
}

// GetCandles returns candles oldest-first for the instrument and timeframe.
// skipIntraday short-circuits intraday timeframes with no call, for swing
// requests that only consume the daily series.
func (c *Client) GetCandles(ctx context.Context, instrumentKey string, timeframe contracts.Timeframe, skipIntraday bool) ([]contracts.Candle, error) {
	if skipIntraday && timeframe != contracts.TimeframeDay {
		return nil, nil
	}

	exchange, symbol, err := splitInstrumentKey(instrumentKey)
	if err != nil {
		return nil, err
	}

	cacheKey := redis.CandlesKey(instrumentKey, string(timeframe))
	if c.cache != nil {
		var cached []contracts.Candle
		if hit, _ := c.cache.Get(ctx, cacheKey, &cached); hit && len(cached) > 0 {
			return cached, nil
		}
	}

	limit := barsPerTimeframe[timeframe]
	if limit == 0 {
		limit = 120
	}

	reqURL := fmt.Sprintf("%s/v1/candles?exchange=%s&symbol=%s&timeframe=%s&limit=%d",
		c.baseURL, url.QueryEscape(exchange), url.QueryEscape(symbol), url.QueryEscape(string(timeframe)), limit)
	if c.apiKey != "" {
		reqURL += "&apikey=" + url.QueryEscape(c.apiKey)
	}

	var resp candlesResponse
	if err := c.httpClient.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("fetch candles for %s: %w", instrumentKey, err)
	}

	if len(resp.Candles) == 0 {
		return nil, &contracts.InsufficientDataError{
			Symbol:  instrumentKey,
			Missing: []string{fmt.Sprintf("candles:%s", timeframe)},
		}
	}

	candles := make([]contracts.Candle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		ts, err := time.Parse(time.RFC3339, row.Timestamp)
		if err != nil {
			continue
		}
		candles = append(candles, contracts.Candle{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	// 오래된 것부터 정렬 보장 (제공자가 역순일 수 있음)
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, candles, redis.TTLMedium); err != nil {
			c.logger.WithError(err).Warn("Candle cache write failed")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument": instrumentKey,
		"timeframe":  string(timeframe),
		"count":      len(candles),
	}).Debug("Fetched candles")

	return candles, nil
}

// splitInstrumentKey parses "EXCHANGE|SYMBOL"
func splitInstrumentKey(instrumentKey string) (exchange, symbol string, err error) {
	parts := strings.SplitN(instrumentKey, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid instrument key %q (want EXCHANGE|SYMBOL)", instrumentKey)
	}
	return parts[0], parts[1], nil
}
