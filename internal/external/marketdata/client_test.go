package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/httputil"
	"github.com/wonny/pythia/backend/pkg/logger"
)

var testLog = logger.New(&config.Config{LogLevel: "error"})

func newTestClient(baseURL string) *Client {
	httpClient := httputil.New(testLog, 5*time.Second).DisableRetry()
	return NewClient(config.MarketDataConfig{BaseURL: baseURL}, httpClient, nil, testLog)
}

func TestGetCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "KRX", r.URL.Query().Get("exchange"))
		assert.Equal(t, "005930", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("timeframe"))

		w.Header().Set("Content-Type", "application/json")
		// Returned newest-first on purpose: the client must sort oldest-first
		fmt.Fprint(w, `{"symbol":"005930","candles":[
			{"timestamp":"2025-03-05T00:00:00+09:00","open":71000,"high":72000,"low":70500,"close":71800,"volume":12000000},
			{"timestamp":"2025-03-04T00:00:00+09:00","open":70000,"high":71500,"low":69800,"close":71000,"volume":15000000}
		]}`)
	}))
	defer srv.Close()

	candles, err := newTestClient(srv.URL).GetCandles(context.Background(), "KRX|005930", contracts.TimeframeDay, false)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp), "candles must be oldest-first")
	assert.Equal(t, 71800.0, candles[1].Close)
}

func TestGetCandles_SkipIntraday(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when skipping intraday")
	}))
	defer srv.Close()

	candles, err := newTestClient(srv.URL).GetCandles(context.Background(), "KRX|005930", contracts.TimeframeHour, true)
	require.NoError(t, err)
	assert.Nil(t, candles)
}

func TestGetCandles_EmptyIsInsufficientData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"005930","candles":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetCandles(context.Background(), "KRX|005930", contracts.TimeframeDay, false)
	require.Error(t, err)
	assert.True(t, contracts.IsInsufficientData(err))
}

func TestGetCandles_InvalidKey(t *testing.T) {
	_, err := newTestClient("http://unused").GetCandles(context.Background(), "005930", contracts.TimeframeDay, false)
	assert.Error(t, err)
}
