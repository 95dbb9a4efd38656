package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

var testLog = logger.New(&config.Config{LogLevel: "error"})

func dialHub(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func completedRecord() *contracts.AnalysisRecord {
	return &contracts.AnalysisRecord{
		InstrumentKey: "KRX|005930",
		StockName:     "삼성전자",
		Type:          contracts.AnalysisSwing,
		Status:        contracts.StatusCompleted,
	}
}

func TestHub_DeliversNotification(t *testing.T) {
	hub := NewHub(testLog)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	conn := dialHub(t, server, "u1")

	require.Eventually(t, func() bool { return hub.ClientCount("u1") == 1 },
		time.Second, 10*time.Millisecond)

	hub.NotifyComplete("u1", completedRecord())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var n Notification
	require.NoError(t, json.Unmarshal(payload, &n))
	assert.Equal(t, "analysis_complete", n.Type)
	assert.Equal(t, "KRX|005930", n.InstrumentKey)
	assert.Equal(t, contracts.AnalysisSwing, n.AnalysisType)
	assert.Equal(t, contracts.StatusCompleted, n.Status)
}

func TestHub_IsolatesUsers(t *testing.T) {
	hub := NewHub(testLog)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	other := dialHub(t, server, "u2")

	require.Eventually(t, func() bool { return hub.ClientCount("u2") == 1 },
		time.Second, 10*time.Millisecond)

	// u1 has no connection; delivery to u2 must not happen either
	hub.NotifyComplete("u1", completedRecord())

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "u2 must not receive u1's notification")
}

func TestHub_NotifyWithoutClientsIsNoop(t *testing.T) {
	hub := NewHub(testLog)
	// 패닉이나 블로킹 없이 반환해야 함
	hub.NotifyComplete("nobody", completedRecord())
	hub.NotifyComplete("nobody", nil)
}

func TestHub_RejectsMissingUserID(t *testing.T) {
	hub := NewHub(testLog)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub := NewHub(testLog)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	conn := dialHub(t, server, "u1")
	require.Eventually(t, func() bool { return hub.ClientCount("u1") == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("u1") == 0 },
		time.Second, 10*time.Millisecond)
}
