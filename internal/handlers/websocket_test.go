package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
	"github.com/ternarybob/linkprobe/internal/services/events"
)

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketRejectsUnknownKey(t *testing.T) {
	h := NewWebSocketHandler(nil, newStubIdentity(), arbor.NewLogger(), &common.WebSocketConfig{})
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketDeliversOnlyOwnAccountEvents(t *testing.T) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	defer bus.Close()

	h := NewWebSocketHandler(bus, newStubIdentity(), logger, &common.WebSocketConfig{WriteTimeout: "2s"})
	defer h.Close()
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	own := dialWS(t, server, "key-1")
	other := dialWS(t, server, "key-2")

	assert.Equal(t, "connected", readMessage(t, own).Type)
	assert.Equal(t, "connected", readMessage(t, other).Type)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	network := "awin"
	test := &models.Test{ID: "t-1", AccountID: "acct-1", Kind: models.TestKindQuickCheck, Status: models.TestStatusSuccess, Network: &network}
	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventTestStatusChanged,
		Payload: models.NewTestStatusEvent(test),
	}))

	msg := readMessage(t, own)
	assert.Equal(t, string(interfaces.EventTestStatusChanged), msg.Type)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "t-1", payload["testId"])
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, "awin", payload["networkDetected"])

	// acct-2 must not see acct-1's event
	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketAllowedEventsFilter(t *testing.T) {
	h := NewWebSocketHandler(nil, newStubIdentity(), arbor.NewLogger(), &common.WebSocketConfig{AllowedEvents: []string{"stale_sweep_completed"}})
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	conn := dialWS(t, server, "key-1")
	readMessage(t, conn)

	h.BroadcastTestStatus(models.TestStatusEvent{TestID: "t-1", AccountID: "acct-1"})

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
