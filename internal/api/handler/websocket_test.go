package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pos_billing_server/internal/pkg/jwt"
	"github.com/qs3c/pos_billing_server/internal/pkg/ws"
)

const wsSecret = "ws-test-secret"

func setupWebSocketServer(t *testing.T, allowedOrigins []string) (*ws.Hub, string) {
	t.Helper()

	hub := ws.NewHub()
	router := gin.New()
	router.GET("/ws", NewWebSocketHandler(hub, wsSecret, allowedOrigins).Handle)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestWebSocketHandler_StreamsTenantEvents(t *testing.T) {
	hub, url := setupWebSocketServer(t, nil)

	token, err := jwt.GenerateToken("tenant-1", jwt.RoleOperator, wsSecret, 1)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.IsOnline("tenant-1") }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.SendToTenant("tenant-1", &ws.Message{Type: "charge_succeeded"}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "charge_succeeded")
}

func TestWebSocketHandler_RejectsBadToken(t *testing.T) {
	_, url := setupWebSocketServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	_, url := setupWebSocketServer(t, []string{"https://pos.example.com"})

	token, err := jwt.GenerateToken("tenant-1", jwt.RoleOperator, wsSecret, 1)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, _, err = websocket.DefaultDialer.Dial(url+"?token="+token, header)
	assert.Error(t, err)

	header.Set("Origin", "https://pos.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, header)
	require.NoError(t, err)
	conn.Close()
}
