package websocket

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

	"github.com/SIMPLYBOYS/sage_mining/internal/types"
)

// startHub serves a hub whose connections belong to the ?user= query value.
func startHub(t *testing.T) (*Hub, func(userID string) *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(server.Close)

	dial := func(userID string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?user=" + userID
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { ws.Close() })
		return ws
	}
	return hub, dial
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, message, err := ws.ReadMessage()
	require.NoError(t, err)

	var received map[string]interface{}
	require.NoError(t, json.Unmarshal(message, &received))
	return received
}

func TestHub_SendToUser(t *testing.T) {
	hub, dial := startHub(t)
	alice := dial("alice")
	bob := dial("bob")
	waitForClients(t, hub, 2)

	err := hub.SendToUser("alice", types.Event{
		Type:    types.EventBalanceUpdate,
		Payload: types.BalanceUpdate{UserID: "alice", TokenBalance: 550, Reason: "mining"},
	})
	require.NoError(t, err)

	received := readEvent(t, alice)
	assert.Equal(t, "balance_update", received["type"])
	payload := received["payload"].(map[string]interface{})
	assert.Equal(t, float64(550), payload["tokenBalance"])

	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "bob should not receive alice's event")
}

func TestHub_Broadcast(t *testing.T) {
	hub, dial := startHub(t)
	alice := dial("alice")
	bob := dial("bob")
	waitForClients(t, hub, 2)

	require.NoError(t, hub.Broadcast(types.Event{Type: types.EventAnnouncement, Payload: map[string]string{"title": "Maintenance"}}))

	for _, ws := range []*websocket.Conn{alice, bob} {
		received := readEvent(t, ws)
		assert.Equal(t, "announcement", received["type"])
	}
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub, dial := startHub(t)
	ws := dial("alice")
	waitForClients(t, hub, 1)

	ws.Close()
	waitForClients(t, hub, 0)
}

func TestHub_SendWithoutClients(t *testing.T) {
	hub, _ := startHub(t)
	assert.NoError(t, hub.SendToUser("nobody", types.Event{Type: types.EventNotification}))
}
