package push

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/contract-service/internal/models"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	hub := NewHub(log)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestHub_DeliversToUserConnections(t *testing.T) {
	hub, srv := newTestHub(t)
	first := dial(t, srv, "lan")
	second := dial(t, srv, "lan")
	other := dial(t, srv, "minh")

	require.Eventually(t, func() bool {
		return hub.Connections("lan") == 2 && hub.Connections("minh") == 1
	}, time.Second, 5*time.Millisecond)

	n := hub.Deliver(Event{
		EventID: "evt-1",
		UserKey: "lan",
		Topic:   "notifications",
		Payload: map[string]any{"message": "due soon", "contractId": 1},
	})
	assert.Equal(t, 2, n)

	for _, ws := range []*websocket.Conn{first, second} {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
		var got Event
		require.NoError(t, ws.ReadJSON(&got))
		assert.Equal(t, "evt-1", got.EventID)
		assert.Equal(t, "due soon", got.Payload["message"])
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	var none Event
	assert.Error(t, other.ReadJSON(&none), "other users receive nothing")
}

func TestHub_RemovesClosedConnections(t *testing.T) {
	hub, srv := newTestHub(t)
	ws := dial(t, srv, "lan")

	require.Eventually(t, func() bool { return hub.Connections("lan") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return hub.Connections("lan") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_DeliverWithoutConnections(t *testing.T) {
	hub, _ := newTestHub(t)
	assert.Zero(t, hub.Deliver(Event{UserKey: "nobody"}))
}

func TestEncodeEvent(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	data, err := encodeEvent("evt-1", &models.PushMessage{
		UserKey: "lan",
		Topic:   "notifications",
		Payload: map[string]any{"message": "hello"},
	}, at)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_id":"evt-1","user_key":"lan","topic":"notifications",
		"payload":{"message":"hello"},"timestamp":"2025-03-10T09:00:00Z"}`, string(data))

	_, err = encodeEvent("evt-2", &models.PushMessage{Topic: "notifications"}, at)
	assert.Error(t, err)
}
