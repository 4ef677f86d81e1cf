package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex // gorilla connections allow one concurrent writer
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Hub keeps the websocket connections of this instance, keyed by user
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*conn]struct{}
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

// NewHub creates an empty hub
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		conns: make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log,
	}
}

// ServeWS upgrades the request and keeps the connection registered for userKey until
// the client goes away. It blocks for the lifetime of the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userKey string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WS upgrade failed for %s: %v", userKey, err)
		return
	}
	c := &conn{ws: ws}
	h.add(userKey, c)
	defer h.remove(userKey, c)

	// clients only listen; reading detects close frames and dead peers
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(userKey string, c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[userKey]; !ok {
		h.conns[userKey] = make(map[*conn]struct{})
	}
	h.conns[userKey][c] = struct{}{}
	total := len(h.conns[userKey])
	h.mu.Unlock()

	h.log.Debugf("WS connected: %s (total=%d)", userKey, total)
}

func (h *Hub) remove(userKey string, c *conn) {
	h.mu.Lock()
	if set, ok := h.conns[userKey]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, userKey)
		}
	}
	h.mu.Unlock()

	_ = c.ws.Close()
	h.log.Debugf("WS disconnected: %s", userKey)
}

// Connections returns how many sockets userKey has open on this instance
func (h *Hub) Connections(userKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userKey])
}

// Deliver writes the event to every connection of its user and returns how many succeeded
func (h *Hub) Deliver(ev Event) int {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[ev.UserKey]))
	for c := range h.conns[ev.UserKey] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.writeJSON(ev); err != nil {
			h.log.Warnf("Failed WS send to %s: %v", ev.UserKey, err)
			go h.remove(ev.UserKey, c)
			continue
		}
		delivered++
	}
	return delivered
}

// Subscribe delivers events from the redis channel until ctx is done
func (h *Hub) Subscribe(ctx context.Context, rdb *redis.Client, channel string) {
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Warnf("Dropping malformed push event: %v", err)
				continue
			}
			h.Deliver(ev)
		}
	}
}
