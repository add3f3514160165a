// Package live pushes recomputed period summaries to websocket subscribers
// whenever a user's ledger changes.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dindin/internal/core"
	applog "dindin/internal/log"
	"dindin/internal/summary"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8
)

// SummarySource computes the summary a subscriber sees.
type SummarySource interface {
	Summary(ctx context.Context, userID string, p core.Period) (summary.PeriodSummary, error)
}

// Update is the message written to subscribers.
type Update struct {
	Type    string                `json:"type"`
	Month   string                `json:"month"`
	Summary summary.PeriodSummary `json:"summary"`
}

type client struct {
	conn   *websocket.Conn
	userID string
	period core.Period
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub tracks subscribers by user and month.
type Hub struct {
	source   SummarySource
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(source SummarySource) *Hub {
	return &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and subscribes it to the summary of p.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, p core.Period) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "Websocket upgrade failed", applog.FieldComponent, applog.ComponentLive, applog.FieldError, err)
		return
	}
	c := &client{conn: conn, userID: userID, period: p, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("Websocket client connected", applog.FieldComponent, applog.ComponentLive, applog.FieldUserID, userID, applog.FieldMonth, p.String(), "clients", total)

	go h.writePump(c)
	if msg, err := h.render(context.Background(), userID, p); err == nil {
		h.enqueue(c, msg)
	}
	go h.readPump(c)
}

// LedgerChanged pushes fresh summaries to the user's subscribers watching
// one of months.
func (h *Hub) LedgerChanged(ctx context.Context, userID string, months []string) {
	h.mu.Lock()
	var targets []*client
	for c := range h.clients {
		if c.userID == userID && slices.Contains(months, c.period.String()) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	rendered := make(map[string][]byte)
	for _, c := range targets {
		month := c.period.String()
		msg, ok := rendered[month]
		if !ok {
			var err error
			if msg, err = h.render(ctx, userID, c.period); err != nil {
				continue
			}
			rendered[month] = msg
		}
		h.enqueue(c, msg)
	}
}

func (h *Hub) render(ctx context.Context, userID string, p core.Period) ([]byte, error) {
	s, err := h.source.Summary(ctx, userID, p)
	if err != nil {
		slog.WarnContext(ctx, "Failed to compute live summary", applog.FieldComponent, applog.ComponentLive, applog.FieldUserID, userID, applog.FieldError, err)
		return nil, err
	}
	return json.Marshal(Update{Type: "summary", Month: p.String(), Summary: s})
}

// enqueue drops subscribers that cannot keep up.
func (h *Hub) enqueue(c *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		slog.Warn("Dropping slow websocket client", applog.FieldComponent, applog.ComponentLive, applog.FieldUserID, c.userID)
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	remaining := len(h.clients)
	h.mu.Unlock()
	slog.Info("Websocket client disconnected", applog.FieldComponent, applog.ComponentLive, applog.FieldUserID, c.userID, "clients", remaining)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
