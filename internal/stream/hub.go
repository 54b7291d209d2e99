// Package stream pushes execution results and other bot events to
// websocket clients. New clients receive the recent history first, then
// live events; slow clients lose messages rather than blocking publishers.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"spot-trader/internal/metrics"
)

const (
	// DefaultReplaySize is the number of envelopes kept for new clients.
	DefaultReplaySize = 100

	sendBuffer = 256
)

// Channels published by the bot.
const (
	ChannelResult = "result"
	ChannelReport = "report"
	ChannelError  = "error"
)

// Envelope is the wire format of every message sent to clients.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      time.Time       `json:"ts"`
	Seq     int64           `json:"seq"`
	Replay  bool            `json:"replay,omitempty"`
}

// Hub tracks websocket clients and fans published events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	seq     int64
	replay  *replayBuffer
	closed  bool

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewHub creates a Hub keeping replaySize envelopes for late joiners.
// m may be nil.
func NewHub(replaySize int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		replay:  newReplayBuffer(replaySize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: m,
		logger:  logger.With("component", "stream"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Publish marshals v and sends it on channel to every connected client.
func (h *Hub) Publish(channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: marshal %s: %w", channel, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.seq++
	env, err := json.Marshal(Envelope{Channel: channel, Data: data, TS: h.now(), Seq: h.seq})
	if err != nil {
		return fmt.Errorf("stream: marshal envelope: %w", err)
	}
	h.replay.push(h.seq, env)

	for c := range h.clients {
		h.deliver(c, env)
	}
	return nil
}

// deliver queues msg without blocking. Caller holds h.mu.
func (h *Hub) deliver(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.metrics.IncStreamDrop()
		h.logger.Warn("dropping message for slow client", "remote", c.remote)
	}
}

// ServeHTTP upgrades the request to a websocket. The optional "since"
// query parameter limits replay to envelopes with a greater seq.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if s := r.URL.Query().Get("since"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.register(newClient(h, conn, r.RemoteAddr), since)
}

func (h *Hub) register(c *client, since int64) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.conn.Close()
		return
	}
	for _, e := range h.replay.since(since) {
		var env Envelope
		if json.Unmarshal(e.Data, &env) != nil {
			continue
		}
		env.Replay = true
		msg, err := json.Marshal(env)
		if err != nil {
			continue
		}
		h.deliver(c, msg)
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetStreamClients(count)
	h.logger.Info("client connected", "remote", c.remote, "clients", count)

	go c.writePump()
	go c.readPump()
}

// remove unregisters c and closes its send queue. Safe to call twice.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetStreamClients(count)
	h.logger.Info("client disconnected", "remote", c.remote, "clients", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last published envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.metrics.SetStreamClients(0)
}
