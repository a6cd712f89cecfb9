package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/runah1996/api.runah.pt/internal/cache"
	"github.com/runah1996/api.runah.pt/internal/giveaway"
	"github.com/runah1996/api.runah.pt/internal/hub"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound client messages (ping/pong only).
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; CORS belongs at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Type    string          `json:"type"`
	Cause   string          `json:"cause,omitempty"`
	Version int64           `json:"version,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Handler upgrades HTTP connections to WebSocket and streams giveaway change
// events to them. On connect a client receives a connection acknowledgement
// and the current snapshot, then one update per change event until it
// disconnects.
type Handler struct {
	hub *hub.Hub
	svc *giveaway.Service
}

// New creates a Handler over the given hub and query service.
func New(h *hub.Hub, svc *giveaway.Service) *Handler {
	return &Handler{hub: h, svc: svc}
}

// ServeHTTP upgrades the connection and serves the client until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	log.Debug().Str("subscriber", sub.ID).Str("remote", r.RemoteAddr).Msg("ws: client connected")

	c := &session{conn: conn, sub: sub}
	c.greet(r.Context(), h.svc)

	go c.writePump()
	c.readPump() // blocks until the connection closes

	log.Debug().Str("subscriber", sub.ID).Msg("ws: client disconnected")
}

// session is one connected WebSocket client.
type session struct {
	conn *websocket.Conn
	sub  *hub.Subscriber

	// ctrl carries control replies (pong, error) from readPump to
	// writePump, which owns all writes; buffered so a burst never blocks
	// the reader.
	ctrl chan Message
}

// greet sends the connection acknowledgement and the current snapshot, so a
// client that joins mid-stream is never left without state. If no snapshot
// can be produced (cold cache, upstream down) the ack still goes out and the
// client waits for the next broadcast.
func (c *session) greet(ctx context.Context, svc *giveaway.Service) {
	c.ctrl = make(chan Message, 4)

	ack := Message{Type: "connection_established", Message: "Connected to giveaway updates"}
	c.write(ack)

	res, err := svc.Query(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("ws: no snapshot available for connect push")
		return
	}
	c.write(snapshotMessage(res.Snapshot, cache.CauseExpiry))
}

func snapshotMessage(snap cache.Snapshot, cause cache.Cause) Message {
	return Message{
		Type:    "giveaway_update",
		Cause:   string(cause),
		Version: snap.Version,
		Data:    json.RawMessage(snap.Payload),
	}
}

// reply hands a control message to writePump without blocking the reader.
func (c *session) reply(msg Message) {
	select {
	case c.ctrl <- msg:
	default:
	}
}

func (c *session) write(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

// writePump forwards hub events to the connection and sends periodic ping
// frames. Runs in its own goroutine per client; exits when the subscriber's
// queue is closed or a write fails.
func (c *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Queue closed: unsubscribed, overflow-disconnected, or
				// hub shutdown.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			data, err := json.Marshal(snapshotMessage(ev.Snapshot, ev.Cause))
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case msg := <-c.ctrl:
			c.write(msg)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client frames: protocol pongs keep the read deadline
// alive, and application-level {"type":"ping"} messages are answered with a
// pong for browser clients that cannot send control frames. Blocks until the
// connection closes.
func (c *session) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(Message{Type: "error", Message: "Invalid JSON"})
			continue
		}
		if msg.Type == "ping" {
			c.reply(Message{Type: "pong"})
		}
	}
}
