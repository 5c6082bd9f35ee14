// internal/control/hub.go
package control

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Commands are small; templates are the largest field.
	maxMessageSize = 64 * 1024
	sendBuffer     = 16
)

// Event kinds pushed to socket clients.
const (
	EventState    = "state"
	EventResponse = "response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is a server-to-client socket frame.
type Event struct {
	Kind     string          `json:"kind"`
	ID       string          `json:"id,omitempty"`
	State    *store.RunState `json:"state,omitempty"`
	Response *Response       `json:"response,omitempty"`
}

// socketCommand is a client-to-server frame. ID is echoed on the response.
type socketCommand struct {
	ID string `json:"id"`
	Command
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

type outbound struct {
	to  *client
	msg []byte
}

// Hub fans RunState changes out to websocket clients and feeds their commands to the
// dispatcher.
type Hub struct {
	dispatcher *Dispatcher
	logger     *zap.Logger

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	reply      chan outbound
	done       chan struct{}

	// ctx is the hub's lifetime; commands from sockets run under it.
	ctx context.Context
}

// NewHub creates a hub. Call Run before serving HandleWS.
func NewHub(d *Dispatcher, logger *zap.Logger) *Hub {
	return &Hub{
		dispatcher: d,
		logger:     logger.Named("ws_hub"),
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		reply:      make(chan outbound),
		done:       make(chan struct{}),
		ctx:        context.Background(),
	}
}

// Run owns the client set until ctx is done. Every value from updates is broadcast; new clients
// receive the latest one on connect.
func (h *Hub) Run(ctx context.Context, updates <-chan store.RunState) {
	h.ctx = ctx
	h.logger.Info("WebSocket hub started.")
	defer h.logger.Info("WebSocket hub stopped.")
	defer close(h.done)

	var latest []byte
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("WebSocket client connected.", zap.String("client_id", c.id))
			if latest != nil {
				h.deliver(c, latest)
			}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Debug("WebSocket client disconnected.", zap.String("client_id", c.id))
			}
		case out := <-h.reply:
			if h.clients[out.to] {
				h.deliver(out.to, out.msg)
			}
		case st, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			msg, err := json.Marshal(Event{Kind: EventState, State: &st})
			if err != nil {
				h.logger.Error("Failed to marshal state event.", zap.Error(err))
				continue
			}
			latest = msg
			for c := range h.clients {
				h.deliver(c, msg)
			}
		}
	}
}

// deliver queues msg for c, dropping a client whose buffer is full.
func (h *Hub) deliver(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("WebSocket client too slow; dropping.", zap.String("client_id", c.id))
		close(c.send)
		delete(h.clients, c)
	}
}

// HandleWS upgrades the request and attaches the connection to the hub.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed.", zap.Error(err))
		return
	}
	c := &client{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("WebSocket read error.", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var cmd socketCommand
		var resp Response
		if err := json.Unmarshal(message, &cmd); err != nil {
			resp = failure(http.StatusBadRequest, msgInvalidFormat)
		} else {
			resp = c.hub.dispatcher.Dispatch(c.hub.ctx, cmd.Command)
		}

		msg, err := json.Marshal(Event{Kind: EventResponse, ID: cmd.ID, Response: &resp})
		if err != nil {
			c.hub.logger.Error("Failed to marshal response.", zap.Error(err))
			continue
		}
		select {
		case c.hub.reply <- outbound{to: c, msg: msg}:
		case <-c.hub.done:
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			// One event per frame so each frame is a complete JSON document.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
