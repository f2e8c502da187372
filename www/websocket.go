package www

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/icodeforyou/entsoe-transparency/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var ErrBroadcastFull = errors.New("broadcast buffer full")

type Client struct {
	logger *slog.Logger
	hub    *Hub
	conn   *ws.Conn
	send   chan []byte
	name   string
}

func NewClient(hub *Hub, w http.ResponseWriter, r *http.Request, name string) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		logger: hub.logger.With(slog.String("client", name)),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		name:   name,
	}, nil
}

// ReadPump discards incoming messages and keeps the read deadline moving
// on pongs. It returns when the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				c.logger.Warn("web socket read failed", slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("web socket set write deadline failed", slog.Any("error", err))
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(ws.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("web socket close message failed", slog.Any("error", err))
				}
				return
			}

			if err := c.conn.WriteMessage(ws.TextMessage, message); err != nil {
				c.logger.Warn("web socket write failed", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("web socket set write deadline failed", slog.Any("error", err))
				return
			}
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.logger.Warn("web socket ping message failed", slog.Any("error", err))
				return
			}
		}
	}
}

// Hub maintains the set of active clients and broadcasts state changes to them
type Hub struct {
	Broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client
	clients    map[*Client]bool
	mutex      sync.Mutex
	logger     *slog.Logger
	done       chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// OnStateChanged is a state bus listener. Events are dropped rather than
// blocking the emitter when the broadcast buffer is full.
func (h *Hub) OnStateChanged(ctx context.Context, ev types.StateChangedEvent) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding state change: %w", err)
	}
	select {
	case h.Broadcast <- msg:
		return nil
	default:
		return ErrBroadcastFull
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			return

		case client := <-h.Register:
			h.logger.Debug("registering client", "clientName", client.name)

			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

		case client := <-h.Unregister:
			h.logger.Debug("unregistering client", "clientName", client.name)

			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			activeClients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				activeClients = append(activeClients, client)
			}
			h.mutex.Unlock()

			for _, client := range activeClients {
				select {
				case client.send <- message:
				default: // Client's channel is full, drop the message
					h.logger.Warn("client send buffer full, dropping message", "clientName", client.name)
				}
			}
		}
	}
}
