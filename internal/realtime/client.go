package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderhub/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

// Dispatcher runs inbound actions for a connection. Dispatch is called
// sequentially per connection and returns the acknowledgement payload.
type Dispatcher interface {
	Connect(connID string)
	Dispatch(ctx context.Context, connID, action string, data json.RawMessage) interface{}
	Disconnect(connID string)
}

// Client maintains one websocket connection
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// Endpoint upgrades HTTP requests to websocket sessions
type Endpoint struct {
	hub        *Hub
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
}

// NewEndpoint creates an Endpoint. allowedOrigin "*" or "" accepts any origin.
func NewEndpoint(hub *Hub, d Dispatcher, allowedOrigin string) *Endpoint {
	return &Endpoint{
		hub:        hub,
		dispatcher: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// ServeHTTP upgrades the connection and starts its pumps
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  e.hub,
	}
	e.hub.register(c)
	e.dispatcher.Connect(c.id)
	logger.Log.Info("client connected", zap.String("conn", c.id))

	go c.writePump()
	go c.readPump(e.dispatcher)
}

// readPump handles frames one at a time so actions from one connection never overlap
func (c *Client) readPump(d Dispatcher) {
	defer func() {
		c.hub.unregister(c.id)
		d.Disconnect(c.id)
		c.conn.Close()
		logger.Log.Info("client disconnected", zap.String("conn", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("websocket error", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		c.handleMessage(d, message)
	}
}

func (c *Client) handleMessage(d Dispatcher, message []byte) {
	var req Request
	var ack interface{}
	if err := json.Unmarshal(message, &req); err != nil || req.Action == "" {
		ack = malformed{Success: false, Message: "Malformed message"}
	} else {
		ack = d.Dispatch(context.Background(), c.id, req.Action, req.Data)
	}

	data, err := ackFrame(req, ack)
	if err != nil {
		logger.Log.Error("marshal ack", zap.String("conn", c.id), zap.Error(err))
		return
	}
	c.hub.deliver(c.id, data)
}

// writePump is the only writer on the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
