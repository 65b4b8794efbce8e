package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrSendBufferFull = errors.New("websocket: send buffer full")

// Client is a single websocket connection. Until it is authorized it is not
// registered with the hub and nothing may be queued for it.
type Client struct {
	Lifecycle

	ID   string
	Conn *websocket.Conn
	Hub  *Hub

	// Room is the subject of the authorized token, filled in by Authorize.
	Room string

	sendMu     sync.Mutex
	sendClosed bool
	send       chan []byte
}

func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Hub:  hub,
		send: make(chan []byte, 256),
	}
}

// BeginAuthorization moves the client from Connecting to Authorizing.
func (c *Client) BeginAuthorization() error {
	return c.Transition(StateAuthorizing)
}

// Authorize marks the client authorized, queues first, then joins it to the
// subject's room. Frames in first are written before any broadcast.
func (c *Client) Authorize(room string, first ...[]byte) error {
	if err := c.Transition(StateAuthorized); err != nil {
		return err
	}
	c.Room = room
	for _, msg := range first {
		if err := c.Enqueue(msg); err != nil {
			return err
		}
	}
	if c.Hub != nil {
		c.Hub.Register(c)
	}
	return nil
}

// Reject sends msg as a single text frame and closes the connection.
func (c *Client) Reject(msg string) error {
	if err := c.Transition(StateRejected); err != nil {
		return err
	}
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	werr := c.Conn.WriteMessage(websocket.TextMessage, []byte(msg))
	c.closeConn(websocket.ClosePolicyViolation, "")
	return werr
}

// Abort closes the connection without a crafted message, for failures that
// are not authorization decisions.
func (c *Client) Abort() {
	c.closeConn(websocket.CloseInternalServerErr, "internal error")
}

// Enqueue queues a text frame for the write pump. It refuses to queue anything
// unless the client is authorized.
func (c *Client) Enqueue(msg []byte) error {
	if !c.CanSend() {
		return ErrNotAuthorized
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return ErrNotAuthorized
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// closeSend stops the write pump. Safe to call more than once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) closeConn(code int, text string) {
	_ = c.Conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second),
	)
	_ = c.Conn.Close()
	_ = c.Transition(StateClosed)
}

func (c *Client) ReadPump(onMessage func([]byte)) {
	defer func() {
		if c.Hub != nil {
			c.Hub.Unregister(c)
		} else {
			c.closeSend()
		}
		_ = c.Conn.Close()
		_ = c.Transition(StateClosed)
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			// Expected close errors are common.
			return
		}
		if onMessage != nil && c.CanSend() {
			onMessage(message)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				zap.L().Debug("ws ping error", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}
