package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Hub tracks authorized clients, grouped into one room per token subject.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan Broadcast
	disconnect chan string
	count      chan chan int

	done     chan struct{}
	stopOnce sync.Once

	rooms map[string]map[*Client]bool
}

type Broadcast struct {
	Room    string
	Type    string
	Payload any
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Broadcast, 256),
		disconnect: make(chan string),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		rooms:      map[string]map[*Client]bool{},
	}
}

// Run serves hub requests until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for _, clients := range h.rooms {
				for c := range clients {
					c.closeSend()
				}
			}
			h.rooms = map[string]map[*Client]bool{}
			return
		case c := <-h.register:
			if h.rooms[c.Room] == nil {
				h.rooms[c.Room] = map[*Client]bool{}
			}
			h.rooms[c.Room][c] = true
		case c := <-h.unregister:
			h.removeClient(c)
		case room := <-h.disconnect:
			for c := range h.rooms[room] {
				h.removeClient(c)
			}
		case b := <-h.broadcast:
			h.broadcastToRoom(b.Room, b.Type, b.Payload)
		case reply := <-h.count:
			n := 0
			for _, clients := range h.rooms {
				n += len(clients)
			}
			reply <- n
		}
	}
}

// Stop ends Run. Afterwards every hub method is a no-op so clients of a dead
// hub never block.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.closeSend()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.closeSend()
	}
}

// Disconnect closes every session in room, e.g. after its subject logs out.
func (h *Hub) Disconnect(room string) {
	select {
	case h.disconnect <- room:
	case <-h.done:
	}
}

func (h *Hub) Broadcast(room, typ string, payload any) {
	select {
	case h.broadcast <- Broadcast{Room: room, Type: typ, Payload: payload}:
	case <-h.done:
	}
}

// Count returns the number of registered clients, or 0 once stopped.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) removeClient(c *Client) {
	if c == nil {
		return
	}
	if h.rooms[c.Room] != nil {
		delete(h.rooms[c.Room], c)
		if len(h.rooms[c.Room]) == 0 {
			delete(h.rooms, c.Room)
		}
	}
	c.closeSend()
}

func (h *Hub) broadcastToRoom(room, typ string, payload any) {
	clients := h.rooms[room]
	if len(clients) == 0 {
		return
	}

	data, err := Envelope(typ, payload)
	if err != nil {
		zap.L().Warn("ws broadcast marshal error", zap.String("room", room), zap.String("type", typ), zap.Error(err))
		return
	}

	for c := range clients {
		if err := c.Enqueue(data); err != nil {
			// Backpressure / dead client.
			h.removeClient(c)
		}
	}
}

// Envelope encodes an application message the way every server frame is shaped.
func Envelope(typ string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":      typ,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// HubRef provides an atomic indirection to the currently-active Hub.
// This allows the server to swap in a fresh hub instance after a panic without
// restarting the HTTP server (handlers call Get() for each new connection).
type HubRef struct {
	v atomic.Pointer[Hub]
}

func NewHubRef(initial *Hub) *HubRef {
	r := &HubRef{}
	r.v.Store(initial)
	return r
}

func (r *HubRef) Get() (*Hub, bool) {
	h := r.v.Load()
	return h, h != nil
}

// Replace stops the current hub and installs a fresh one.
func (r *HubRef) Replace() *Hub {
	next := NewHub()
	if old := r.v.Swap(next); old != nil {
		old.Stop()
	}
	return next
}
