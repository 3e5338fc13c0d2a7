package realtime

import (
	"sync"

	"go.uber.org/zap"

	"orderhub/internal/logger"
)

// Observer receives transport metrics. All methods must be safe for concurrent use.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	Broadcast(event string, recipients int)
	Dropped()
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()     {}
func (nopObserver) ConnectionClosed()     {}
func (nopObserver) Broadcast(string, int) {}
func (nopObserver) Dropped()              {}

// Hub tracks live connections and their topic memberships
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client // topic → connection id → client
	joined  map[string]map[string]struct{} // connection id → topics
	obs     Observer
}

// NewHub creates an empty hub. obs may be nil.
func NewHub(obs Observer) *Hub {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
		obs:     obs,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.joined[c.id] = make(map[string]struct{})
	h.obs.ConnectionOpened()
}

// unregister removes the client from every topic and closes its send channel
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	for topic := range h.joined[id] {
		members := h.rooms[topic]
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, topic)
		}
	}
	delete(h.joined, id)
	delete(h.clients, id)
	close(c.send)
	h.obs.ConnectionClosed()
}

// Subscribe joins connection id to topic. Unknown connections are ignored.
func (h *Hub) Subscribe(id, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	members, ok := h.rooms[topic]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[topic] = members
	}
	members[id] = c
	h.joined[id][topic] = struct{}{}
}

// Unsubscribe removes connection id from topic
func (h *Hub) Unsubscribe(id, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[topic]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, topic)
		}
	}
	if topics, ok := h.joined[id]; ok {
		delete(topics, topic)
	}
}

// Publish sends an event frame to every member of topic.
// Slow clients whose buffers are full miss the frame.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	data, err := eventFrame(event, payload)
	if err != nil {
		logger.Log.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[topic]
	for _, c := range members {
		h.sendLocked(c, data)
	}
	h.obs.Broadcast(event, len(members))
}

// deliver sends data to a single connection if it is still registered
func (h *Hub) deliver(id string, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[id]
	if !ok {
		return false
	}
	return h.sendLocked(c, data)
}

func (h *Hub) sendLocked(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		logger.Log.Warn("client buffer full, dropping frame", zap.String("conn", c.id))
		h.obs.Dropped()
		return false
	}
}

// Members returns the number of connections in topic
func (h *Hub) Members(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

// Connections returns the number of live connections
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection; their write pumps send a close frame and exit
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.clients {
		h.removeLocked(id)
	}
}
