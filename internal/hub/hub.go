package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// SendBuffer bounds each client's delivery queue. A client that cannot drain
// it loses messages instead of stalling the publisher.
const SendBuffer = 16

type Client struct {
	ID   string
	Send chan []byte
}

func NewClient(id string) *Client {
	return &Client{ID: id, Send: make(chan []byte, SendBuffer)}
}

// Hub routes published payloads to clients by named room. Room membership is
// the only routing state; it is guarded independently of any business state.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

type Message struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister drops the client from every room and closes its send channel.
// Other subscribers are not notified.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	for room, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.Send)
}

func (h *Hub) Join(client *Client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
}

func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish delivers payload to every client in the room, in call order for the
// room. An empty room name is a broadcast. Zero subscribers is a no-op.
func (h *Hub) Publish(room string, payload []byte) {
	if room == "" {
		h.Broadcast(payload)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.rooms[room] {
		h.deliver(client, payload)
	}
}

// Broadcast delivers payload to every connected client regardless of rooms.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.deliver(client, payload)
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		log.Printf("hub drop message for client %s", client.ID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func ParseMessage(data []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, false
	}
	if msg.Action != "join-room" && msg.Action != "leave-room" {
		return Message{}, false
	}
	if msg.Room == "" {
		return Message{}, false
	}
	return msg, true
}
