package ws

import (
	"log"
	"sync"
)

// Hub indexes live connections by room code and fans broadcasts out to them.
// Binding is synchronous so a connection is always indexed before any event
// it triggers is enqueued; fan-out runs on a single goroutine draining a FIFO
// channel, so broadcasts for a room go out in the order the coordinators
// enqueued them.
type Hub struct {
	// Connections bound to a room, by room code
	rooms map[string]map[*Client]bool

	// All authenticated connections, bound or not
	clients map[*Client]bool

	// Outbound broadcasts, drained by Run
	broadcast chan *outbound

	mu sync.RWMutex
}

type outbound struct {
	roomCode string
	data     []byte
}

func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[string]map[*Client]bool),
		clients:   make(map[*Client]bool),
		broadcast: make(chan *outbound, 256),
	}
}

func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.fanOut(msg)
	}
}

// Broadcast implements race.Broadcaster. Best-effort: if the hub's queue is
// full the event is dropped rather than blocking a room coordinator.
func (h *Hub) Broadcast(roomCode, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		log.Printf("Error encoding %s broadcast: %v", event, err)
		return
	}

	select {
	case h.broadcast <- &outbound{roomCode: roomCode, data: data}:
	default:
		log.Printf("Broadcast queue full, dropping %s for room %s", event, roomCode)
	}
}

func (h *Hub) fanOut(msg *outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[msg.roomCode] {
		select {
		case client.send <- msg.data:
		default:
			// Slow consumer, skip. The transport layer will notice a
			// dead connection on its own.
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	h.unbindLocked(client)
	close(client.send)
}

// Bind indexes a connection under a room code.
func (h *Hub) Bind(client *Client, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[*Client]bool)
	}
	h.rooms[roomCode][client] = true
	client.roomCode = roomCode
}

// CloseRoom implements the registry-side eviction of race.Broadcaster: every
// connection bound under the code is unbound, so a reissued code can never
// fan out to the old room's clients.
func (h *Hub) CloseRoom(roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[roomCode] {
		client.roomCode = ""
	}
	delete(h.rooms, roomCode)
}

// Unbind removes a connection's room binding, if any.
func (h *Hub) Unbind(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(client)
}

func (h *Hub) unbindLocked(client *Client) {
	if client.roomCode == "" {
		return
	}
	if conns, ok := h.rooms[client.roomCode]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.rooms, client.roomCode)
		}
	}
	client.roomCode = ""
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
