package realtime

import (
	"context"
	"sync"

	"fraud-detection-service/internal/util"
)

type roomMessage struct {
	room    string
	message Outbound
}

// Hub tracks connected clients by room and fans outbound messages out to
// them. Rooms are created on first join and dropped when their last client
// leaves.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan roomMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan roomMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run processes lifecycle events and broadcasts until the context is
// cancelled. Lifecycle events take priority over broadcasts so room
// membership is settled before messages fan out.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Broadcast queues a message for every client in the room. Dropped when the
// hub's queue is full rather than blocking telemetry processing.
func (h *Hub) Broadcast(room string, message Outbound) {
	select {
	case h.broadcast <- roomMessage{room: room, message: message}:
	default:
		util.Warn("Realtime broadcast queue full, dropping message",
			util.String("room", room),
			util.String("type", message.Type))
	}
}

// JoinRoom adds the client to a room. Called from the client's read pump
// after a join frame; safe concurrently with Run.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
	client.rooms[room] = true

	util.Debug("Client joined room",
		util.String("room", room),
		util.Int("room_size", len(members)))
}

// RoomSize reports the current number of clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	total := 0
	for _, members := range h.rooms {
		total += len(members)
	}
	h.mu.Unlock()
	util.Info("Realtime client connected", util.Int("total_clients", total+1))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	for room := range client.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	client.closeSend()
	util.Info("Realtime client disconnected")
}

func (h *Hub) deliver(msg roomMessage) {
	h.mu.RLock()
	members := h.rooms[msg.room]
	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.enqueue(msg.message) {
			// Slow or departing consumer; drop the frame instead of
			// stalling the hub.
			util.Warn("Dropping frame for slow realtime client",
				util.String("room", msg.room),
				util.String("type", msg.message.Type))
		}
	}
}

func (h *Hub) closeAll(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	seen := make(map[*Client]bool)
	for _, members := range h.rooms {
		for client := range members {
			if !seen[client] {
				seen[client] = true
				client.closeSend()
				closed++
			}
		}
	}
	h.rooms = make(map[string]map[*Client]bool)

	util.Info("Realtime hub shut down",
		util.Int("clients_closed", closed),
		util.ErrorField(ctx.Err()))
}
