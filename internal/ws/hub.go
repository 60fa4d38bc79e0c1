package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// AllBranches is the room for clients that follow every branch.
const AllBranches = "*"

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Branch  string          `json:"branch,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by branch
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Event

	// Closed when Run returns.
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for branch, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, branch)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.branch] == nil {
				h.rooms[client.branch] = make(map[*Client]bool)
			}
			h.rooms[client.branch][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Str("type", event.Type).Msg("ws: marshal event")
				continue
			}
			h.mu.Lock()
			for _, client := range h.recipients(event.Branch) {
				select {
				case client.send <- message:
				default:
					// Send buffer full; drop the client.
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// recipients returns the clients an event for branch reaches. Callers hold mu.
func (h *Hub) recipients(branch string) []*Client {
	var out []*Client
	for room, clients := range h.rooms {
		if branch != "" && room != branch && room != AllBranches {
			continue
		}
		for client := range clients {
			out = append(out, client)
		}
	}
	return out
}

// remove drops a client and its room once empty. Callers hold mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.branch]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.branch)
	}
}

// Publish queues an event for the branch room and the all-branches room.
// An empty branch reaches every client. Publish never blocks: events are
// dropped once the hub has stopped or its queue is full.
func (h *Hub) Publish(branch, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("ws: marshal payload")
		return
	}
	event := Event{Type: eventType, Branch: branch, Payload: data}
	select {
	case <-h.done:
	case h.broadcast <- event:
	default:
		log.Warn().Str("type", eventType).Msg("ws: broadcast queue full, event dropped")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.rooms {
		n += len(clients)
	}
	return n
}
