package logserver

import (
	"context"
)

type roomMessage struct {
	token string
	data  []byte
}

// Hub routes frames to the websocket clients of a room. A room holds every
// client connected with the same token.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	joinRoom   chan *Client
	endRoom    chan string
	broadcast  chan roomMessage
	stats      chan chan HubStats
	done       chan struct{}
}

// HubStats counts connected clients and occupied rooms
type HubStats struct {
	Clients int
	Rooms   int
}

// NewHub creates a hub; Run must be started before use
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		joinRoom:   make(chan *Client),
		endRoom:    make(chan string),
		broadcast:  make(chan roomMessage),
		stats:      make(chan chan HubStats),
		done:       make(chan struct{}),
	}
}

// Run serves hub requests until ctx is done, then drops every client
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.remove(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			h.remove(c)
		case c := <-h.joinRoom:
			if !h.clients[c] {
				continue
			}
			room := h.rooms[c.ID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[c.ID] = room
			}
			room[c] = true
		case token := <-h.endRoom:
			for c := range h.rooms[token] {
				h.remove(c)
			}
		case m := <-h.broadcast:
			for c := range h.rooms[m.token] {
				select {
				case c.send <- m.data:
				default:
					// slow consumer
					h.remove(c)
				}
			}
		case reply := <-h.stats:
			reply <- HubStats{Clients: len(h.clients), Rooms: len(h.rooms)}
		}
	}
}

// remove forgets c and closes its send channel, which ends its writer
func (h *Hub) remove(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	if room := h.rooms[c.ID]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.ID)
		}
	}
	close(c.send)
}

// Register adds c to the hub
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes c from the hub and its room
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join adds c to the room of its token
func (h *Hub) Join(c *Client) {
	select {
	case h.joinRoom <- c:
	case <-h.done:
	}
}

// Broadcast queues data for every client in the room of token
func (h *Hub) Broadcast(token string, data []byte) {
	select {
	case h.broadcast <- roomMessage{token: token, data: data}:
	case <-h.done:
	}
}

// End disconnects every client in the room of token after the frames
// already queued for them are written
func (h *Hub) End(token string) {
	select {
	case h.endRoom <- token:
	case <-h.done:
	}
}

// Stats returns the current client and room counts
func (h *Hub) Stats() HubStats {
	reply := make(chan HubStats, 1)
	select {
	case h.stats <- reply:
		return <-reply
	case <-h.done:
		return HubStats{}
	}
}
