// Package realtime delivers chats to connected users over WebSocket.
package realtime

import "sync"

// Conn is a live connection able to take outbound frames
type Conn interface {
	// Send queues frame without blocking, false if the frame was dropped
	Send(frame []byte) bool
}

// Registry tracks live connections in rooms keyed by user id
type Registry interface {
	Join(room string, c Conn)
	Leave(room string, c Conn)
	// Publish queues frame on every connection in room and returns how many accepted it
	Publish(room string, frame []byte) int
}

// Hub is the process-wide Registry
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{}
}

var _ Registry = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{rooms: map[string]map[Conn]struct{}{}}
}

func (h *Hub) Join(room string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[room]
	if !ok {
		conns = map[Conn]struct{}{}
		h.rooms[room] = conns
	}
	conns[c] = struct{}{}
}

func (h *Hub) Leave(room string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) Publish(room string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if c.Send(frame) {
			delivered++
		}
	}
	return delivered
}

// Connections returns the number of live connections in room
func (h *Hub) Connections(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}
