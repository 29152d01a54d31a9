// Package realtime tracks which users currently hold live connections and
// fans events out to them. The state is in-process and dies with the
// server; swapping the Registry for a broker-backed implementation is the
// designated extension point for running more than one instance.
package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is one live client connection. Send must be safe for concurrent
// use; the websocket transport serializes frame writes internally.
type Conn interface {
	ID() uuid.UUID
	Send(event string, data any) error
	Close() error
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]map[uuid.UUID]Conn
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int64]map[uuid.UUID]Conn)}
}

// Join adds conn to userID's room. A user may hold any number of
// connections (several devices, several tabs).
func (r *Registry) Join(userID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[userID]
	if room == nil {
		room = make(map[uuid.UUID]Conn)
		r.rooms[userID] = room
	}
	room[conn.ID()] = conn
}

// Leave removes conn from userID's room. Unknown members are ignored.
func (r *Registry) Leave(userID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[userID]
	delete(room, conn.ID())
	if len(room) == 0 {
		delete(r.rooms, userID)
	}
}

// Connections reports the number of live connections in userID's room.
func (r *Registry) Connections(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[userID])
}

// Broadcast delivers the event to every live connection of userID and
// returns how many received it. An empty room is a no-op, not an error. A
// connection whose send fails is dropped from the room and closed, so a
// dead peer degrades exactly one broadcast.
func (r *Registry) Broadcast(userID int64, event string, data any) int {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.rooms[userID]))
	for _, c := range r.rooms[userID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if err := c.Send(event, data); err != nil {
			r.Leave(userID, c)
			_ = c.Close()
			continue
		}
		delivered++
	}
	return delivered
}
