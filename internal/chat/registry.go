package chat

import "sync"

// member is the registry's record of one joined connection.
type member struct {
	conn     Conn
	room     string
	user     string
	attached bool
}

// Registry owns room membership, the global connection set and the per-room
// history buffers. Membership is read on every broadcast and written only on
// join and leave, so it sits behind a RWMutex and readers receive copies.
// Histories have their own lock and each buffer serializes its own appends.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*member
	rooms map[string]map[string]Conn

	histMu      sync.RWMutex
	histories   map[string]*History
	historySize int
}

// NewRegistry creates an empty registry whose room histories hold
// historySize messages each.
func NewRegistry(historySize int) *Registry {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Registry{
		conns:       make(map[string]*member),
		rooms:       make(map[string]map[string]Conn),
		histories:   make(map[string]*History),
		historySize: historySize,
	}
}

// Join registers conn in room under user. Joining again with the same
// connection moves it rather than duplicating its membership.
func (r *Registry) Join(conn Conn, room, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[conn.ID()]; ok {
		r.detachLocked(existing)
	}

	r.conns[conn.ID()] = &member{conn: conn, room: room, user: user, attached: true}
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[string]Conn)
		r.rooms[room] = set
	}
	set[conn.ID()] = conn
}

// Leave removes conn from its room and from the global set and returns the
// association it had. ok is false when conn was never registered.
func (r *Registry) Leave(conn Conn) (room, user string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, found := r.conns[conn.ID()]
	if !found {
		return "", "", false
	}
	r.detachLocked(m)
	delete(r.conns, conn.ID())
	return m.room, m.user, true
}

// Detach drops conn from its room set but keeps its global record, so a later
// Leave still reports the room and user. Used to prune dead peers found
// during a broadcast.
func (r *Registry) Detach(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, found := r.conns[conn.ID()]
	if !found || !m.attached {
		return false
	}
	r.detachLocked(m)
	return true
}

func (r *Registry) detachLocked(m *member) {
	if !m.attached {
		return
	}
	m.attached = false

	set, ok := r.rooms[m.room]
	if !ok {
		return
	}
	delete(set, m.conn.ID())
	if len(set) == 0 {
		delete(r.rooms, m.room)
	}
}

// Lookup returns the room and user conn was registered with.
func (r *Registry) Lookup(conn Conn) (room, user string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, found := r.conns[conn.ID()]
	if !found {
		return "", "", false
	}
	return m.room, m.user, true
}

// MembersOf returns a snapshot of the connections currently in room.
func (r *Registry) MembersOf(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[room]
	members := make([]Conn, 0, len(set))
	for _, conn := range set {
		members = append(members, conn)
	}
	return members
}

// OnlineCount returns the number of connections in room.
func (r *Registry) OnlineCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// ConnectionCount returns the number of registered connections across all rooms.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ConnsOf returns the attached connections registered for user, in any room.
func (r *Registry) ConnsOf(user string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Conn
	for _, m := range r.conns {
		if m.user == user && m.attached {
			conns = append(conns, m.conn)
		}
	}
	return conns
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// History returns the history buffer of room, creating it on first use.
// Buffers are never removed: a room keeps its last messages after everyone leaves.
func (r *Registry) History(room string) *History {
	r.histMu.RLock()
	h, ok := r.histories[room]
	r.histMu.RUnlock()
	if ok {
		return h
	}

	r.histMu.Lock()
	defer r.histMu.Unlock()
	if h, ok = r.histories[room]; ok {
		return h
	}
	h = NewHistory(r.historySize)
	r.histories[room] = h
	return h
}

// HistorySnapshot returns the retained messages of room, oldest first, without
// creating a buffer for an unknown room.
func (r *Registry) HistorySnapshot(room string) []Message {
	r.histMu.RLock()
	h, ok := r.histories[room]
	r.histMu.RUnlock()
	if !ok {
		return []Message{}
	}
	return h.Snapshot()
}
