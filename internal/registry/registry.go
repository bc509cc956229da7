// Package registry owns the in-memory room state: the mapping from
// room id to Room, the reverse index from connection handle to
// (room id, index), and the atomic operations that keep both
// consistent under concurrent create/join/disconnect/route traffic.
//
// Every exported method here is one indivisible step with respect to
// every other (spec §5): each takes the single registry lock, mutates
// state, and returns a value snapshot for the caller to act on after
// releasing the lock. No method here performs I/O or blocks on a
// channel while holding the lock.
package registry

import (
	"sync"

	"github.com/collapsinghierarchy/relay/internal/conn"
	"github.com/collapsinghierarchy/relay/internal/idgen"
)

type location struct {
	roomID string
	index  int
}

// Registry is the process-wide room directory. The zero value is not
// usable; construct with New.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	byConn map[conn.Conn]location
	gen    idgen.Func
}

// New builds an empty Registry. gen supplies fresh room ids; pass
// idgen.Gen in production, and a deterministic/colliding stub in
// tests that need to exercise ErrAlreadyExists.
func New(gen idgen.Func) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		byConn: make(map[conn.Conn]location),
		gen:    gen,
	}
}

// CreateRoom creates a new room of the given capacity owned by h, the
// sole initial member at index 0. Returns ErrInvalidSize if capacity
// is out of [MinCapacity, MaxCapacity], ErrAlreadyInRoom if h is
// already a member of some room, or ErrAlreadyExists if the generated
// id collides with an existing room (not retried — see spec §4.3).
func (reg *Registry) CreateRoom(h conn.Conn, capacity int) (string, error) {
	if capacity < MinCapacity || capacity > MaxCapacity {
		return "", ErrInvalidSize
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, already := reg.byConn[h]; already {
		return "", ErrAlreadyInRoom
	}

	id := reg.gen()
	if _, exists := reg.rooms[id]; exists {
		return "", ErrAlreadyExists
	}

	r := newRoom(id, capacity)
	idx, err := r.TryAdd(h)
	if err != nil {
		// Unreachable: a fresh room of capacity >= 1 always has room
		// for its first member.
		return "", err
	}
	reg.rooms[id] = r
	reg.byConn[h] = location{roomID: id, index: idx}
	return id, nil
}

// JoinRoom adds h to the room named id. Returns its new index, the
// number of other members already present, and a snapshot of those
// other members for notification. Returns ErrAlreadyInRoom if h is
// already a member of some room, ErrDoesNotExist if id names no room,
// or ErrIsFull if the room is at capacity.
func (reg *Registry) JoinRoom(h conn.Conn, id string) (index int, priorSize int, others []conn.Conn, err error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, already := reg.byConn[h]; already {
		return 0, 0, nil, ErrAlreadyInRoom
	}

	r, ok := reg.rooms[id]
	if !ok {
		return 0, 0, nil, ErrDoesNotExist
	}

	priorSize = r.Len()
	idx, err := r.TryAdd(h)
	if err != nil {
		return 0, 0, nil, err
	}
	reg.byConn[h] = location{roomID: id, index: idx}
	return idx, priorSize, r.SnapshotExcept(idx), nil
}

// HandleDisconnect removes h from its room, if any. If the room
// becomes empty it is destroyed and remaining is nil. Otherwise
// remaining is a snapshot of the members still present, and every
// surviving member whose index shifted has already had its reverse
// index entry rewritten before this method returns. ok is false if h
// was not a member of any room.
func (reg *Registry) HandleDisconnect(h conn.Conn) (roomID string, index int, remaining []conn.Conn, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	loc, found := reg.byConn[h]
	if !found {
		return "", 0, nil, false
	}
	delete(reg.byConn, h)

	r, ok := reg.rooms[loc.roomID]
	if !ok {
		panic("registry: by_conn points at a room that does not exist")
	}
	r.RemoveAt(loc.index)

	for i := loc.index; i < r.Len(); i++ {
		member, _ := r.At(i)
		reg.byConn[member] = location{roomID: loc.roomID, index: i}
	}

	if r.IsEmpty() {
		delete(reg.rooms, loc.roomID)
		return loc.roomID, loc.index, nil, true
	}
	return loc.roomID, loc.index, r.Snapshot(), true
}

// Lookup reports h's current room and index, if it is in one.
func (reg *Registry) Lookup(h conn.Conn) (roomID string, index int, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	loc, found := reg.byConn[h]
	if !found {
		return "", 0, false
	}
	return loc.roomID, loc.index, true
}

// RouteSnapshot captures, in one atomic step, h's current index and
// the full ordered member list of its room. This is the single
// binary-route decision point required by spec §5: the router must
// compute unicast/broadcast recipients from this snapshot without
// re-entering the registry, so a concurrent join or disconnect can
// never be observed mid-decision.
func (reg *Registry) RouteSnapshot(h conn.Conn) (selfIndex int, members []conn.Conn, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	loc, found := reg.byConn[h]
	if !found {
		return 0, nil, false
	}
	r, ok := reg.rooms[loc.roomID]
	if !ok {
		panic("registry: by_conn points at a room that does not exist")
	}
	return loc.index, r.Snapshot(), true
}

// RoomCount reports the number of live rooms (for metrics).
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// MemberCount reports the number of connections currently in any room
// (for metrics).
func (reg *Registry) MemberCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.byConn)
}

// RoomIDExists reports whether id currently names a live room.
func (reg *Registry) RoomIDExists(id string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, ok := reg.rooms[id]
	return ok
}
