package registry

import "github.com/collapsinghierarchy/relay/internal/conn"

// MinCapacity and MaxCapacity bound a room's size per spec.
const (
	MinCapacity = 1
	MaxCapacity = 254
)

// Room is an ordered, fixed-capacity, duplicate-free list of
// connection handles. It never locks: all synchronization happens one
// level up, in Registry, since a room's membership and the registry's
// reverse index must change together.
type Room struct {
	ID       string
	capacity int
	members  []conn.Conn
}

func newRoom(id string, capacity int) *Room {
	return &Room{
		ID:       id,
		capacity: capacity,
		members:  make([]conn.Conn, 0, capacity),
	}
}

// Capacity returns the room's immutable capacity.
func (r *Room) Capacity() int { return r.capacity }

// Len returns the current member count.
func (r *Room) Len() int { return len(r.members) }

// IsEmpty reports whether the room has no members.
func (r *Room) IsEmpty() bool { return len(r.members) == 0 }

// At returns the member at index i, if any.
func (r *Room) At(i int) (conn.Conn, bool) {
	if i < 0 || i >= len(r.members) {
		return nil, false
	}
	return r.members[i], true
}

// TryAdd appends h if the room has capacity, returning its new index.
func (r *Room) TryAdd(h conn.Conn) (int, error) {
	if len(r.members) >= r.capacity {
		return 0, ErrIsFull
	}
	r.members = append(r.members, h)
	return len(r.members) - 1, nil
}

// RemoveAt removes the member at index i, shifting every later member
// down by one. It returns the evicted handle. The caller (Registry)
// is responsible for rewriting the reverse index for every shifted
// member in the same atomic step.
func (r *Room) RemoveAt(i int) conn.Conn {
	evicted := r.members[i]
	r.members = append(r.members[:i], r.members[i+1:]...)
	return evicted
}

// SnapshotExcept returns a copy of the current member list, skipping
// index i (the sender). Used for broadcast fan-out outside the lock.
func (r *Room) SnapshotExcept(i int) []conn.Conn {
	out := make([]conn.Conn, 0, len(r.members))
	for idx, m := range r.members {
		if idx == i {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Snapshot returns a copy of the full current member list.
func (r *Room) Snapshot() []conn.Conn {
	out := make([]conn.Conn, len(r.members))
	copy(out, r.members)
	return out
}
