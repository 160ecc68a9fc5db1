package runtime

import (
	"meet-relay/domain"
	"sync"
)

type roomEntry[V any] struct {
	mu      sync.Mutex
	members map[domain.UserID]V
	removed bool // set once the entry has been unlinked from the table
}

// RoomTable is a concurrent room -> participant -> V store.
//
// Rooms live in a sync.Map so lookups and room creation never take a table-wide lock.
// Each room has its own mutex. When the last participant leaves, the room entry is
// marked removed and unlinked; a writer that raced with the removal sees the flag and
// retries on a fresh entry, so a room key is never present while empty.
type RoomTable[V any] struct {
	rooms sync.Map // map RoomID -> *roomEntry[V]
}

func NewRoomTable[V any]() *RoomTable[V] {
	return &RoomTable[V]{}
}

// Update applies fn to the current value of (room, participant) under the room lock
// and stores the result. The room is created on the fly if needed.
func (t *RoomTable[V]) Update(roomID domain.RoomID, userID domain.UserID, fn func(current V, exists bool) V) V {
	for {
		e := t.loadOrCreate(roomID)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		current, exists := e.members[userID]
		next := fn(current, exists)
		e.members[userID] = next
		e.mu.Unlock()
		return next
	}
}

// Put stores v, overwriting any previous value.
func (t *RoomTable[V]) Put(roomID domain.RoomID, userID domain.UserID, v V) {
	t.Update(roomID, userID, func(V, bool) V { return v })
}

func (t *RoomTable[V]) Get(roomID domain.RoomID, userID domain.UserID) (V, bool) {
	var zero V
	e, ok := t.load(roomID)
	if !ok {
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.members[userID]
	return v, ok
}

// Delete removes the participant and prunes the room when it becomes empty.
func (t *RoomTable[V]) Delete(roomID domain.RoomID, userID domain.UserID) (V, bool) {
	var zero V
	e, ok := t.load(roomID)
	if !ok {
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return zero, false
	}
	v, ok := e.members[userID]
	if !ok {
		return zero, false
	}
	delete(e.members, userID)
	if len(e.members) == 0 {
		e.removed = true
		t.rooms.CompareAndDelete(roomID, e)
	}
	return v, true
}

// Snapshot copies the room content. The copy is safe to iterate without locks.
func (t *RoomTable[V]) Snapshot(roomID domain.RoomID) map[domain.UserID]V {
	e, ok := t.load(roomID)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[domain.UserID]V, len(e.members))
	for k, v := range e.members {
		out[k] = v
	}
	return out
}

func (t *RoomTable[V]) Keys(roomID domain.RoomID) []domain.UserID {
	e, ok := t.load(roomID)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]domain.UserID, 0, len(e.members))
	for k := range e.members {
		keys = append(keys, k)
	}
	return keys
}

func (t *RoomTable[V]) Len(roomID domain.RoomID) int {
	e, ok := t.load(roomID)
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.members)
}

// HasRoom reports whether the room key is present.
func (t *RoomTable[V]) HasRoom(roomID domain.RoomID) bool {
	_, ok := t.rooms.Load(roomID)
	return ok
}

// Rooms counts the rooms currently holding at least one participant.
func (t *RoomTable[V]) Rooms() int {
	n := 0
	t.rooms.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (t *RoomTable[V]) load(roomID domain.RoomID) (*roomEntry[V], bool) {
	v, ok := t.rooms.Load(roomID)
	if !ok {
		return nil, false
	}
	return v.(*roomEntry[V]), true
}

func (t *RoomTable[V]) loadOrCreate(roomID domain.RoomID) *roomEntry[V] {
	if e, ok := t.load(roomID); ok {
		return e
	}
	v, _ := t.rooms.LoadOrStore(roomID, &roomEntry[V]{members: make(map[domain.UserID]V)})
	return v.(*roomEntry[V])
}
