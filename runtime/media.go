package runtime

import (
	"meet-relay/domain"
	"time"
)

// MediaStore keeps the live media flags of every connected participant, per room.
// Writes are last-write-wins.
type MediaStore struct {
	states *RoomTable[domain.MediaState]
	now    func() time.Time
}

func NewMediaStore() *MediaStore {
	return &MediaStore{
		states: NewRoomTable[domain.MediaState](),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Seed stores the default state unless the participant already has one.
func (m *MediaStore) Seed(roomID domain.RoomID, userID domain.UserID) domain.MediaState {
	return m.states.Update(roomID, userID, func(current domain.MediaState, exists bool) domain.MediaState {
		if exists {
			return current
		}
		return domain.DefaultMediaState(m.now())
	})
}

// Update creates the entry with defaults if absent, then applies the update.
func (m *MediaStore) Update(roomID domain.RoomID, userID domain.UserID, update domain.MediaUpdate) domain.MediaState {
	return m.states.Update(roomID, userID, func(domain.MediaState, bool) domain.MediaState {
		return update.Apply(m.now())
	})
}

// Get returns the stored state, or a transient default that is not stored.
func (m *MediaStore) Get(roomID domain.RoomID, userID domain.UserID) domain.MediaState {
	if state, ok := m.states.Get(roomID, userID); ok {
		return state
	}
	return domain.DefaultMediaState(m.now())
}

// Lookup is Get without the default.
func (m *MediaStore) Lookup(roomID domain.RoomID, userID domain.UserID) (domain.MediaState, bool) {
	return m.states.Get(roomID, userID)
}

func (m *MediaStore) Remove(roomID domain.RoomID, userID domain.UserID) {
	m.states.Delete(roomID, userID)
}

func (m *MediaStore) Snapshot(roomID domain.RoomID) map[domain.UserID]domain.MediaState {
	return m.states.Snapshot(roomID)
}

func (m *MediaStore) HasRoom(roomID domain.RoomID) bool {
	return m.states.HasRoom(roomID)
}
