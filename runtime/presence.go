package runtime

import "meet-relay/domain"

// PresenceIndex keeps, for one feature, the set of participants subscribed to each room.
// Only the lifecycle mutates it.
type PresenceIndex struct {
	feature domain.Feature
	rooms   *RoomTable[struct{}]
}

func NewPresenceIndex(feature domain.Feature) *PresenceIndex {
	return &PresenceIndex{feature: feature, rooms: NewRoomTable[struct{}]()}
}

func (p *PresenceIndex) Feature() domain.Feature { return p.feature }

func (p *PresenceIndex) Join(roomID domain.RoomID, userID domain.UserID) {
	p.rooms.Put(roomID, userID, struct{}{})
}

// Leave returns false when the participant was not subscribed.
func (p *PresenceIndex) Leave(roomID domain.RoomID, userID domain.UserID) bool {
	_, ok := p.rooms.Delete(roomID, userID)
	return ok
}

func (p *PresenceIndex) Contains(roomID domain.RoomID, userID domain.UserID) bool {
	_, ok := p.rooms.Get(roomID, userID)
	return ok
}

// Members returns a snapshot of the room subscribers.
func (p *PresenceIndex) Members(roomID domain.RoomID) []domain.UserID {
	return p.rooms.Keys(roomID)
}

func (p *PresenceIndex) Count(roomID domain.RoomID) int {
	return p.rooms.Len(roomID)
}

func (p *PresenceIndex) HasRoom(roomID domain.RoomID) bool {
	return p.rooms.HasRoom(roomID)
}

func (p *PresenceIndex) Rooms() int {
	return p.rooms.Rooms()
}
