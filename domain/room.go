package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomID = uuid.UUID

type RoomStatus string

const (
	RoomScheduled RoomStatus = "SCHEDULED"
	RoomActive    RoomStatus = "ACTIVE"
	RoomEnded     RoomStatus = "ENDED"
)

// Room is the persisted view of a meeting room.
type Room struct {
	ID              RoomID
	Title           string
	OwnerID         UserID
	Status          RoomStatus
	Public          bool
	MaxParticipants int
	CreatedAt       time.Time
}

func (r Room) IsActive() bool {
	return r.Status == RoomActive
}

func (r Room) IsOwner(userID UserID) bool {
	return r.OwnerID == userID
}
