// Package domain contains core concepts of the relay.
// This file defines users, participants and the roster view sent to clients.
// No runtime, network, or transport logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserID = uuid.UUID

type Role string

const (
	RoleHost        Role = "HOST"
	RoleParticipant Role = "PARTICIPANT"
	RoleGuest       Role = "GUEST"
)

type ParticipantStatus string

const (
	StatusJoined ParticipantStatus = "JOINED"
	StatusLeft   ParticipantStatus = "LEFT"
	StatusKicked ParticipantStatus = "KICKED"
	StatusBanned ParticipantStatus = "BANNED"
)

type User struct {
	ID             UserID
	Name           string
	Email          string
	Avatar         string
	Guest          bool
	GuestExpiresAt *time.Time
}

// GuestExpired reports whether a guest account can no longer be used at the given instant.
// Regular users never expire.
func (u User) GuestExpired(now time.Time) bool {
	if !u.Guest || u.GuestExpiresAt == nil {
		return false
	}
	return now.After(*u.GuestExpiresAt)
}

// Participant is the persisted membership of a user in a room.
type Participant struct {
	RoomID       RoomID
	UserID       UserID
	Role         Role
	Status       ParticipantStatus
	LeftAt       *time.Time
	JoinedAt     time.Time
	LastActiveAt time.Time
	AudioEnabled bool
	VideoEnabled bool
}

// IsActive is true while the participant is joined and has not left.
func (p Participant) IsActive() bool {
	return p.Status == StatusJoined && p.LeftAt == nil
}

// ParticipantInfo joins a participant with its user profile.
type ParticipantInfo struct {
	UserID       UserID
	Name         string
	Email        string
	Role         Role
	Guest        bool
	JoinedAt     time.Time
	LastActiveAt time.Time
}

// ActiveParticipant is one roster entry: persisted data annotated with live media flags.
type ActiveParticipant struct {
	UserID        UserID    `json:"userId"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	Guest         bool      `json:"isGuest"`
	JoinedAt      time.Time `json:"joinedAt"`
	LastActiveAt  time.Time `json:"lastActiveAt"`
	AudioEnabled  bool      `json:"audioEnabled"`
	VideoEnabled  bool      `json:"videoEnabled"`
	ScreenSharing bool      `json:"screenSharing"`
}

func NewActiveParticipant(info ParticipantInfo, state MediaState) ActiveParticipant {
	return ActiveParticipant{
		UserID:        info.UserID,
		Name:          info.Name,
		Email:         info.Email,
		Role:          info.Role,
		Guest:         info.Guest,
		JoinedAt:      info.JoinedAt,
		LastActiveAt:  info.LastActiveAt,
		AudioEnabled:  state.AudioEnabled,
		VideoEnabled:  state.VideoEnabled,
		ScreenSharing: state.ScreenSharing,
	}
}
