package runtime

import (
	"meet-relay/contract"
	"meet-relay/domain"
	"sync/atomic"
	"time"
)

// Session is one live connection of a participant to a room for one feature.
type Session struct {
	UserID      domain.UserID
	RoomID      domain.RoomID
	Feature     domain.Feature
	Channel     contract.Channel
	ConnectedAt time.Time
	leaving     atomic.Bool
}

func NewSession(userID domain.UserID, roomID domain.RoomID, feature domain.Feature, ch contract.Channel) *Session {
	return &Session{
		UserID:      userID,
		RoomID:      roomID,
		Feature:     feature,
		Channel:     ch,
		ConnectedAt: time.Now().UTC(),
	}
}

// MarkLeaving flips the session into its terminal state.
// Only the first caller gets true; every cleanup path goes through it.
func (s *Session) MarkLeaving() bool {
	return s.leaving.CompareAndSwap(false, true)
}

func (s *Session) Left() bool {
	return s.leaving.Load()
}
