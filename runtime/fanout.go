package runtime

import (
	"context"
	"log/slog"
	"meet-relay/domain"
	"meet-relay/domain/event"
	"time"
)

// FailureHandler is told about a recipient whose send failed.
type FailureHandler func(ctx context.Context, s *Session, err error)

// Fanout delivers events to the live sessions of a feature.
//
// It provides best-effort delivery with no guarantees regarding ordering across
// participants, durability, or retries. Each recipient is attempted on its own
// with a bounded context: one failing recipient is reported and the others
// still receive the event.
type Fanout struct {
	log         *slog.Logger
	registry    *Registry
	presence    *PresenceIndex
	sinkTimeout time.Duration
	onFailure   FailureHandler
}

func NewFanout(log *slog.Logger, registry *Registry, presence *PresenceIndex, sinkTimeout time.Duration) *Fanout {
	return &Fanout{log: log, registry: registry, presence: presence, sinkTimeout: sinkTimeout}
}

// OnFailure installs the handler called for every failed recipient.
func (f *Fanout) OnFailure(fn FailureHandler) {
	f.onFailure = fn
}

// SendTo delivers to the live session of a participant. It returns false when the
// participant has no session.
func (f *Fanout) SendTo(ctx context.Context, userID domain.UserID, evt event.Event) bool {
	s, ok := f.registry.Get(userID)
	if !ok {
		return false
	}
	return f.Deliver(ctx, s, evt)
}

// Broadcast delivers to every subscriber of the room, sender included.
func (f *Fanout) Broadcast(ctx context.Context, roomID domain.RoomID, evt event.Event) int {
	return f.fanout(ctx, roomID, nil, evt)
}

// BroadcastExcept delivers to every subscriber of the room but one.
func (f *Fanout) BroadcastExcept(ctx context.Context, roomID domain.RoomID, except domain.UserID, evt event.Event) int {
	return f.fanout(ctx, roomID, &except, evt)
}

// Deliver sends to one session and reports the failure when it cannot.
func (f *Fanout) Deliver(ctx context.Context, s *Session, evt event.Event) bool {
	sinkCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
	defer cancel()

	if err := s.Channel.Consume(sinkCtx, evt); err != nil {
		f.log.Debug("Delivery failed",
			"feature", s.Feature, "room_id", s.RoomID, "user_id", s.UserID,
			"type", evt.Type, "error", err)
		if f.onFailure != nil {
			f.onFailure(ctx, s, err)
		}
		return false
	}
	return true
}

func (f *Fanout) fanout(ctx context.Context, roomID domain.RoomID, except *domain.UserID, evt event.Event) int {
	// Snapshot first: no lock is held while sending.
	members := f.presence.Members(roomID)
	delivered := 0
	for _, userID := range members {
		if except != nil && userID == *except {
			continue
		}
		s, ok := f.registry.Get(userID)
		if !ok || s.RoomID != roomID || s.Left() {
			continue
		}
		if f.Deliver(ctx, s, evt) {
			delivered++
		}
	}
	return delivered
}
