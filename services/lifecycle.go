package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"meet-relay/auth"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/domain/event"
	"meet-relay/errors"
	"meet-relay/runtime"
)

// FeatureHandler is the feature specific part of a connection lifecycle.
type FeatureHandler interface {
	// Joined runs once the session is registered and subscribed to its room.
	Joined(ctx context.Context, s *runtime.Session) error
	// Leaving runs before the session is unsubscribed, while the room can still be notified.
	Leaving(ctx context.Context, s *runtime.Session, reason domain.DisconnectReason)
	// Handle dispatches one inbound message. ErrLeaveRequested asks for an explicit leave.
	Handle(ctx context.Context, s *runtime.Session, env event.Envelope) error
}

// Restorer is implemented by handlers keeping per-participant room state that the
// cleanup of a superseded session may have removed.
type Restorer interface {
	Restore(ctx context.Context, s *runtime.Session)
}

// Lifecycle orchestrates connect, message handling and disconnect for one feature.
type Lifecycle struct {
	log        *slog.Logger
	hub        *runtime.Hub
	authorizer contract.Authorizer
	handler    FeatureHandler
}

func NewLifecycle(log *slog.Logger, hub *runtime.Hub, authorizer contract.Authorizer, handler FeatureHandler) *Lifecycle {
	l := &Lifecycle{
		log:        log.With("feature", hub.Feature),
		hub:        hub,
		authorizer: authorizer,
		handler:    handler,
	}
	// A recipient that cannot be written to is gone
	hub.OnFailure(func(ctx context.Context, s *runtime.Session, err error) {
		l.Disconnect(ctx, s, domain.ReasonSendFailed)
	})
	return l
}

func (l *Lifecycle) Feature() domain.Feature {
	return l.hub.Feature
}

// Connect validates and authorizes a new connection, then registers it.
// A rejected connection is closed here and the error is returned for logging only.
func (l *Lifecycle) Connect(ctx context.Context, req auth.ConnectRequest, ch contract.Channel) (*runtime.Session, error) {
	roomID, userID, err := auth.ValidateConnect(req)
	if err != nil {
		l.log.Warn("Connection rejected", "remote", ch.RemoteAddr(), "error", err)
		l.closeChannel(ch, contract.CloseBadData, "Invalid parameters")
		return nil, err
	}

	if err := l.authorizer.Authorize(ctx, req.Token, roomID, userID); err != nil {
		reason := errors.RejectReason(err)
		l.log.Warn("Connection not authorized", "room_id", roomID, "user_id", userID, "error", err)
		if sendErr := ch.Consume(ctx, event.NewError(reason)); sendErr != nil {
			l.log.Debug("Rejection not delivered", "user_id", userID, "error", sendErr)
		}
		l.closeChannel(ch, contract.CloseNotAcceptable, reason)
		return nil, err
	}

	session := runtime.NewSession(userID, roomID, l.hub.Feature, ch)
	if previous := l.hub.Registry.Put(session); previous != nil {
		l.log.Info("Superseding previous connection",
			"user_id", userID, "room_id", roomID, "previous_room_id", previous.RoomID)
		l.Disconnect(ctx, previous, domain.ReasonReplaced)
	}
	l.hub.Presence.Join(roomID, userID)

	if err := l.handler.Joined(ctx, session); err != nil {
		// The connection is live, the newcomer only misses part of its snapshot
		l.log.Warn("Join snapshot incomplete", "room_id", roomID, "user_id", userID, "error", err)
	}
	if session.Left() {
		// The newcomer could not be written to while joining and is already cleaned up
		l.log.Info("Participant dropped while joining", "room_id", roomID, "user_id", userID)
		return nil, errors.ErrSessionEnded
	}
	l.log.Info("Participant connected",
		"room_id", roomID, "user_id", userID, "members", l.hub.Presence.Count(roomID))
	return session, nil
}

// Disconnect tears the session down. Only the first call for a session does anything,
// whichever path it comes from (leave message, close, transport error or failed send).
func (l *Lifecycle) Disconnect(ctx context.Context, s *runtime.Session, reason domain.DisconnectReason) {
	if !s.MarkLeaving() {
		return
	}

	// A newer connection of the same participant to the same room keeps the room state
	superseded := l.supersededInRoom(s)
	if !superseded {
		l.handler.Leaving(ctx, s, reason)
		l.hub.Presence.Leave(s.RoomID, s.UserID)
	}
	l.hub.Registry.Remove(s)
	l.restoreSuperseding(ctx, s)

	if !reason.Explicit() {
		l.closeChannel(s.Channel, contract.CloseNormal, string(reason))
	}
	l.log.Info("Participant disconnected",
		"room_id", s.RoomID, "user_id", s.UserID, "reason", reason, "superseded", superseded)
}

// Receive handles one inbound frame of an established session.
// Nothing that happens here closes the connection.
func (l *Lifecycle) Receive(ctx context.Context, s *runtime.Session, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Panic while handling message",
				"room_id", s.RoomID, "user_id", s.UserID, "panic", r)
			l.reply(ctx, s, errors.ErrGenericReply.Error())
		}
	}()

	if s.Left() {
		l.reply(ctx, s, errors.ErrNoActiveRoom.Error())
		return
	}
	env, err := event.Decode(raw)
	if err != nil {
		l.log.Debug("Undecodable message", "user_id", s.UserID, "error", err)
		l.reply(ctx, s, errors.ErrInvalidPayload.Error())
		return
	}

	err = l.handler.Handle(ctx, s, env)
	switch {
	case err == nil:
	case stderrors.Is(err, errors.ErrLeaveRequested):
		l.Disconnect(ctx, s, domain.ReasonLeave)
	default:
		l.log.Debug("Message rejected",
			"room_id", s.RoomID, "user_id", s.UserID, "type", env.Type, "error", err)
		l.reply(ctx, s, errors.MapToReply(err))
	}
}

// Shutdown disconnects every live session.
func (l *Lifecycle) Shutdown(ctx context.Context) {
	sessions := l.hub.Registry.Sessions()
	for _, s := range sessions {
		l.Disconnect(ctx, s, domain.ReasonShutdown)
	}
	l.log.Info("Lifecycle stopped", "sessions", len(sessions))
}

func (l *Lifecycle) reply(ctx context.Context, s *runtime.Session, message string) {
	l.hub.Deliver(ctx, s, event.NewError(message))
}

func (l *Lifecycle) supersededInRoom(s *runtime.Session) bool {
	current, ok := l.hub.Registry.Get(s.UserID)
	return ok && current != s && current.RoomID == s.RoomID
}

// restoreSuperseding puts back the room state of a newer session whose join raced
// with the cleanup of s.
func (l *Lifecycle) restoreSuperseding(ctx context.Context, s *runtime.Session) {
	current, ok := l.hub.Registry.Get(s.UserID)
	if !ok || current == s || current.RoomID != s.RoomID || current.Left() {
		return
	}
	if !l.hub.Presence.Contains(current.RoomID, current.UserID) {
		l.hub.Presence.Join(current.RoomID, current.UserID)
	}
	if restorer, ok := l.handler.(Restorer); ok {
		restorer.Restore(ctx, current)
	}
}

func (l *Lifecycle) closeChannel(ch contract.Channel, code contract.CloseCode, reason string) {
	if err := ch.Close(code, reason); err != nil {
		l.log.Debug("Close failed", "remote", ch.RemoteAddr(), "code", code, "error", err)
	}
}
