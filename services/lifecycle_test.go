package services

import (
	"context"
	"fmt"
	"log/slog"
	"meet-relay/auth"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/domain/event"
	"meet-relay/errors"
	"meet-relay/mocks"
	"meet-relay/runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// handlerSpy counts the hooks and lets a test decide what Handle does.
type handlerSpy struct {
	joined  atomic.Int32
	leaving atomic.Int32
	reasons sync.Map // user -> reason
	handle  func(env event.Envelope) error
}

func (h *handlerSpy) Joined(context.Context, *runtime.Session) error {
	h.joined.Add(1)
	return nil
}

func (h *handlerSpy) Leaving(_ context.Context, s *runtime.Session, reason domain.DisconnectReason) {
	h.leaving.Add(1)
	h.reasons.Store(s.UserID, reason)
}

func (h *handlerSpy) Handle(_ context.Context, _ *runtime.Session, env event.Envelope) error {
	if h.handle == nil {
		return nil
	}
	return h.handle(env)
}

type lifecycleFixture struct {
	lifecycle  *Lifecycle
	hub        *runtime.Hub
	authorizer *mocks.MockAuthorizer
	handler    *handlerSpy
}

func newLifecycleFixture(t *testing.T) lifecycleFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := runtime.NewHub(log, domain.FeatureSignaling, time.Second)
	authorizer := mocks.NewMockAuthorizer(ctrl)
	handler := &handlerSpy{}
	return lifecycleFixture{
		lifecycle:  NewLifecycle(log, hub, authorizer, handler),
		hub:        hub,
		authorizer: authorizer,
		handler:    handler,
	}
}

func connectRequest(roomID, userID uuid.UUID) auth.ConnectRequest {
	return auth.ConnectRequest{Token: "token", RoomID: roomID.String(), UserID: userID.String()}
}

func TestLifecycle_Connect_Rejects_Bad_Parameters(t *testing.T) {
	tests := []struct {
		name string
		req  auth.ConnectRequest
	}{
		{"missing token", auth.ConnectRequest{RoomID: uuid.NewString(), UserID: uuid.NewString()}},
		{"missing room", auth.ConnectRequest{Token: "token", UserID: uuid.NewString()}},
		{"malformed room", auth.ConnectRequest{Token: "token", RoomID: "room-1", UserID: uuid.NewString()}},
		{"malformed user", auth.ConnectRequest{Token: "token", RoomID: uuid.NewString(), UserID: "42"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newLifecycleFixture(t)
			ch := &sink{}
			// Authorization is never reached
			f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			session, err := f.lifecycle.Connect(context.Background(), tt.req, ch)

			req.ErrorIs(err, errors.ErrInvalidParams)
			req.Nil(session)
			closed, code := ch.Closed()
			req.True(closed)
			req.Equal(contract.CloseBadData, code)
			req.Zero(f.hub.Registry.Len())
			req.Zero(f.handler.joined.Load())
		})
	}
}

func TestLifecycle_Connect_Rejects_Unauthorized(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	roomID, userID := uuid.New(), uuid.New()
	ch := &sink{}

	// Given the participant is not allowed in the room
	f.authorizer.EXPECT().Authorize(gomock.Any(), "token", roomID, userID).Return(errors.ErrAccessDenied)

	// When it connects
	session, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, userID), ch)

	// Then it gets the reason and the connection is closed as not acceptable
	req.ErrorIs(err, errors.ErrAccessDenied)
	req.Nil(session)
	req.Equal([]string{"Failed to join room: access to room denied"}, ch.Errors())
	closed, code := ch.Closed()
	req.True(closed)
	req.Equal(contract.CloseNotAcceptable, code)
	req.False(f.hub.Presence.HasRoom(roomID))
}

func TestLifecycle_Connect_Registers_Session(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	roomID, userID := uuid.New(), uuid.New()
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), roomID, userID).Return(nil)

	session, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, userID), &sink{})

	req.NoError(err)
	req.True(f.hub.Registry.Owns(session))
	req.Equal([]domain.UserID{userID}, f.hub.Presence.Members(roomID))
	req.EqualValues(1, f.handler.joined.Load())
}

func TestLifecycle_Disconnect_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	roomID, userID := uuid.New(), uuid.New()
	ch := &sink{}
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	session, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, userID), ch)
	req.NoError(err)

	// When three paths race to disconnect the same session
	var wg sync.WaitGroup
	for _, reason := range []domain.DisconnectReason{domain.ReasonLeave, domain.ReasonClosed, domain.ReasonError} {
		wg.Add(1)
		go func(reason domain.DisconnectReason) {
			defer wg.Done()
			f.lifecycle.Disconnect(context.Background(), session, reason)
		}(reason)
	}
	wg.Wait()
	f.lifecycle.Disconnect(context.Background(), session, domain.ReasonClosed)

	// Then cleanup ran exactly once
	req.EqualValues(1, f.handler.leaving.Load())
	req.False(f.hub.Presence.HasRoom(roomID))
	req.Zero(f.hub.Registry.Len())
}

func TestLifecycle_Disconnect_Keeps_Channel_Open_On_Leave(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	ch := &sink{}
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	session, err := f.lifecycle.Connect(context.Background(), connectRequest(uuid.New(), uuid.New()), ch)
	req.NoError(err)

	f.lifecycle.Disconnect(context.Background(), session, domain.ReasonLeave)

	closed, _ := ch.Closed()
	req.False(closed)

	// And a later close event is a no-op
	f.lifecycle.Disconnect(context.Background(), session, domain.ReasonClosed)
	closed, _ = ch.Closed()
	req.False(closed)
	req.EqualValues(1, f.handler.leaving.Load())
}

func TestLifecycle_Connect_Supersedes_Same_Room(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	roomID, userID := uuid.New(), uuid.New()
	first, second := &sink{}, &sink{}
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	// Given a connected participant
	old, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, userID), first)
	req.NoError(err)

	// When it connects again to the same room
	current, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, userID), second)
	req.NoError(err)

	// Then the old channel is closed without any room teardown
	closed, code := first.Closed()
	req.True(closed)
	req.Equal(contract.CloseNormal, code)
	req.True(old.Left())
	req.Zero(f.handler.leaving.Load())
	req.True(f.hub.Registry.Owns(current))
	req.Equal([]domain.UserID{userID}, f.hub.Presence.Members(roomID))

	// And the late close of the old socket does not evict the new one
	f.lifecycle.Disconnect(context.Background(), old, domain.ReasonClosed)
	req.True(f.hub.Registry.Owns(current))
	req.True(f.hub.Presence.Contains(roomID, userID))
}

func TestLifecycle_Connect_Supersedes_Other_Room(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	userID, roomA, roomB := uuid.New(), uuid.New(), uuid.New()
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := f.lifecycle.Connect(context.Background(), connectRequest(roomA, userID), &sink{})
	req.NoError(err)
	current, err := f.lifecycle.Connect(context.Background(), connectRequest(roomB, userID), &sink{})
	req.NoError(err)

	// The previous room is torn down as for a regular disconnect
	req.EqualValues(1, f.handler.leaving.Load())
	reason, _ := f.handler.reasons.Load(userID)
	req.Equal(domain.ReasonReplaced, reason)
	req.False(f.hub.Presence.HasRoom(roomA))
	req.True(f.hub.Presence.Contains(roomB, userID))
	req.True(f.hub.Registry.Owns(current))
}

func TestLifecycle_Receive_Error_Replies(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		result error
		reply  string
	}{
		{"malformed frame", `{"type":`, nil, "Invalid message payload"},
		{"user facing error", `{"type":"x"}`, fmt.Errorf("%w: targetUserId is required", errors.ErrInvalidPayload), "Invalid message payload: targetUserId is required"},
		{"unknown type", `{"type":"x"}`, fmt.Errorf("%w: x", errors.ErrUnknownType), "Unknown message type: x"},
		{"internal error", `{"type":"x"}`, fmt.Errorf("badger: disk full"), "Error processing message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newLifecycleFixture(t)
			ch := &sink{}
			f.handler.handle = func(event.Envelope) error { return tt.result }
			f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			session, err := f.lifecycle.Connect(context.Background(), connectRequest(uuid.New(), uuid.New()), ch)
			req.NoError(err)

			f.lifecycle.Receive(context.Background(), session, []byte(tt.raw))

			req.Equal([]string{tt.reply}, ch.Errors())
			closed, _ := ch.Closed()
			req.False(closed)
			req.False(session.Left())
		})
	}
}

func TestLifecycle_Receive_Recovers_Panic(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	ch := &sink{}
	f.handler.handle = func(event.Envelope) error { panic("boom") }
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	session, err := f.lifecycle.Connect(context.Background(), connectRequest(uuid.New(), uuid.New()), ch)
	req.NoError(err)

	req.NotPanics(func() {
		f.lifecycle.Receive(context.Background(), session, []byte(`{"type":"offer"}`))
	})

	req.Equal([]string{"Error processing message"}, ch.Errors())
	req.True(f.hub.Registry.Owns(session))
}

func TestLifecycle_Receive_Leave_Then_No_Active_Room(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	ch := &sink{}
	f.handler.handle = func(event.Envelope) error { return errors.ErrLeaveRequested }
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	session, err := f.lifecycle.Connect(context.Background(), connectRequest(uuid.New(), uuid.New()), ch)
	req.NoError(err)

	// When the participant leaves explicitly
	f.lifecycle.Receive(context.Background(), session, []byte(`{"type":"peer_left"}`))
	req.True(session.Left())
	req.Empty(ch.Errors())

	// Then its next message has no room to go to
	f.lifecycle.Receive(context.Background(), session, []byte(`{"type":"get_participants"}`))
	req.Equal([]string{"No active room"}, ch.Errors())
}

func TestLifecycle_Failed_Send_Disconnects_Recipient(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	roomID := uuid.New()
	alive, dead := &sink{}, &sink{}
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	_, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, uuid.New()), alive)
	req.NoError(err)
	deadSession, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, uuid.New()), dead)
	req.NoError(err)

	// Given a socket that died without a close event
	req.NoError(dead.Close(contract.CloseNormal, "gone"))

	// When the room is broadcast to
	delivered := f.hub.Broadcast(context.Background(), roomID, event.New(event.PeerLeftType, event.PeerLeft{}))

	// Then the live member still gets it and the dead one is cleaned up
	req.Equal(1, delivered)
	req.True(deadSession.Left())
	req.False(f.hub.Presence.Contains(roomID, deadSession.UserID))
	reason, _ := f.handler.reasons.Load(deadSession.UserID)
	req.Equal(domain.ReasonSendFailed, reason)
}

func TestLifecycle_Shutdown(t *testing.T) {
	req := require.New(t)
	f := newLifecycleFixture(t)
	channels := []*sink{{}, {}, {}}
	f.authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(len(channels))
	for _, ch := range channels {
		_, err := f.lifecycle.Connect(context.Background(), connectRequest(uuid.New(), uuid.New()), ch)
		req.NoError(err)
	}

	f.lifecycle.Shutdown(context.Background())

	req.Zero(f.hub.Registry.Len())
	req.Zero(f.hub.Presence.Rooms())
	for _, ch := range channels {
		closed, code := ch.Closed()
		req.True(closed)
		req.Equal(contract.CloseNormal, code)
	}
}
