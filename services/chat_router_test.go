package services

import (
	"context"
	"fmt"
	"log/slog"
	"meet-relay/domain"
	"meet-relay/domain/chat"
	"meet-relay/domain/event"
	"meet-relay/errors"
	"meet-relay/mocks"
	"meet-relay/runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatRouterFixture struct {
	lifecycle *Lifecycle
	hub       *runtime.Hub
	messages  *mocks.MockMessageService
}

func newChatRouterFixture(t *testing.T) *chatRouterFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := runtime.NewHub(log, domain.FeatureChat, time.Second)
	authorizer := mocks.NewMockAuthorizer(ctrl)
	messages := mocks.NewMockMessageService(ctrl)

	authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	messages.EXPECT().GetChatUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, userID domain.UserID) (domain.ChatUser, error) {
			return domain.ChatUser{ID: userID, Name: "user-" + userID.String()[:8]}, nil
		}).AnyTimes()

	return &chatRouterFixture{
		lifecycle: NewLifecycle(log, hub, authorizer, NewChatRouter(log, hub, messages)),
		hub:       hub,
		messages:  messages,
	}
}

func (f *chatRouterFixture) join(t *testing.T, roomID domain.RoomID) (*runtime.Session, *sink) {
	f.messages.EXPECT().GetMessages(gomock.Any(), chat.GetMessageCommand{Room: roomID}).Return(nil, nil, nil)
	ch := &sink{}
	session, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, uuid.New()), ch)
	require.NoError(t, err)
	return session, ch
}

func TestChatRouter_Join_Sends_History_And_Announces(t *testing.T) {
	req := require.New(t)
	f := newChatRouterFixture(t)
	roomID := uuid.New()
	a, chA := f.join(t, roomID)

	// Given a room with some history
	cursor := "older"
	history := []domain.ChatMessage{{ID: uuid.New(), Content: "hi", SenderID: a.UserID}}
	f.messages.EXPECT().GetMessages(gomock.Any(), chat.GetMessageCommand{Room: roomID}).Return(history, &cursor, nil)

	// When B joins
	chB := &sink{}
	b, err := f.lifecycle.Connect(context.Background(), connectRequest(roomID, uuid.New()), chB)
	req.NoError(err)

	// Then B gets the recent page and A is told B joined
	pages := chB.OfType(event.ChatHistoryType)
	req.Len(pages, 1)
	page := pages[0].Payload.(event.ChatHistory)
	req.Equal(history, page.Messages)
	req.Equal(&cursor, page.Cursor)
	joined := chA.OfType(event.ChatUserJoinedType)
	req.Len(joined, 1)
	req.Equal(b.UserID, joined[0].Payload.(event.ChatUserPresence).User.ID)
	req.Empty(chB.OfType(event.ChatUserJoinedType))

	// When B leaves
	f.lifecycle.Disconnect(context.Background(), b, domain.ReasonClosed)

	// Then A is told, B is not
	left := chA.OfType(event.ChatUserLeftType)
	req.Len(left, 1)
	req.Equal(b.UserID, left[0].Payload.(event.ChatUserPresence).User.ID)
	req.Equal([]domain.UserID{a.UserID}, f.hub.Presence.Members(roomID))
}

func TestChatRouter_Message_Is_Broadcast_To_Everyone(t *testing.T) {
	req := require.New(t)
	f := newChatRouterFixture(t)
	roomID := uuid.New()
	a, chA := f.join(t, roomID)
	_, chB := f.join(t, roomID)
	replyTo := uuid.New()
	posted := domain.ChatMessage{ID: uuid.New(), Content: "hello", SenderID: a.UserID, ReplyTo: &replyTo}

	f.messages.EXPECT().PostMessage(gomock.Any(), chat.PostMessageCommand{
		Room: roomID, UserID: a.UserID, Content: "hello", ReplyTo: &replyTo,
	}).Return(posted, nil)

	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{
		"type": "chat_message", "content": "hello", "replyTo": replyTo.String(),
	}))

	for _, ch := range []*sink{chA, chB} {
		messages := ch.OfType(event.ChatMessageType)
		req.Len(messages, 1)
		req.Equal(event.ChatMessagePosted{Message: posted, RoomID: roomID}, messages[0].Payload)
	}
}

func TestChatRouter_Rejected_Message_Only_Answers_Sender(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		reply string
	}{
		{"links", errors.ErrLinksNotAllowed, "Links are not allowed in messages"},
		{"too long", fmt.Errorf("%w (max %d characters)", errors.ErrContentTooLong, 2000), "Message too long (max 2000 characters)"},
		{"unknown reply", errors.ErrReplyNotFound, "Replied message not found"},
		{"storage down", fmt.Errorf("store message: %w", fmt.Errorf("badger closed")), "Error processing message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newChatRouterFixture(t)
			roomID := uuid.New()
			a, chA := f.join(t, roomID)
			_, chB := f.join(t, roomID)
			chB.Reset()
			f.messages.EXPECT().PostMessage(gomock.Any(), gomock.Any()).Return(domain.ChatMessage{}, tt.err)

			f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{"type": "chat_message", "content": "whatever"}))

			req.Equal([]string{tt.reply}, chA.Errors())
			req.Empty(chA.OfType(event.ChatMessageType))
			req.Empty(chB.Events())
		})
	}
}

func TestChatRouter_Typing_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	f := newChatRouterFixture(t)
	roomID := uuid.New()
	a, chA := f.join(t, roomID)
	_, chB := f.join(t, roomID)
	_, chC := f.join(t, roomID)
	chA.Reset()

	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{"type": "chat_typing_start"}))
	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{"type": "chat_typing_stop"}))

	req.Empty(chA.Events())
	for _, ch := range []*sink{chB, chC} {
		typing := ch.OfType(event.ChatTypingType)
		req.Len(typing, 2)
		start := typing[0].Payload.(event.ChatTyping)
		req.Equal(a.UserID, start.User.ID)
		req.True(start.Typing)
		req.False(typing[1].Payload.(event.ChatTyping).Typing)
	}
}

func TestChatRouter_History_Goes_To_Requester(t *testing.T) {
	req := require.New(t)
	f := newChatRouterFixture(t)
	roomID := uuid.New()
	a, chA := f.join(t, roomID)
	_, chB := f.join(t, roomID)
	chA.Reset()
	chB.Reset()
	cursor := "abc"
	page := []domain.ChatMessage{{ID: uuid.New(), Content: "old"}}

	f.messages.EXPECT().GetMessages(gomock.Any(), chat.GetMessageCommand{Room: roomID, Cursor: &cursor}).Return(page, nil, nil)

	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{"type": "chat_get_history", "cursor": cursor}))

	histories := chA.OfType(event.ChatHistoryType)
	req.Len(histories, 1)
	history := histories[0].Payload.(event.ChatHistory)
	req.Equal(page, history.Messages)
	req.Nil(history.Cursor)
	req.Empty(chB.Events())
}

func TestChatRouter_Edit_And_Delete(t *testing.T) {
	req := require.New(t)
	f := newChatRouterFixture(t)
	roomID := uuid.New()
	a, chA := f.join(t, roomID)
	host, chHost := f.join(t, roomID)
	messageID := uuid.New()
	edited := domain.ChatMessage{ID: messageID, Content: "fixed", Edited: true, SenderID: a.UserID}

	// When the author edits
	f.messages.EXPECT().EditMessage(gomock.Any(), chat.EditMessageCommand{
		Room: roomID, UserID: a.UserID, MessageID: messageID, Content: "fixed",
	}).Return(edited, nil)
	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{
		"type": "chat_edit_message", "messageId": messageID.String(), "content": "fixed",
	}))

	// And the host deletes
	f.messages.EXPECT().DeleteMessage(gomock.Any(), chat.DeleteMessageCommand{
		Room: roomID, UserID: host.UserID, MessageID: messageID,
	}).Return(nil)
	f.lifecycle.Receive(context.Background(), host, frame(t, map[string]any{
		"type": "chat_delete_message", "messageId": messageID.String(),
	}))

	// Then everyone sees both
	for _, ch := range []*sink{chA, chHost} {
		editedEvents := ch.OfType(event.ChatMessageEditedType)
		req.Len(editedEvents, 1)
		req.Equal(edited, editedEvents[0].Payload.(event.ChatMessagePosted).Message)
		deleted := ch.OfType(event.ChatMessageDeletedType)
		req.Len(deleted, 1)
		req.Equal(event.ChatMessageDeleted{MessageID: messageID, RoomID: roomID, DeletedBy: host.UserID}, deleted[0].Payload)
	}
}

func TestChatRouter_Edit_Rejections(t *testing.T) {
	req := require.New(t)
	f := newChatRouterFixture(t)
	roomID := uuid.New()
	a, chA := f.join(t, roomID)
	_, chB := f.join(t, roomID)
	chB.Reset()

	// Malformed id never reaches the service
	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{
		"type": "chat_edit_message", "messageId": "42", "content": "x",
	}))

	f.messages.EXPECT().EditMessage(gomock.Any(), gomock.Any()).
		Return(domain.ChatMessage{}, fmt.Errorf("%w %d minutes", errors.ErrEditWindowClosed, 15))
	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{
		"type": "chat_edit_message", "messageId": uuid.NewString(), "content": "x",
	}))

	f.messages.EXPECT().DeleteMessage(gomock.Any(), gomock.Any()).Return(errors.ErrDeleteForbidden)
	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{
		"type": "chat_delete_message", "messageId": uuid.NewString(),
	}))

	replies := chA.Errors()
	req.Len(replies, 3)
	req.Contains(replies[0], "Invalid message payload")
	req.Equal("Messages can only be edited within 15 minutes", replies[1])
	req.Equal("You can only delete your own messages", replies[2])
	req.Empty(chB.Events())
}

func TestChatRouter_Mark_Read_Is_A_No_Op(t *testing.T) {
	req := require.New(t)
	f := newChatRouterFixture(t)
	roomID := uuid.New()
	a, chA := f.join(t, roomID)
	_, chB := f.join(t, roomID)
	chA.Reset()
	chB.Reset()

	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{"type": "chat_mark_read", "messageId": uuid.NewString()}))
	// A malformed receipt is dropped without a reply
	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{"type": "chat_mark_read", "messageId": 42}))
	f.lifecycle.Receive(context.Background(), a, frame(t, map[string]any{"type": "offer"}))

	req.Equal([]string{"Unknown message type: offer"}, chA.Errors())
	req.Empty(chB.Events())
}
