package services

import (
	"context"
	"log/slog"
	"meet-relay/domain"
	"meet-relay/domain/chat"
	"meet-relay/errors"
	"meet-relay/mocks"
	"meet-relay/moderation"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatFixture struct {
	service    *ChatService
	repository *mocks.MockMessageRepository
	directory  *mocks.MockDirectory
	now        time.Time
}

func newChatFixture(t *testing.T, censor Censor) chatFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repository := mocks.NewMockMessageRepository(ctrl)
	directory := mocks.NewMockDirectory(ctrl)
	service := NewChatService(log, repository, directory, censor, ChatConfig{
		HistoryLimit:     50,
		MaxContentLength: 2000,
		EditWindow:       15 * time.Minute,
	})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }
	return chatFixture{service: service, repository: repository, directory: directory, now: now}
}

func TestChatService_PostMessage(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	roomID := uuid.New()
	alice := domain.User{ID: uuid.New(), Name: "Alice", Email: "alice@example.com"}

	// Given the message is stored
	var stored domain.Message
	f.repository.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domain.Message) error {
			stored = m
			return nil
		}).Times(1)
	f.directory.EXPECT().GetUser(gomock.Any(), alice.ID).Return(alice, nil)

	// When alice posts
	message, err := f.service.PostMessage(context.Background(), chat.PostMessageCommand{
		Room: roomID, UserID: alice.ID, Content: "  hello everyone ",
	})

	// Then the trimmed content is persisted and enriched with the sender
	req.NoError(err)
	req.Equal("hello everyone", stored.Content)
	req.Equal(roomID, stored.RoomID)
	req.Equal(f.now, stored.CreatedAt)
	req.Equal(stored.ID, message.ID)
	req.Equal("Alice", message.SenderName)
	req.Equal("alice@example.com", message.SenderEmail)
	req.False(message.Edited)
}

func TestChatService_PostMessage_Rejected_Content(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{"empty", "   ", errors.ErrEmptyContent},
		{"too long", strings.Repeat("x", 2001), errors.ErrContentTooLong},
		{"link", "go to https://evil.example", errors.ErrLinksNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newChatFixture(t, nil)
			// Nothing is stored
			f.repository.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).Times(0)

			_, err := f.service.PostMessage(context.Background(), chat.PostMessageCommand{
				Room: uuid.New(), UserID: uuid.New(), Content: tt.content,
			})

			req.ErrorIs(err, tt.err)
		})
	}
}

func TestChatService_PostMessage_Reply(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	roomID := uuid.New()
	alice := domain.User{ID: uuid.New(), Name: "Alice"}
	bob := domain.User{ID: uuid.New(), Name: "Bob"}
	parent := domain.Message{ID: uuid.New(), RoomID: roomID, SenderID: bob.ID, Content: "question?", CreatedAt: f.now.Add(-time.Minute)}

	f.repository.EXPECT().GetMessage(gomock.Any(), roomID, parent.ID).Return(parent, nil)
	f.repository.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).Return(nil)
	f.directory.EXPECT().GetUser(gomock.Any(), alice.ID).Return(alice, nil)
	f.directory.EXPECT().GetUser(gomock.Any(), bob.ID).Return(bob, nil)

	message, err := f.service.PostMessage(context.Background(), chat.PostMessageCommand{
		Room: roomID, UserID: alice.ID, Content: "answer", ReplyTo: &parent.ID,
	})

	req.NoError(err)
	req.Equal(parent.ID, *message.ReplyTo)
	req.Equal("question?", message.RepliedMessageContent)
	req.Equal("Bob", message.RepliedMessageSender)
}

func TestChatService_PostMessage_Reply_To_Unknown_Message(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	roomID, missing := uuid.New(), uuid.New()
	f.repository.EXPECT().GetMessage(gomock.Any(), roomID, missing).Return(domain.Message{}, errors.ErrMessageNotFound)
	f.repository.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.PostMessage(context.Background(), chat.PostMessageCommand{
		Room: roomID, UserID: uuid.New(), Content: "answer", ReplyTo: &missing,
	})

	req.ErrorIs(err, errors.ErrReplyNotFound)
}

func TestChatService_PostMessage_Censored(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	req.NoError(err)
	f := newChatFixture(t, moderator)
	userID := uuid.New()

	var stored domain.Message
	f.repository.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domain.Message) error {
			stored = m
			return nil
		})
	f.directory.EXPECT().GetUser(gomock.Any(), userID).Return(domain.User{ID: userID}, nil)

	_, err = f.service.PostMessage(context.Background(), chat.PostMessageCommand{
		Room: uuid.New(), UserID: userID, Content: "a b4dger here",
	})

	req.NoError(err)
	req.Equal("a ****** here", stored.Content)
}

func TestChatService_EditMessage_Window(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		wantErr bool
	}{
		{"fresh", time.Minute, false},
		{"just before the limit", 15*time.Minute - time.Second, false},
		{"at the limit", 15 * time.Minute, true},
		{"sixteen minutes", 16 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newChatFixture(t, nil)
			author := domain.User{ID: uuid.New(), Name: "Alice"}
			message := domain.Message{ID: uuid.New(), RoomID: uuid.New(), SenderID: author.ID, Content: "helo", CreatedAt: f.now.Add(-tt.age)}
			f.repository.EXPECT().GetMessage(gomock.Any(), message.RoomID, message.ID).Return(message, nil)

			if !tt.wantErr {
				f.repository.EXPECT().UpdateMessage(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, m domain.Message) error {
						req.Equal("hello", m.Content)
						req.True(m.Edited)
						req.Equal(f.now, *m.EditedAt)
						return nil
					})
				f.directory.EXPECT().GetUser(gomock.Any(), author.ID).Return(author, nil)
			}

			edited, err := f.service.EditMessage(context.Background(), chat.EditMessageCommand{
				Room: message.RoomID, UserID: author.ID, MessageID: message.ID, Content: "hello",
			})

			if tt.wantErr {
				req.ErrorIs(err, errors.ErrEditWindowClosed)
				req.EqualError(err, "Messages can only be edited within 15 minutes")
				return
			}
			req.NoError(err)
			req.True(edited.Edited)
			req.Equal("hello", edited.Content)
		})
	}
}

func TestChatService_EditMessage_Not_Author(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	message := domain.Message{ID: uuid.New(), RoomID: uuid.New(), SenderID: uuid.New(), CreatedAt: f.now}
	f.repository.EXPECT().GetMessage(gomock.Any(), message.RoomID, message.ID).Return(message, nil)
	f.repository.EXPECT().UpdateMessage(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.EditMessage(context.Background(), chat.EditMessageCommand{
		Room: message.RoomID, UserID: uuid.New(), MessageID: message.ID, Content: "mine now",
	})

	req.ErrorIs(err, errors.ErrNotAuthor)
}

func TestChatService_DeleteMessage(t *testing.T) {
	author, host, other := uuid.New(), uuid.New(), uuid.New()
	tests := []struct {
		name    string
		userID  domain.UserID
		isHost  bool
		wantErr error
	}{
		{"author", author, false, nil},
		{"host", host, true, nil},
		{"someone else", other, false, errors.ErrDeleteForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newChatFixture(t, nil)
			message := domain.Message{ID: uuid.New(), RoomID: uuid.New(), SenderID: author}
			f.repository.EXPECT().GetMessage(gomock.Any(), message.RoomID, message.ID).Return(message, nil)
			if tt.userID != author {
				f.directory.EXPECT().IsHost(gomock.Any(), message.RoomID, tt.userID).Return(tt.isHost, nil)
			}
			if tt.wantErr == nil {
				f.repository.EXPECT().DeleteMessage(gomock.Any(), message.RoomID, message.ID).Return(nil)
			}

			err := f.service.DeleteMessage(context.Background(), chat.DeleteMessageCommand{
				Room: message.RoomID, UserID: tt.userID, MessageID: message.ID,
			})

			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				return
			}
			req.NoError(err)
		})
	}
}

func TestChatService_GetMessages(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	roomID := uuid.New()
	alice := domain.User{ID: uuid.New(), Name: "Alice"}
	ghost := uuid.New()
	cursor := "next"
	messages := []domain.Message{
		{ID: uuid.New(), RoomID: roomID, SenderID: alice.ID, Content: "two"},
		{ID: uuid.New(), RoomID: roomID, SenderID: ghost, Content: "one"},
		{ID: uuid.New(), RoomID: roomID, SenderID: alice.ID, Content: "zero"},
	}

	f.repository.EXPECT().GetMessages(gomock.Any(), roomID, nil, 50).Return(messages, &cursor, nil)
	// Then every sender is looked up once
	f.directory.EXPECT().GetUser(gomock.Any(), alice.ID).Return(alice, nil).Times(1)
	f.directory.EXPECT().GetUser(gomock.Any(), ghost).Return(domain.User{}, errors.ErrUserNotFound).Times(1)

	page, next, err := f.service.GetMessages(context.Background(), chat.GetMessageCommand{Room: roomID})

	req.NoError(err)
	req.Equal(&cursor, next)
	req.Equal([]string{"two", "one", "zero"}, lo.Map(page, func(m domain.ChatMessage, _ int) string { return m.Content }))
	req.Equal("Unknown user", page[1].SenderName)
}
