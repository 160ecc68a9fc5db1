package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"meet-relay/auth"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/domain/chat"
	"meet-relay/errors"
	"time"

	"github.com/google/uuid"
)

var _ contract.MessageService = (*ChatService)(nil)

// Censor masks forbidden words. The moderation package provides one.
type Censor interface {
	Censor(content string) (string, []string)
}

type ChatConfig struct {
	HistoryLimit     int
	MaxContentLength int
	EditWindow       time.Duration
}

// ChatService applies the chat content rules and persists messages.
type ChatService struct {
	log        *slog.Logger
	repository contract.MessageRepository
	directory  contract.Directory
	censor     Censor
	config     ChatConfig
	now        func() time.Time
}

// NewChatService builds the service. censor may be nil to disable moderation.
func NewChatService(log *slog.Logger, repository contract.MessageRepository, directory contract.Directory, censor Censor, config ChatConfig) *ChatService {
	return &ChatService{
		log:        log,
		repository: repository,
		directory:  directory,
		censor:     censor,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ChatService) PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (domain.ChatMessage, error) {
	content, err := s.sanitize(cmd.Content)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	var parent *domain.Message
	if cmd.ReplyTo != nil {
		p, err := s.repository.GetMessage(ctx, cmd.Room, *cmd.ReplyTo)
		if stderrors.Is(err, errors.ErrMessageNotFound) {
			return domain.ChatMessage{}, errors.ErrReplyNotFound
		}
		if err != nil {
			return domain.ChatMessage{}, err
		}
		parent = &p
	}

	createdAt := cmd.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	message := domain.Message{
		ID:        uuid.New(),
		RoomID:    cmd.Room,
		SenderID:  cmd.UserID,
		Content:   content,
		Type:      domain.MessageText,
		CreatedAt: createdAt,
		ReplyTo:   cmd.ReplyTo,
	}
	if err := s.repository.StoreMessage(ctx, message); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("store message: %w", err)
	}

	return s.enrich(ctx, message, parent, newUserCache(s.directory))
}

// EditMessage lets the author rewrite a message while it is younger than the edit window.
func (s *ChatService) EditMessage(ctx context.Context, cmd chat.EditMessageCommand) (domain.ChatMessage, error) {
	message, err := s.repository.GetMessage(ctx, cmd.Room, cmd.MessageID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if message.SenderID != cmd.UserID {
		return domain.ChatMessage{}, errors.ErrNotAuthor
	}

	editedAt := cmd.EditedAt
	if editedAt.IsZero() {
		editedAt = s.now()
	}
	if message.Age(editedAt) >= s.config.EditWindow {
		return domain.ChatMessage{}, fmt.Errorf("%w %d minutes", errors.ErrEditWindowClosed, int(s.config.EditWindow.Minutes()))
	}

	content, err := s.sanitize(cmd.Content)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	message.Content = content
	message.Edited = true
	message.EditedAt = &editedAt

	if err := s.repository.UpdateMessage(ctx, message); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("update message: %w", err)
	}
	users := newUserCache(s.directory)
	return s.enrich(ctx, message, s.parentOf(ctx, message), users)
}

// DeleteMessage is allowed to the author and to the hosts of the room.
func (s *ChatService) DeleteMessage(ctx context.Context, cmd chat.DeleteMessageCommand) error {
	message, err := s.repository.GetMessage(ctx, cmd.Room, cmd.MessageID)
	if err != nil {
		return err
	}
	if message.SenderID != cmd.UserID {
		isHost, err := s.directory.IsHost(ctx, cmd.Room, cmd.UserID)
		if err != nil {
			return fmt.Errorf("host lookup: %w", err)
		}
		if !isHost {
			return errors.ErrDeleteForbidden
		}
	}
	return s.repository.DeleteMessage(ctx, cmd.Room, cmd.MessageID)
}

// GetMessages returns one page of history, most recent first.
func (s *ChatService) GetMessages(ctx context.Context, cmd chat.GetMessageCommand) ([]domain.ChatMessage, *string, error) {
	messages, cursor, err := s.repository.GetMessages(ctx, cmd.Room, cmd.Cursor, s.config.HistoryLimit)
	if err != nil {
		return nil, nil, err
	}

	users := newUserCache(s.directory)
	out := make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		enriched, err := s.enrich(ctx, m, s.parentOf(ctx, m), users)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, enriched)
	}
	return out, cursor, nil
}

func (s *ChatService) GetChatUser(ctx context.Context, userID domain.UserID) (domain.ChatUser, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return domain.ChatUser{}, err
	}
	return domain.NewChatUser(user), nil
}

func (s *ChatService) sanitize(raw string) (string, error) {
	content, err := auth.ValidateContent(raw, s.config.MaxContentLength)
	if err != nil {
		return "", err
	}
	if s.censor == nil {
		return content, nil
	}
	censored, words := s.censor.Censor(content)
	if len(words) > 0 {
		s.log.Debug("Chat content moderated", "words", len(words))
	}
	return censored, nil
}

// parentOf loads the replied message. A parent deleted since is not an error.
func (s *ChatService) parentOf(ctx context.Context, m domain.Message) *domain.Message {
	if m.ReplyTo == nil {
		return nil
	}
	parent, err := s.repository.GetMessage(ctx, m.RoomID, *m.ReplyTo)
	if err != nil {
		s.log.Debug("Replied message unavailable", "message_id", m.ID, "reply_to", *m.ReplyTo, "error", err)
		return nil
	}
	return &parent
}

func (s *ChatService) enrich(ctx context.Context, m domain.Message, parent *domain.Message, users *userCache) (domain.ChatMessage, error) {
	sender, err := users.get(ctx, m.SenderID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	out := domain.ChatMessage{
		ID:           m.ID,
		Content:      m.Content,
		Type:         m.Type,
		Timestamp:    m.CreatedAt,
		Edited:       m.Edited,
		EditedAt:     m.EditedAt,
		ReplyTo:      m.ReplyTo,
		SenderID:     m.SenderID,
		SenderName:   sender.Name,
		SenderEmail:  sender.Email,
		SenderAvatar: sender.Avatar,
	}
	if parent != nil {
		out.RepliedMessageContent = parent.Content
		if parentSender, err := users.get(ctx, parent.SenderID); err == nil {
			out.RepliedMessageSender = parentSender.Name
		}
	}
	return out, nil
}

// userCache avoids looking up the same sender for every message of a page.
type userCache struct {
	directory contract.Directory
	users     map[domain.UserID]domain.User
}

func newUserCache(directory contract.Directory) *userCache {
	return &userCache{directory: directory, users: make(map[domain.UserID]domain.User)}
}

func (c *userCache) get(ctx context.Context, userID domain.UserID) (domain.User, error) {
	if user, ok := c.users[userID]; ok {
		return user, nil
	}
	user, err := c.directory.GetUser(ctx, userID)
	if stderrors.Is(err, errors.ErrUserNotFound) {
		// Deleted accounts still show their messages
		user = domain.User{ID: userID, Name: "Unknown user"}
		err = nil
	}
	if err != nil {
		return domain.User{}, err
	}
	c.users[userID] = user
	return user, nil
}
