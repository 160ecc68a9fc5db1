package services

import (
	"context"
	"fmt"
	"log/slog"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/domain/chat"
	"meet-relay/domain/event"
	"meet-relay/errors"
	"meet-relay/runtime"

	"github.com/google/uuid"
)

var _ FeatureHandler = (*ChatRouter)(nil)

// ChatRouter dispatches chat frames. Content rules and storage live behind contract.MessageService.
type ChatRouter struct {
	log      *slog.Logger
	hub      *runtime.Hub
	messages contract.MessageService
}

func NewChatRouter(log *slog.Logger, hub *runtime.Hub, messages contract.MessageService) *ChatRouter {
	return &ChatRouter{log: log.With("feature", hub.Feature), hub: hub, messages: messages}
}

// Joined sends the recent history to the newcomer and announces it to the others.
func (r *ChatRouter) Joined(ctx context.Context, s *runtime.Session) error {
	r.hub.BroadcastExcept(ctx, s.RoomID, s.UserID,
		event.New(event.ChatUserJoinedType, event.ChatUserPresence{User: r.chatUser(ctx, s.UserID)}))
	return r.sendHistory(ctx, s, nil)
}

func (r *ChatRouter) Leaving(ctx context.Context, s *runtime.Session, _ domain.DisconnectReason) {
	r.hub.BroadcastExcept(ctx, s.RoomID, s.UserID,
		event.New(event.ChatUserLeftType, event.ChatUserPresence{User: r.chatUser(ctx, s.UserID)}))
}

func (r *ChatRouter) Handle(ctx context.Context, s *runtime.Session, env event.Envelope) error {
	switch env.Type {
	case event.ChatMessageType:
		return r.postMessage(ctx, s, env)
	case event.ChatTypingStartType:
		r.typing(ctx, s, true)
		return nil
	case event.ChatTypingStopType:
		r.typing(ctx, s, false)
		return nil
	case event.ChatGetHistoryType:
		var req event.ChatHistoryRequest
		if err := env.Bind(&req); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return r.sendHistory(ctx, s, req.Cursor)
	case event.ChatEditMessageType:
		return r.editMessage(ctx, s, env)
	case event.ChatDeleteMessageType:
		return r.deleteMessage(ctx, s, env)
	case event.ChatMarkReadType:
		var req event.ChatMessageIDRequest
		if err := env.Bind(&req); err != nil {
			r.log.Debug("Malformed read receipt", "room_id", s.RoomID, "user_id", s.UserID, "error", err)
			return nil
		}
		r.log.Info("Message marked as read", "room_id", s.RoomID, "user_id", s.UserID, "message_id", req.MessageID)
		return nil
	default:
		return fmt.Errorf("%w: %s", errors.ErrUnknownType, env.Type)
	}
}

func (r *ChatRouter) postMessage(ctx context.Context, s *runtime.Session, env event.Envelope) error {
	var req event.ChatMessageRequest
	if err := env.Bind(&req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	cmd := chat.PostMessageCommand{Room: s.RoomID, UserID: s.UserID, Content: req.Content}
	if req.ReplyTo != nil && *req.ReplyTo != "" {
		replyTo, err := uuid.Parse(*req.ReplyTo)
		if err != nil {
			return fmt.Errorf("%w: replyTo: %v", errors.ErrInvalidPayload, err)
		}
		cmd.ReplyTo = &replyTo
	}

	message, err := r.messages.PostMessage(ctx, cmd)
	if err != nil {
		return err
	}
	r.hub.Broadcast(ctx, s.RoomID, event.New(event.ChatMessageType, event.ChatMessagePosted{Message: message, RoomID: s.RoomID}))
	return nil
}

func (r *ChatRouter) editMessage(ctx context.Context, s *runtime.Session, env event.Envelope) error {
	var req event.ChatEditRequest
	if err := env.Bind(&req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		return fmt.Errorf("%w: messageId: %v", errors.ErrInvalidPayload, err)
	}

	message, err := r.messages.EditMessage(ctx, chat.EditMessageCommand{
		Room:      s.RoomID,
		UserID:    s.UserID,
		MessageID: messageID,
		Content:   req.Content,
	})
	if err != nil {
		return err
	}
	r.hub.Broadcast(ctx, s.RoomID, event.New(event.ChatMessageEditedType, event.ChatMessagePosted{Message: message, RoomID: s.RoomID}))
	return nil
}

func (r *ChatRouter) deleteMessage(ctx context.Context, s *runtime.Session, env event.Envelope) error {
	var req event.ChatMessageIDRequest
	if err := env.Bind(&req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		return fmt.Errorf("%w: messageId: %v", errors.ErrInvalidPayload, err)
	}

	if err := r.messages.DeleteMessage(ctx, chat.DeleteMessageCommand{Room: s.RoomID, UserID: s.UserID, MessageID: messageID}); err != nil {
		return err
	}
	r.hub.Broadcast(ctx, s.RoomID, event.New(event.ChatMessageDeletedType, event.ChatMessageDeleted{
		MessageID: messageID,
		RoomID:    s.RoomID,
		DeletedBy: s.UserID,
	}))
	return nil
}

func (r *ChatRouter) typing(ctx context.Context, s *runtime.Session, typing bool) {
	r.hub.BroadcastExcept(ctx, s.RoomID, s.UserID, event.New(event.ChatTypingType, event.ChatTyping{
		User:   r.chatUser(ctx, s.UserID),
		Typing: typing,
	}))
}

func (r *ChatRouter) sendHistory(ctx context.Context, s *runtime.Session, cursor *string) error {
	messages, next, err := r.messages.GetMessages(ctx, chat.GetMessageCommand{Room: s.RoomID, Cursor: cursor})
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	r.hub.Deliver(ctx, s, event.New(event.ChatHistoryType, event.ChatHistory{
		Messages: messages,
		RoomID:   s.RoomID,
		Cursor:   next,
	}))
	return nil
}

// chatUser falls back to a bare identity when the profile cannot be read.
func (r *ChatRouter) chatUser(ctx context.Context, userID domain.UserID) domain.ChatUser {
	user, err := r.messages.GetChatUser(ctx, userID)
	if err != nil {
		r.log.Debug("Chat user lookup failed", "user_id", userID, "error", err)
		return domain.ChatUser{ID: userID}
	}
	return user
}
