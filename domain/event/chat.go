package event

import (
	"meet-relay/domain"

	"github.com/google/uuid"
)

const (
	ChatMessageType        Type = "chat_message"
	ChatTypingStartType    Type = "chat_typing_start"
	ChatTypingStopType     Type = "chat_typing_stop"
	ChatTypingType         Type = "chat_typing"
	ChatGetHistoryType     Type = "chat_get_history"
	ChatHistoryType        Type = "chat_history"
	ChatEditMessageType    Type = "chat_edit_message"
	ChatMessageEditedType  Type = "chat_message_edited"
	ChatDeleteMessageType  Type = "chat_delete_message"
	ChatMessageDeletedType Type = "chat_message_deleted"
	ChatMarkReadType       Type = "chat_mark_read"
	ChatUserJoinedType     Type = "chat_user_joined"
	ChatUserLeftType       Type = "chat_user_left"
)

type ChatMessageRequest struct {
	Content string  `json:"content"`
	ReplyTo *string `json:"replyTo"`
}

type ChatEditRequest struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type ChatMessageIDRequest struct {
	MessageID string `json:"messageId"`
}

type ChatHistoryRequest struct {
	Cursor *string `json:"cursor"`
}

type ChatMessagePosted struct {
	Message domain.ChatMessage `json:"message"`
	RoomID  domain.RoomID      `json:"roomId"`
}

type ChatHistory struct {
	Messages []domain.ChatMessage `json:"messages"`
	RoomID   domain.RoomID        `json:"roomId"`
	Cursor   *string              `json:"cursor,omitempty"`
}

type ChatTyping struct {
	User   domain.ChatUser `json:"user"`
	Typing bool            `json:"typing"`
}

type ChatMessageDeleted struct {
	MessageID uuid.UUID     `json:"messageId"`
	RoomID    domain.RoomID `json:"roomId"`
	DeletedBy domain.UserID `json:"deletedBy"`
}

type ChatUserPresence struct {
	User domain.ChatUser `json:"user"`
}
