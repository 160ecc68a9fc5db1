// Package domain contains core concepts of the relay.
// This file defines chat messages as persisted and as sent to clients.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageSystem MessageType = "SYSTEM"
)

// Message is the persisted chat record.
type Message struct {
	ID        uuid.UUID
	RoomID    RoomID
	SenderID  UserID
	Content   string
	Type      MessageType
	CreatedAt time.Time
	Edited    bool
	EditedAt  *time.Time
	ReplyTo   *uuid.UUID
}

// Age is how long ago the message was created.
func (m Message) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// ChatUser is the public profile attached to chat events.
type ChatUser struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

func NewChatUser(u User) ChatUser {
	return ChatUser{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}

// ChatMessage is a message enriched with sender and reply details.
type ChatMessage struct {
	ID                    uuid.UUID   `json:"id"`
	Content               string      `json:"content"`
	Type                  MessageType `json:"type"`
	Timestamp             time.Time   `json:"timestamp"`
	Edited                bool        `json:"edited"`
	EditedAt              *time.Time  `json:"editedAt,omitempty"`
	ReplyTo               *uuid.UUID  `json:"replyTo,omitempty"`
	SenderID              UserID      `json:"senderId"`
	SenderName            string      `json:"senderName"`
	SenderEmail           string      `json:"senderEmail"`
	SenderAvatar          string      `json:"senderAvatar,omitempty"`
	RepliedMessageContent string      `json:"repliedMessageContent,omitempty"`
	RepliedMessageSender  string      `json:"repliedMessageSender,omitempty"`
}
