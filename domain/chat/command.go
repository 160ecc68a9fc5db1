package chat

import (
	"meet-relay/domain"
	"time"

	"github.com/google/uuid"
)

type Command interface {
	RoomID() domain.RoomID
}

type PostMessageCommand struct {
	Room      domain.RoomID
	UserID    domain.UserID
	Content   string
	ReplyTo   *uuid.UUID
	CreatedAt time.Time
}

func (p PostMessageCommand) RoomID() domain.RoomID {
	return p.Room
}

type EditMessageCommand struct {
	Room      domain.RoomID
	UserID    domain.UserID
	MessageID uuid.UUID
	Content   string
	EditedAt  time.Time
}

func (p EditMessageCommand) RoomID() domain.RoomID {
	return p.Room
}

type DeleteMessageCommand struct {
	Room      domain.RoomID
	UserID    domain.UserID
	MessageID uuid.UUID
}

func (p DeleteMessageCommand) RoomID() domain.RoomID {
	return p.Room
}

type GetMessageCommand struct {
	Room   domain.RoomID
	Cursor *string
}

func (p GetMessageCommand) RoomID() domain.RoomID {
	return p.Room
}
