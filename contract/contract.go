//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"meet-relay/domain"
	"meet-relay/domain/chat"
	"meet-relay/domain/event"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type CloseCode int

const (
	CloseNormal        CloseCode = 1000
	CloseNotAcceptable CloseCode = 1003
	CloseBadData       CloseCode = 1007
)

// EventSink receives outbound events. Consume must never block on a slow peer.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Channel is one live bidirectional connection.
type Channel interface {
	EventSink
	Close(code CloseCode, reason string) error
	RemoteAddr() string
}

// Authorizer decides whether a user may join a room with the given token.
type Authorizer interface {
	Authorize(ctx context.Context, token string, roomID domain.RoomID, userID domain.UserID) error
}

// Directory is the read side of the persisted users, rooms and participants.
type Directory interface {
	GetUser(ctx context.Context, userID domain.UserID) (domain.User, error)
	GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	GetParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (domain.Participant, error)
	ListParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.ParticipantInfo, error)
	IsHost(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error)
}

// ActivityRecorder persists participant activity triggered by live events.
type ActivityRecorder interface {
	TouchParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	RecordMediaActivity(ctx context.Context, roomID domain.RoomID, userID domain.UserID, state domain.MediaState) error
}

type MessageRepository interface {
	StoreMessage(ctx context.Context, message domain.Message) error
	GetMessage(ctx context.Context, roomID domain.RoomID, messageID uuid.UUID) (domain.Message, error)
	UpdateMessage(ctx context.Context, message domain.Message) error
	DeleteMessage(ctx context.Context, roomID domain.RoomID, messageID uuid.UUID) error
	GetMessages(ctx context.Context, roomID domain.RoomID, cursor *string, limit int) ([]domain.Message, *string, error)
}

// MessageService owns chat content rules and persistence.
type MessageService interface {
	PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (domain.ChatMessage, error)
	EditMessage(ctx context.Context, cmd chat.EditMessageCommand) (domain.ChatMessage, error)
	DeleteMessage(ctx context.Context, cmd chat.DeleteMessageCommand) error
	GetMessages(ctx context.Context, cmd chat.GetMessageCommand) ([]domain.ChatMessage, *string, error)
	GetChatUser(ctx context.Context, userID domain.UserID) (domain.ChatUser, error)
}
