package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrInvalidParams    = fmt.Errorf("invalid connection parameters")
	ErrInvalidToken     = fmt.Errorf("invalid token")
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrRoomNotActive    = fmt.Errorf("room is not active")
	ErrGuestExpired     = fmt.Errorf("guest access has expired")
	ErrAccessDenied     = fmt.Errorf("access to room denied")
	ErrNotParticipant   = fmt.Errorf("user is not a participant of this room")
	ErrChannelClosed    = fmt.Errorf("channel closed")
	ErrSlowConsumer     = fmt.Errorf("slow consumer")
	ErrLeaveRequested   = fmt.Errorf("leave requested")
	ErrSessionEnded     = fmt.Errorf("session ended while joining")
	ErrNoActiveRoom     = fmt.Errorf("No active room")
	ErrUnknownType      = fmt.Errorf("Unknown message type")
	ErrInvalidPayload   = fmt.Errorf("Invalid message payload")
	ErrEmptyContent     = fmt.Errorf("Message content cannot be empty")
	ErrContentTooLong   = fmt.Errorf("Message too long")
	ErrLinksNotAllowed  = fmt.Errorf("Links are not allowed in messages")
	ErrMessageNotFound  = fmt.Errorf("Message not found")
	ErrReplyNotFound    = fmt.Errorf("Replied message not found")
	ErrNotAuthor        = fmt.Errorf("You can only edit your own messages")
	ErrEditWindowClosed = fmt.Errorf("Messages can only be edited within")
	ErrDeleteForbidden  = fmt.Errorf("You can only delete your own messages")
	ErrGenericReply     = fmt.Errorf("Error processing message")
)

// userFacing lists the errors whose text can be shown to a client as is.
var userFacing = []error{
	ErrNoActiveRoom,
	ErrInvalidPayload,
	ErrEmptyContent,
	ErrContentTooLong,
	ErrLinksNotAllowed,
	ErrMessageNotFound,
	ErrReplyNotFound,
	ErrNotAuthor,
	ErrEditWindowClosed,
	ErrDeleteForbidden,
}

// MapToReply turns a handler error into the message sent back to the client.
// User-facing errors are only ever wrapped with client-safe detail,
// anything unexpected is hidden behind a generic text.
func MapToReply(err error) string {
	if errors.Is(err, ErrUnknownType) {
		return err.Error()
	}
	for _, known := range userFacing {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return ErrGenericReply.Error()
}

// RejectReason is the text attached to a refused connection.
func RejectReason(err error) string {
	return fmt.Sprintf("Failed to join room: %s", err.Error())
}
