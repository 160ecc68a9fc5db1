package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"meet-relay/auth"
	"meet-relay/contract"
	"meet-relay/domain"
	"meet-relay/errors"
	"time"
)

var _ contract.Authorizer = (*AccessService)(nil)

// TokenValidator is the part of the token manager the access checks need.
type TokenValidator interface {
	Validate(token string) (*auth.CustomClaims, error)
}

// AccessService decides whether a user may join the real-time surfaces of a room.
type AccessService struct {
	log       *slog.Logger
	tokens    TokenValidator
	directory contract.Directory
	activity  contract.ActivityRecorder
	now       func() time.Time
}

func NewAccessService(log *slog.Logger, tokens TokenValidator, directory contract.Directory, activity contract.ActivityRecorder) *AccessService {
	return &AccessService{
		log:       log,
		tokens:    tokens,
		directory: directory,
		activity:  activity,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Authorize runs the checks in order and stops at the first failure:
//  1. the token is valid and issued to userID
//  2. user and room exist
//  3. a guest account has not expired
//  4. the room is active
//  5. the user owns the room, the room is public, or the user is an active participant
//  6. a participant record exists
//
// On success the participant activity is refreshed.
func (s *AccessService) Authorize(ctx context.Context, token string, roomID domain.RoomID, userID domain.UserID) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return err
	}
	if claims.UserID != userID.String() {
		return fmt.Errorf("%w: token does not belong to user", errors.ErrInvalidToken)
	}

	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	room, err := s.directory.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if user.GuestExpired(s.now()) {
		return errors.ErrGuestExpired
	}
	if !room.IsActive() {
		return errors.ErrRoomNotActive
	}

	participant, err := s.directory.GetParticipant(ctx, roomID, userID)
	if err != nil && !stderrors.Is(err, errors.ErrNotParticipant) {
		return err
	}
	found := err == nil
	if !room.IsOwner(userID) && !room.Public && !(found && participant.IsActive()) {
		return errors.ErrAccessDenied
	}
	if !found {
		return errors.ErrNotParticipant
	}

	if err := s.activity.TouchParticipant(ctx, roomID, userID); err != nil {
		s.log.Warn("Failed to refresh participant activity", "room_id", roomID, "user_id", userID, "error", err)
	}
	return nil
}
