package auth

import (
	"fmt"
	"meet-relay/domain"
	"meet-relay/errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nolinks", func(fl validator.FieldLevel) bool {
		lower := strings.ToLower(fl.Field().String())
		return !strings.Contains(lower, "http://") && !strings.Contains(lower, "https://")
	})
	return v
}

// ConnectRequest carries the query parameters of a connection attempt.
type ConnectRequest struct {
	Token  string `validate:"required"`
	RoomID string `validate:"required,uuid"`
	UserID string `validate:"required,uuid"`
}

// ValidateConnect checks presence and format of the parameters and parses the ids.
func ValidateConnect(req ConnectRequest) (domain.RoomID, domain.UserID, error) {
	if err := validate.Struct(req); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %v", errors.ErrInvalidParams, err)
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %v", errors.ErrInvalidParams, err)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %v", errors.ErrInvalidParams, err)
	}
	return roomID, userID, nil
}

// ValidateContent applies the chat content rules and returns the trimmed content.
func ValidateContent(content string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", errors.ErrEmptyContent
	}
	if err := validate.Var(trimmed, fmt.Sprintf("max=%d", maxLength)); err != nil {
		return "", fmt.Errorf("%w (max %d characters)", errors.ErrContentTooLong, maxLength)
	}
	if err := validate.Var(trimmed, "nolinks"); err != nil {
		return "", errors.ErrLinksNotAllowed
	}
	return trimmed, nil
}
