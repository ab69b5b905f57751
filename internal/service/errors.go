package service

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrVerificationNotFound = errors.New("verification code not found")
	ErrCodeMismatch         = errors.New("verification code mismatch")
	ErrCodeExpired          = errors.New("verification code expired")
	ErrRateLimited          = errors.New("rate limited")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrRoomCodesExhausted   = errors.New("room code space exhausted")
	ErrRoomNotFound         = errors.New("room not found")
	ErrMembershipNotFound   = errors.New("room membership not found")
)

// ValidationError es un fallo de precondicion acotado a un campo, para que
// la capa HTTP pueda indicar que campo corregir.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
