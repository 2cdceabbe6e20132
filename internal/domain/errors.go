package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccessDenied        = errors.New("access denied")
	ErrRequestNotFound     = errors.New("request not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAlreadyProcessed    = errors.New("request already processed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrReferralCodeUnknown = errors.New("referral code not found")
	ErrUsernameTaken       = errors.New("username already exists")
)

// ValidationError reports a malformed field in caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
