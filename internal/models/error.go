package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Security pipeline errors
	ErrAccountLocked  = errors.New("account is temporarily locked")
	ErrMFARequired    = errors.New("mfa code required")
	ErrInvalidMFACode = errors.New("invalid mfa code")
)

// AccountLockedError reports a login attempt against a locked identity and
// carries the remaining lock time so the transport can emit a retry hint.
// It unwraps to ErrAccountLocked, so errors.Is checks keep working.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked, retry in %s", e.Remaining.Round(time.Second))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }
