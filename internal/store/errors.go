package store

import "errors"

var (
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrSectorNotFound     = errors.New("sector not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidTransition  = errors.New("invalid ticket transition")
	ErrForbidden          = errors.New("forbidden")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrAllocationFailed   = errors.New("ticket number allocation failed")
)
