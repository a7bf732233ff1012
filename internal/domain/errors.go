package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotAMember      = errors.New("not a member of this conversation")
	ErrBadRequest      = errors.New("invalid input")
	ErrStorage         = errors.New("storage error")
)
