package svcerrors

import "errors"

// Validation errors. These are rejected synchronously and never reach the
// store.
var (
	ErrInvalidSwipe   = errors.New("invalid swipe: ids must be distinct and non-empty")
	ErrInvalidResult  = errors.New("invalid swipe result: must be ACCEPTED or REJECTED")
	ErrSelfMatch      = errors.New("cannot match a user with themselves")
	ErrUnknownUser    = errors.New("unknown user")
	ErrNotParticipant = errors.New("user is not a participant of this match")
	ErrEmptyMessage   = errors.New("message content must not be empty")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
)
