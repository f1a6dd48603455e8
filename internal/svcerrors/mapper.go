package svcerrors

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// Wire codes carried on websocket error events and HTTP error bodies.
// Keeps handlers clean by centralizing error classification.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// Code classifies an error into a wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSwipe),
		errors.Is(err, ErrInvalidResult),
		errors.Is(err, ErrSelfMatch),
		errors.Is(err, ErrEmptyMessage):
		return CodeInvalidArgument
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotParticipant):
		return CodeForbidden
	case errors.Is(err, ErrUnknownUser),
		errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return CodeNotFound
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// HTTPStatus maps an error to an HTTP status for the REST surface.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry the failed operation.
// Validation and auth failures are terminal; infrastructure failures are not.
func Retryable(err error) bool {
	return Code(err) == CodeUnavailable || Code(err) == CodeInternal
}
