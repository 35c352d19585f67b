package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrEmptyWords      = fmt.Errorf("no words have been found")
	ErrLoopStopped     = fmt.Errorf("dispatch loop stopped")
	ErrUnknownEnvelope = fmt.Errorf("unknown envelope type")

	ErrAuthentication  = fmt.Errorf("authentication required")
	ErrNotMember       = fmt.Errorf("not a member of target")
	ErrUserOffline     = fmt.Errorf("user offline")
	ErrAlreadyInCall   = fmt.Errorf("already in call")
	ErrInvalidState    = fmt.Errorf("invalid call state")
	ErrTransport       = fmt.Errorf("transport failure")
	ErrInvalidEnvelope = fmt.Errorf("invalid envelope")

	ErrTargetNotFound  = fmt.Errorf("target not found")
	ErrInvalidToken    = fmt.Errorf("invalid or expired token")
	ErrTokenGeneration = fmt.Errorf("token generation failed")
)

// Code returns the stable identifier carried by error envelopes.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrInvalidToken):
		return "authentication"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrUserOffline):
		return "user_offline"
	case errors.Is(err, ErrAlreadyInCall):
		return "already_in_call"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidEnvelope), errors.Is(err, ErrUnknownEnvelope):
		return "invalid_envelope"
	case errors.Is(err, ErrTargetNotFound):
		return "not_found"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}

// HTTPStatus maps a domain error onto the status returned by the REST surface.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "authentication":
		return http.StatusUnauthorized
	case "not_member":
		return http.StatusForbidden
	case "user_offline":
		return http.StatusNotFound
	case "already_in_call", "invalid_state":
		return http.StatusConflict
	case "invalid_envelope":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
