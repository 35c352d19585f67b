package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode_Wrapped(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("%w: user 3", ErrAuthentication), "authentication", http.StatusUnauthorized},
		{fmt.Errorf("%w: channel 7", ErrNotMember), "not_member", http.StatusForbidden},
		{fmt.Errorf("%w: user 2", ErrUserOffline), "user_offline", http.StatusNotFound},
		{ErrAlreadyInCall, "already_in_call", http.StatusConflict},
		{fmt.Errorf("%w: not ringing", ErrInvalidState), "invalid_state", http.StatusConflict},
		{fmt.Errorf("%w: bad json", ErrInvalidEnvelope), "invalid_envelope", http.StatusBadRequest},
		{fmt.Errorf("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		req.Equal(tt.code, Code(tt.err))
		req.Equal(tt.status, HTTPStatus(tt.err))
	}
}
