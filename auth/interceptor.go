package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	"huddle/errors"
	"net/http"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// publicPaths are served without a bearer token.
// The websocket authenticates in-band with an auth envelope.
var publicPaths = map[string]struct{}{
	"/healthz": {},
	"/ws":      {},
}

// Middleware validates the "Authorization: Bearer <token>" header and injects
// the caller's identity into the request context.
func Middleware(verifier contract.IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				unauthorized(w, fmt.Errorf("%w: bearer token is missing", errors.ErrAuthentication))
				return
			}
			userID, err := verifier.VerifyIdentity(token)
			if err != nil {
				unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserIDKey, userID)))
		})
	}
}

// UserFromContext returns the identity injected by Middleware.
func UserFromContext(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	return userID, ok
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="huddle"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(envelope.ErrorPayload{Message: err.Error(), Code: errors.Code(err)})
}
