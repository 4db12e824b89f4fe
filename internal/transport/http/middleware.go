package http

import (
	"context"
	"net/http"
	"strings"

	"bitquiz-service/internal/auth"
)

type ctxKey int

const userIDKey ctxKey = iota

// UserID extracts the authenticated user from the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RequireAuth verifies the bearer token (header, or "token" query parameter
// for websocket clients that cannot set headers) and stores the user ID in
// the request context.
func RequireAuth(verifier *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			userID, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
