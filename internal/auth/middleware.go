package auth

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
)

// Middleware attaches the bearer token's Actor to the request context.
// Requests without an Authorization header continue as Anonymous; a
// malformed or invalid token is rejected with 401.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), Anonymous{})))
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			actor, err := ParseToken(strings.TrimSpace(parts[1]), secret)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole lets through only actors holding one of roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := FromContext(r.Context())
			if _, ok := actor.(Anonymous); ok {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !slices.Contains(roles, actor.Role()) {
				writeAuthError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
