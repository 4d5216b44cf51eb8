package chi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/imagespace/iqrproxy/internal/logger"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type userCtxKey struct{}

// ContextWithUser stores the authenticated user name in the context.
func ContextWithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext returns the authenticated user name, or "" when auth is disabled.
func UserFromContext(ctx context.Context) string {
	u, _ := ctx.Value(userCtxKey{}).(string)
	return u
}

// BearerAuthMiddleware returns a middleware that validates Bearer tokens against
// users, a map of API key to user name. If users is empty, authentication is
// disabled (pass-through).
func BearerAuthMiddleware(users map[string]string) func(http.Handler) http.Handler {
	validKeys := make(map[string]string, len(users))
	for k, name := range users {
		if k != "" && name != "" {
			validKeys[k] = name
		}
	}

	return func(next http.Handler) http.Handler {
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, ErrorResponseCodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized,
					ErrorResponseCodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			user, ok := validKeys[auth[len(bearerPrefix):]]
			if !ok {
				writeError(w, http.StatusUnauthorized, ErrorResponseCodeUnauthorized, "invalid api key")
				return
			}

			ctx := ContextWithUser(r.Context(), user)
			ctx = logger.With(ctx, zap.String("user", user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
