package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/identity"
	"github.com/zhouzirui/companion-academy/backend/pkg/utils"
)

// Authenticate resolves the bearer token, when present, and stores the caller
// on the request context. Requests without a token pass through anonymously;
// requests with a rejected token get 401. A nil provider leaves every request
// anonymous.
func Authenticate(provider identity.Provider, logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := identity.BearerToken(r.Header.Get("Authorization"))
			if token == "" || provider == nil {
				next.ServeHTTP(w, r)
				return
			}

			c, err := provider.Authenticate(r.Context(), token)
			if err != nil {
				logger.Debug("rejected bearer token", zap.Error(err))
				utils.RespondError(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), c)))
		})
	}
}

// RequireCaller rejects anonymous requests with 401.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.FromContext(r.Context()); !ok {
			utils.RespondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
