package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/thiagoors/clinic-queue-system/internal/store"
)

type contextKey string

const principalKey contextKey = "principal"

// SessionMiddleware resolves the bearer token into a Principal and stores it
// in the request context. Requests without any token proceed anonymously so
// public endpoints (ticket issuance, display board, login) stay reachable;
// a token that is present but does not resolve is rejected outright.
func SessionMiddleware(sessions store.TicketStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := sessions.GetSession(r.Context(), token)
			if err != nil {
				status, code, msg := mapError(err)
				writeError(w, status, code, msg)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromContext(ctx context.Context) (store.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(store.Principal)
	return principal, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}
