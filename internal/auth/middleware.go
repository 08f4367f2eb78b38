package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// Principal is the authenticated caller of a request, resolved from the
// session cookie.
type Principal struct {
	Account Account
	Token   string
	Session SessionRecord
}

type contextKey struct{}

var principalKey contextKey

// SessionMiddleware authenticates the session cookie against the
// registry and refreshes the row's last_activity before handing off.
func SessionMiddleware(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		account, record, err := service.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, ErrNoSession) {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
			return
		}

		principal := Principal{Account: account, Token: cookie.Value, Session: record}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
	})
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}
