package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMiddlewareInjectsPrincipal(t *testing.T) {
	g := newGate(t)
	g.creds.add(t, "acc-1", "admin", "demo")

	result, err := g.login("admin", "demo", "1.2.3.4")
	require.NoError(t, err)

	var seen Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = principal
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: result.Token})
	rec := httptest.NewRecorder()
	SessionMiddleware(g.service, next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-1", seen.Account.ID)
	assert.Equal(t, result.Token, seen.Token)
}

func TestSessionMiddlewareRejectsMissingCookie(t *testing.T) {
	g := newGate(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	rec := httptest.NewRecorder()
	SessionMiddleware(g.service, next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionMiddlewareRejectsExpiredSession(t *testing.T) {
	g := newGate(t)
	g.creds.add(t, "acc-1", "admin", "demo")

	result, err := g.login("admin", "demo", "1.2.3.4")
	require.NoError(t, err)

	g.now = g.now.Add(3 * time.Hour)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: result.Token})
	rec := httptest.NewRecorder()
	SessionMiddleware(g.service, next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionMiddlewareRefreshesActivity(t *testing.T) {
	g := newGate(t)
	g.creds.add(t, "acc-1", "admin", "demo")

	result, err := g.login("admin", "demo", "1.2.3.4")
	require.NoError(t, err)

	// Keep touching within the idle window; the session stays alive far
	// past the original 2-hour mark.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	for i := 0; i < 5; i++ {
		g.now = g.now.Add(90 * time.Minute)
		req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: result.Token})
		rec := httptest.NewRecorder()
		SessionMiddleware(g.service, next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
