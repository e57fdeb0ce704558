package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/comparaholic/internal/services"
)

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestIdentityIssuesVisitorCookie(t *testing.T) {
	resolver := services.NewIdentityResolver(NewAuthenticator("k").Verify)
	var seen services.Identity
	h := Identity(resolver, CookieConfig{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	c := cookieByName(rec, VisitorCookie)
	require.NotNil(t, c)
	assert.True(t, seen.IsVisitor())
	assert.Equal(t, seen.ID, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(VisitorCookieTTL/time.Second), c.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookie, Value: "vis-7"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Nil(t, cookieByName(rec, VisitorCookie), "existing cookie is reused")
	assert.Equal(t, "vis-7", seen.ID)
}

func TestIdentityRestoresPendingVisitor(t *testing.T) {
	auth := NewAuthenticator("k")
	tok, err := auth.SignToken("acct-1", "a@example.com", time.Hour)
	require.NoError(t, err)
	resolver := services.NewIdentityResolver(auth.Verify)

	for _, ok := range []bool{true, false} {
		var migrated string
		onPending := func(_ context.Context, account services.Identity, visitorID string) bool {
			migrated = account.ID + "<-" + visitorID
			return ok
		}
		h := Identity(resolver, CookieConfig{}, onPending)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		req.AddCookie(&http.Cookie{Name: VisitorCookie, Value: "vis-1"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "acct-1<-vis-1", migrated)
		c := cookieByName(rec, VisitorCookie)
		if ok {
			require.NotNil(t, c)
			assert.Less(t, c.MaxAge, 0)
		} else {
			assert.Nil(t, c, "failed migration keeps the cookie")
		}
	}
}
