package middleware

import (
	"net/http"
	"time"
)

const (
	SessionCookie = "session"
	VisitorCookie = "visitor_id"
	// LegacyCountCookie is only ever cleared.
	LegacyCountCookie = "comparisons_count"

	VisitorCookieTTL = 7 * 24 * time.Hour
)

// CookieConfig controls the attributes of every cookie the server writes.
type CookieConfig struct {
	Secure bool
	Domain string
}

func (c CookieConfig) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) SetVisitor(w http.ResponseWriter, id string) {
	c.set(w, VisitorCookie, id, VisitorCookieTTL)
}

func (c CookieConfig) SetSession(w http.ResponseWriter, token string, ttl time.Duration) {
	c.set(w, SessionCookie, token, ttl)
}

// Clear expires the named cookies.
func (c CookieConfig) Clear(w http.ResponseWriter, names ...string) {
	for _, name := range names {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   c.Domain,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
