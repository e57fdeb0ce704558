package middleware

import (
	"context"
	"net/http"

	"github.com/soaringjerry/comparaholic/internal/services"
)

const identityKey ctxKey = 2

// PendingVisitorFunc migrates a leftover visitor cookie into the account. It
// reports whether the cookie can be discarded.
type PendingVisitorFunc func(ctx context.Context, account services.Identity, visitorID string) bool

// Identity resolves the active identity of every request. A new visitor id is
// issued as a cookie; a visitor cookie seen next to a valid session is handed
// to onPending and cleared when it succeeds.
func Identity(resolver *services.IdentityResolver, cookies CookieConfig, onPending PendingVisitorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitor := ""
			if c, err := r.Cookie(VisitorCookie); err == nil {
				visitor = c.Value
			}
			res := resolver.Resolve(SessionToken(r), visitor)
			if res.IssueVisitorCookie {
				cookies.SetVisitor(w, res.Identity.ID)
			}
			if res.PendingVisitorID != "" && onPending != nil {
				if onPending(r.Context(), res.Identity, res.PendingVisitorID) {
					cookies.Clear(w, VisitorCookie)
				}
			}
			ctx := context.WithValue(r.Context(), identityKey, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity resolved for the request.
func IdentityFromContext(ctx context.Context) services.Identity {
	if res, ok := ctx.Value(identityKey).(services.Resolution); ok {
		return res.Identity
	}
	return services.Identity{}
}

// ResolutionFromContext exposes the full resolution, including a visitor id
// that was present before sign-in.
func ResolutionFromContext(ctx context.Context) (services.Resolution, bool) {
	res, ok := ctx.Value(identityKey).(services.Resolution)
	return res, ok
}
