package services

import (
	"strings"

	"github.com/google/uuid"
)

// TokenVerifier turns a session token into an account identity.
type TokenVerifier func(token string) (*Identity, error)

// Resolution is the outcome of resolving one request's identity.
type Resolution struct {
	Identity Identity
	// IssueVisitorCookie is set when a new visitor id was minted.
	IssueVisitorCookie bool
	// PendingVisitorID carries a leftover visitor cookie seen alongside a
	// valid account session; the caller migrates it and clears the cookie.
	PendingVisitorID string
}

type IdentityResolver struct {
	verify TokenVerifier
	newID  func() string
}

func NewIdentityResolver(verify TokenVerifier) *IdentityResolver {
	return &IdentityResolver{verify: verify, newID: uuid.NewString}
}

// Resolve never fails: a bad token or verifier error means "not signed in".
func (r *IdentityResolver) Resolve(sessionToken, visitorCookie string) Resolution {
	visitorCookie = strings.TrimSpace(visitorCookie)
	if id, ok := r.account(sessionToken); ok {
		return Resolution{Identity: id, PendingVisitorID: visitorCookie}
	}
	if visitorCookie != "" {
		return Resolution{Identity: VisitorIdentity(visitorCookie)}
	}
	return Resolution{Identity: VisitorIdentity(r.newID()), IssueVisitorCookie: true}
}

func (r *IdentityResolver) account(token string) (Identity, bool) {
	token = strings.TrimSpace(token)
	if token == "" || r.verify == nil {
		return Identity{}, false
	}
	id, err := r.verify(token)
	if err != nil || id == nil || id.ID == "" {
		return Identity{}, false
	}
	out := *id
	out.Kind = IdentityAccount
	return out, true
}
