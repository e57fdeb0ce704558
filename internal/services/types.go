package services

import (
	"strings"
	"time"
)

type IdentityKind string

const (
	IdentityAccount IdentityKind = "account"
	IdentityVisitor IdentityKind = "visitor"
)

// Identity is the active actor of one browsing context: either an
// authenticated account or an anonymous visitor tracked by cookie.
type Identity struct {
	Kind        IdentityKind `json:"kind"`
	ID          string       `json:"id"`
	Email       string       `json:"email,omitempty"`
	DisplayName string       `json:"display_name,omitempty"`
}

func AccountIdentity(id, email string) Identity {
	return Identity{Kind: IdentityAccount, ID: id, Email: email}
}

func VisitorIdentity(id string) Identity {
	return Identity{Kind: IdentityVisitor, ID: id}
}

func (id Identity) IsAccount() bool { return id.Kind == IdentityAccount && id.ID != "" }
func (id Identity) IsVisitor() bool { return id.Kind == IdentityVisitor && id.ID != "" }

// Key identifies the identity across both namespaces.
func (id Identity) Key() string { return string(id.Kind) + ":" + id.ID }

// FormState maps field name to answer for one category.
type FormState map[string]string

func (s FormState) Clone() FormState {
	out := make(FormState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Trimmed returns a copy with surrounding whitespace removed from every value.
func (s FormState) Trimmed() FormState {
	out := make(FormState, len(s))
	for k, v := range s {
		out[k] = strings.TrimSpace(v)
	}
	return out
}

type SubmissionSource string

const (
	SourceAccount SubmissionSource = "account"
	SourceVisitor SubmissionSource = "visitor"
)

func ParseSource(s string) (SubmissionSource, bool) {
	switch SubmissionSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourceAccount:
		return SourceAccount, true
	case SourceVisitor:
		return SourceVisitor, true
	}
	return "", false
}

// Submission is one identity's stored answers for one category. Exactly one of
// AccountID and VisitorID is set.
type Submission struct {
	ID        string
	Source    SubmissionSource
	AccountID string
	VisitorID string
	Category  CategoryKey
	Answers   FormState
	CreatedAt time.Time
	UpdatedAt time.Time
	ClaimedBy string
	ClaimedAt *time.Time
}

func (s *Submission) Claimed() bool { return s != nil && s.ClaimedBy != "" }

type User struct {
	ID        string
	Email     string
	FullName  string
	PassHash  []byte
	CreatedAt time.Time
}

type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	IsAdmin  bool   `json:"is_admin"`
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
