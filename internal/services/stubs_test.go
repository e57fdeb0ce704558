package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var errBackend = errors.New("backend unavailable")

// stubStore is an in-memory backend shared by the service tests.
type stubStore struct {
	mu       sync.Mutex
	accounts map[string]*Submission // accountID|category
	visitors map[string]*Submission // visitorID|category
	users    map[string]*User       // email
	admins   map[string]bool
	audit    []AuditEntry
	saves    int

	failLoad    bool
	failSave    bool
	failList    bool
	failInsert  map[CategoryKey]bool
	failNames   bool
	failVisitor bool
}

func newStubStore() *stubStore {
	return &stubStore{
		accounts:   map[string]*Submission{},
		visitors:   map[string]*Submission{},
		users:      map[string]*User{},
		admins:     map[string]bool{},
		failInsert: map[CategoryKey]bool{},
	}
}

func subKey(owner string, category CategoryKey) string { return owner + "|" + string(category) }

func cloneSub(s *Submission) *Submission {
	cp := *s
	cp.Answers = s.Answers.Clone()
	return &cp
}

func (s *stubStore) GetAccountSubmission(_ context.Context, accountID string, category CategoryKey) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad {
		return nil, errBackend
	}
	if sub, ok := s.accounts[subKey(accountID, category)]; ok {
		return cloneSub(sub), nil
	}
	return nil, nil
}

func (s *stubStore) UpsertAccountSubmission(_ context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errBackend
	}
	s.saves++
	key := subKey(sub.AccountID, sub.Category)
	if existing, ok := s.accounts[key]; ok {
		existing.Answers = sub.Answers.Clone()
		existing.UpdatedAt = sub.UpdatedAt
		return nil
	}
	s.accounts[key] = cloneSub(sub)
	return nil
}

func (s *stubStore) GetUnclaimedVisitorSubmission(_ context.Context, visitorID string, category CategoryKey) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad {
		return nil, errBackend
	}
	if sub, ok := s.visitors[subKey(visitorID, category)]; ok && !sub.Claimed() {
		return cloneSub(sub), nil
	}
	return nil, nil
}

func (s *stubStore) UpsertVisitorSubmission(_ context.Context, sub *Submission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return false, errBackend
	}
	s.saves++
	key := subKey(sub.VisitorID, sub.Category)
	if existing, ok := s.visitors[key]; ok {
		if existing.Claimed() {
			return false, nil
		}
		existing.Answers = sub.Answers.Clone()
		existing.UpdatedAt = sub.UpdatedAt
		return true, nil
	}
	s.visitors[key] = cloneSub(sub)
	return true, nil
}

func (s *stubStore) ListUnclaimedVisitorSubmissionsByVisitor(_ context.Context, visitorID string) ([]*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errBackend
	}
	var out []*Submission
	for _, sub := range s.visitors {
		if sub.VisitorID == visitorID && !sub.Claimed() {
			out = append(out, cloneSub(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *stubStore) InsertAccountSubmissionIfAbsent(_ context.Context, sub *Submission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert[sub.Category] {
		return false, errBackend
	}
	key := subKey(sub.AccountID, sub.Category)
	if _, ok := s.accounts[key]; ok {
		return false, nil
	}
	s.accounts[key] = cloneSub(sub)
	return true, nil
}

func (s *stubStore) ClaimVisitorSubmission(_ context.Context, submissionID, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.visitors {
		if sub.ID == submissionID {
			sub.ClaimedBy = accountID
			t := at
			sub.ClaimedAt = &t
			return nil
		}
	}
	return errors.New("no such visitor submission")
}

func (s *stubStore) ListAccountSubmissions(_ context.Context, category CategoryKey) ([]*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errBackend
	}
	var out []*Submission
	for _, sub := range s.accounts {
		if sub.Category == category {
			out = append(out, cloneSub(sub))
		}
	}
	return out, nil
}

func (s *stubStore) ListUnclaimedVisitorSubmissions(_ context.Context, category CategoryKey) ([]*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failVisitor {
		return nil, errBackend
	}
	var out []*Submission
	for _, sub := range s.visitors {
		if sub.Category == category && !sub.Claimed() {
			out = append(out, cloneSub(sub))
		}
	}
	return out, nil
}

func (s *stubStore) ProfileNames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNames {
		return nil, errBackend
	}
	out := map[string]string{}
	for _, u := range s.users {
		for _, id := range ids {
			if u.ID == id && u.FullName != "" {
				out[id] = u.FullName
			}
		}
	}
	return out, nil
}

func (s *stubStore) IsAdmin(_ context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins[accountID], nil
}

func (s *stubStore) ClearCategory(_ context.Context, category CategoryKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sub := range s.accounts {
		if sub.Category == category {
			delete(s.accounts, k)
			n++
		}
	}
	for k, sub := range s.visitors {
		if sub.Category == category {
			delete(s.visitors, k)
			n++
		}
	}
	return n, nil
}

func (s *stubStore) SoftDeleteSubmission(_ context.Context, source SubmissionSource, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.accounts
	if source == SourceVisitor {
		table = s.visitors
	}
	for k, sub := range table {
		if sub.ID == id {
			delete(table, k)
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) AddAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *stubStore) ListAudit(_ context.Context, limit int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

func (s *stubStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[strings.ToLower(email)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) AddUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Email]; ok {
		return errors.New("duplicate user")
	}
	cp := *u
	s.users[u.Email] = &cp
	return nil
}

func (s *stubStore) DisplayNameTaken(_ context.Context, name, exceptUserID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID != exceptUserID && strings.EqualFold(u.FullName, name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) GrantAdmin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = true
	return nil
}

func (s *stubStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			return &Profile{ID: u.ID, Email: u.Email, FullName: u.FullName, IsAdmin: s.admins[u.ID]}, nil
		}
	}
	return nil, nil
}

func (s *stubStore) UpdateProfile(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, u := range s.users {
		if u.ID == p.ID {
			delete(s.users, email)
			u.FullName = p.FullName
			u.Email = p.Email
			s.users[p.Email] = u
			return nil
		}
	}
	return errors.New("no such user")
}

func (s *stubStore) addUser(id, email, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = &User{ID: id, Email: email, FullName: name}
}

func (s *stubStore) putAccount(sub *Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Source = SourceAccount
	s.accounts[subKey(sub.AccountID, sub.Category)] = sub
}

func (s *stubStore) putVisitor(sub *Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Source = SourceVisitor
	s.visitors[subKey(sub.VisitorID, sub.Category)] = sub
}

func (s *stubStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

var testCatalog = NewCatalog(nil, 2025)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }
