package api

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soaringjerry/comparaholic/internal/services"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*services.Submission // user|category
	visitors map[string]*services.Submission // visitor|category
	users    map[string]*services.User       // by id
	byEmail  map[string]string
	admins   map[string]bool
	deleted  map[string]struct{} // soft-deleted submission ids
	audit    []services.AuditEntry
}

// NewMemoryStore returns a process-local Store. Data is lost on restart.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts: map[string]*services.Submission{},
		visitors: map[string]*services.Submission{},
		users:    map[string]*services.User{},
		byEmail:  map[string]string{},
		admins:   map[string]bool{},
		deleted:  map[string]struct{}{},
		audit:    []services.AuditEntry{},
	}
}

func ownerKey(owner string, category services.CategoryKey) string {
	return owner + "|" + string(category)
}

func copySubmission(sub *services.Submission) *services.Submission {
	cp := *sub
	cp.Answers = sub.Answers.Clone()
	if sub.ClaimedAt != nil {
		t := *sub.ClaimedAt
		cp.ClaimedAt = &t
	}
	return &cp
}

func (s *memoryStore) isDeleted(sub *services.Submission) bool {
	_, ok := s.deleted[sub.ID]
	return ok
}

func (s *memoryStore) GetAccountSubmission(_ context.Context, accountID string, category services.CategoryKey) (*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.accounts[ownerKey(accountID, category)]
	if !ok || s.isDeleted(sub) {
		return nil, nil
	}
	return copySubmission(sub), nil
}

func (s *memoryStore) UpsertAccountSubmission(_ context.Context, sub *services.Submission) error {
	if sub == nil || sub.AccountID == "" {
		return errors.New("account submission requires account id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey(sub.AccountID, sub.Category)
	if existing, ok := s.accounts[key]; ok {
		existing.Answers = sub.Answers.Clone()
		existing.UpdatedAt = sub.UpdatedAt
		delete(s.deleted, existing.ID)
		return nil
	}
	cp := copySubmission(sub)
	cp.Source = services.SourceAccount
	s.accounts[key] = cp
	return nil
}

func (s *memoryStore) GetUnclaimedVisitorSubmission(_ context.Context, visitorID string, category services.CategoryKey) (*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.visitors[ownerKey(visitorID, category)]
	if !ok || sub.Claimed() || s.isDeleted(sub) {
		return nil, nil
	}
	return copySubmission(sub), nil
}

func (s *memoryStore) UpsertVisitorSubmission(_ context.Context, sub *services.Submission) (bool, error) {
	if sub == nil || sub.VisitorID == "" {
		return false, errors.New("visitor submission requires visitor id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey(sub.VisitorID, sub.Category)
	if existing, ok := s.visitors[key]; ok {
		if existing.Claimed() {
			return false, nil
		}
		existing.Answers = sub.Answers.Clone()
		existing.UpdatedAt = sub.UpdatedAt
		delete(s.deleted, existing.ID)
		return true, nil
	}
	cp := copySubmission(sub)
	cp.Source = services.SourceVisitor
	s.visitors[key] = cp
	return true, nil
}

func (s *memoryStore) ListUnclaimedVisitorSubmissionsByVisitor(_ context.Context, visitorID string) ([]*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*services.Submission
	for _, sub := range s.visitors {
		if sub.VisitorID == visitorID && !sub.Claimed() && !s.isDeleted(sub) {
			out = append(out, copySubmission(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *memoryStore) InsertAccountSubmissionIfAbsent(_ context.Context, sub *services.Submission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey(sub.AccountID, sub.Category)
	if existing, ok := s.accounts[key]; ok {
		if !s.isDeleted(existing) {
			return false, nil
		}
		// A soft-deleted row counts as absent and is revived in place.
		existing.Answers = sub.Answers.Clone()
		existing.CreatedAt = sub.CreatedAt
		existing.UpdatedAt = sub.UpdatedAt
		delete(s.deleted, existing.ID)
		return true, nil
	}
	cp := copySubmission(sub)
	cp.Source = services.SourceAccount
	s.accounts[key] = cp
	return true, nil
}

func (s *memoryStore) ClaimVisitorSubmission(_ context.Context, submissionID, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.visitors {
		if sub.ID == submissionID {
			if sub.Claimed() {
				return nil
			}
			t := at
			sub.ClaimedBy = accountID
			sub.ClaimedAt = &t
			return nil
		}
	}
	return errors.New("visitor submission not found")
}

func (s *memoryStore) ListAccountSubmissions(_ context.Context, category services.CategoryKey) ([]*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.accounts, func(sub *services.Submission) bool { return sub.Category == category && !s.isDeleted(sub) }), nil
}

func (s *memoryStore) ListUnclaimedVisitorSubmissions(_ context.Context, category services.CategoryKey) ([]*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.visitors, func(sub *services.Submission) bool {
		return sub.Category == category && !sub.Claimed() && !s.isDeleted(sub)
	}), nil
}

func (s *memoryStore) ListAllSubmissions(_ context.Context, category services.CategoryKey) ([]*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match := func(sub *services.Submission) bool { return sub.Category == category && !s.isDeleted(sub) }
	return append(s.collect(s.accounts, match), s.collect(s.visitors, match)...), nil
}

func (s *memoryStore) collect(table map[string]*services.Submission, keep func(*services.Submission) bool) []*services.Submission {
	out := []*services.Submission{}
	for _, sub := range table {
		if keep(sub) {
			out = append(out, copySubmission(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memoryStore) ProfileNames(_ context.Context, accountIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(accountIDs))
	for _, id := range accountIDs {
		if u, ok := s.users[id]; ok && strings.TrimSpace(u.FullName) != "" {
			out[id] = u.FullName
		}
	}
	return out, nil
}

func (s *memoryStore) IsAdmin(_ context.Context, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admins[accountID], nil
}

func (s *memoryStore) GrantAdmin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = true
	return nil
}

func (s *memoryStore) ClearCategory(_ context.Context, category services.CategoryKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, table := range []map[string]*services.Submission{s.accounts, s.visitors} {
		for k, sub := range table {
			if sub.Category == category {
				delete(table, k)
				n++
			}
		}
	}
	return n, nil
}

func (s *memoryStore) SoftDeleteSubmission(_ context.Context, source services.SubmissionSource, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.accounts
	if source == services.SourceVisitor {
		table = s.visitors
	}
	for _, sub := range table {
		if sub.ID == id && !s.isDeleted(sub) {
			s.deleted[sub.ID] = struct{}{}
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) AddAudit(_ context.Context, e services.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *memoryStore) ListAudit(_ context.Context, limit int) ([]services.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.AuditEntry, 0, limit)
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

func (s *memoryStore) FindUserByEmail(_ context.Context, email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, nil
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *memoryStore) AddUser(_ context.Context, u *services.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return errors.New("email exists")
	}
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[email] = u.ID
	return nil
}

func (s *memoryStore) DisplayNameTaken(_ context.Context, name, exceptUserID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name = strings.TrimSpace(name)
	for id, u := range s.users {
		if id != exceptUserID && strings.EqualFold(strings.TrimSpace(u.FullName), name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) GetProfile(_ context.Context, userID string) (*services.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &services.Profile{ID: u.ID, Email: u.Email, FullName: u.FullName, IsAdmin: s.admins[u.ID]}, nil
}

func (s *memoryStore) UpdateProfile(_ context.Context, p *services.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[p.ID]
	if !ok {
		return errors.New("user not found")
	}
	delete(s.byEmail, strings.ToLower(u.Email))
	u.Email = p.Email
	u.FullName = p.FullName
	s.byEmail[strings.ToLower(p.Email)] = u.ID
	return nil
}
