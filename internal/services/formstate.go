package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FormStateStore is the persistence surface FormStore needs.
type FormStateStore interface {
	GetAccountSubmission(ctx context.Context, accountID string, category CategoryKey) (*Submission, error)
	UpsertAccountSubmission(ctx context.Context, sub *Submission) error
	GetUnclaimedVisitorSubmission(ctx context.Context, visitorID string, category CategoryKey) (*Submission, error)
	// UpsertVisitorSubmission reports false when the existing row is already
	// claimed and was left untouched.
	UpsertVisitorSubmission(ctx context.Context, sub *Submission) (bool, error)
}

// FormStore loads and persists the answers of one identity for one category.
type FormStore struct {
	store    FormStateStore
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	idGen    func() string
}

func NewFormStore(store FormStateStore, logger *zap.Logger) *FormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormStore{
		store:    store,
		logger:   logger,
		observer: nopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    uuid.NewString,
	}
}

// WithObserver attaches telemetry; nil resets to a no-op.
func (s *FormStore) WithObserver(o Observer) *FormStore {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
	return s
}

// Load returns the identity's own stored answers. Accounts read account rows
// and visitors read unclaimed visitor rows; a missing row is an empty state.
func (s *FormStore) Load(ctx context.Context, id Identity, category CategoryKey) (FormState, error) {
	var (
		sub *Submission
		err error
	)
	switch {
	case id.IsAccount():
		sub, err = s.store.GetAccountSubmission(ctx, id.ID, category)
	case id.IsVisitor():
		sub, err = s.store.GetUnclaimedVisitorSubmission(ctx, id.ID, category)
	default:
		return FormState{}, nil
	}
	if err != nil {
		return nil, wrapBackend("load form state", err)
	}
	if sub == nil || len(sub.Answers) == 0 {
		return FormState{}, nil
	}
	return sub.Answers.Clone(), nil
}

// Save trims and upserts state. Empty state is a no-op.
func (s *FormStore) Save(ctx context.Context, id Identity, category CategoryKey, state FormState) error {
	if len(state) == 0 {
		return nil
	}
	now := s.now()
	sub := &Submission{
		ID:        s.idGen(),
		Category:  category,
		Answers:   state.Trimmed(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	var err error
	switch {
	case id.IsAccount():
		sub.Source = SourceAccount
		sub.AccountID = id.ID
		err = s.store.UpsertAccountSubmission(ctx, sub)
	case id.IsVisitor():
		sub.Source = SourceVisitor
		sub.VisitorID = id.ID
		var applied bool
		applied, err = s.store.UpsertVisitorSubmission(ctx, sub)
		if err == nil && !applied {
			err = NewConflictError("visitor submission already claimed")
		}
	default:
		return NewUnauthorizedError("no active identity")
	}
	s.observer.RecordSave(sub.Source, err)
	if err != nil {
		s.logger.Warn("save form state",
			zap.String("identity", id.Key()),
			zap.String("category", string(category)),
			zap.Error(err))
		return wrapBackend("save form state", err)
	}
	return nil
}

// Open loads the stored state and wraps it in a fresh session.
func (s *FormStore) Open(ctx context.Context, id Identity, category CategoryKey) (*FormSession, error) {
	state, err := s.Load(ctx, id, category)
	if err != nil {
		return nil, err
	}
	return &FormSession{forms: s, identity: id, category: category, state: state}, nil
}

// FormSession is the in-memory answer map for one identity and category.
// Mutations are last-write-wins.
type FormSession struct {
	mu       sync.Mutex
	forms    *FormStore
	identity Identity
	category CategoryKey
	state    FormState
}

func (fs *FormSession) Identity() Identity    { return fs.identity }
func (fs *FormSession) Category() CategoryKey { return fs.category }

func (fs *FormSession) Update(field, value string) {
	field = strings.TrimSpace(field)
	if field == "" {
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.state == nil {
		fs.state = FormState{}
	}
	fs.state[field] = value
}

// Replace swaps in a copy of state, discarding every previous answer.
// Blank field names are dropped.
func (fs *FormSession) Replace(state FormState) {
	next := FormState{}
	for k, v := range state {
		if strings.TrimSpace(k) == "" {
			continue
		}
		next[k] = v
	}
	fs.mu.Lock()
	fs.state = next
	fs.mu.Unlock()
}

// Merge writes state over the current answers and keeps the other fields.
func (fs *FormSession) Merge(state FormState) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.state == nil {
		fs.state = FormState{}
	}
	for k, v := range state {
		if strings.TrimSpace(k) == "" {
			continue
		}
		fs.state[k] = v
	}
}

func (fs *FormSession) Snapshot() FormState {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.state.Clone()
}

func (fs *FormSession) Clear() {
	fs.mu.Lock()
	fs.state = FormState{}
	fs.mu.Unlock()
}

// Save persists the current snapshot. The in-memory state is kept on failure.
func (fs *FormSession) Save(ctx context.Context) error {
	return fs.forms.Save(ctx, fs.identity, fs.category, fs.Snapshot())
}

type registryEntry struct {
	session  *FormSession
	lastUsed time.Time
}

// SessionRegistry owns live form sessions keyed by identity and category.
// Idle sessions are evicted on access.
type SessionRegistry struct {
	mu       sync.Mutex
	forms    *FormStore
	idle     time.Duration
	now      func() time.Time
	sessions map[string]*registryEntry
}

func NewSessionRegistry(forms *FormStore, idle time.Duration) *SessionRegistry {
	if idle <= 0 {
		idle = 2 * time.Hour
	}
	return &SessionRegistry{
		forms:    forms,
		idle:     idle,
		now:      time.Now,
		sessions: map[string]*registryEntry{},
	}
}

func registryKey(id Identity, category CategoryKey) string {
	return id.Key() + "|" + string(category)
}

// Get returns the live session, opening it from storage when absent.
func (r *SessionRegistry) Get(ctx context.Context, id Identity, category CategoryKey) (*FormSession, error) {
	key := registryKey(id, category)
	r.mu.Lock()
	r.evictLocked()
	if e, ok := r.sessions[key]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.session, nil
	}
	r.mu.Unlock()

	sess, err := r.forms.Open(ctx, id, category)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[key]; ok {
		e.lastUsed = r.now()
		return e.session, nil
	}
	r.sessions[key] = &registryEntry{session: sess, lastUsed: r.now()}
	return sess, nil
}

// DropIdentity forgets every session of id and returns how many were dropped.
func (r *SessionRegistry) DropIdentity(id Identity) int {
	prefix := id.Key() + "|"
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.sessions {
		if strings.HasPrefix(key, prefix) {
			delete(r.sessions, key)
			n++
		}
	}
	return n
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) evictLocked() {
	cutoff := r.now().Add(-r.idle)
	for key, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			delete(r.sessions, key)
		}
	}
}
