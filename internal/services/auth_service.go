package services

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	AddUser(ctx context.Context, u *User) error
	// DisplayNameTaken reports whether another user already uses name.
	DisplayNameTaken(ctx context.Context, name, exceptUserID string) (bool, error)
	GrantAdmin(ctx context.Context, userID string) error
}

type TokenSigner func(uid, email string, ttl time.Duration) (string, error)

type AuthService struct {
	store       AuthStore
	now         func() time.Time
	idGen       func() string
	signToken   TokenSigner
	tokenTTL    time.Duration
	adminEmails map[string]struct{}
}

type AuthResult struct {
	Token  string
	UserID string
	Email  string
}

func NewAuthService(store AuthStore, signer TokenSigner, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 30 * 24 * time.Hour
	}
	return &AuthService{
		store:       store,
		now:         func() time.Time { return time.Now().UTC() },
		idGen:       uuid.NewString,
		signToken:   signer,
		tokenTTL:    tokenTTL,
		adminEmails: map[string]struct{}{},
	}
}

// WithAdminEmails grants the admin role to these addresses on sign-up.
func (s *AuthService) WithAdminEmails(emails []string) *AuthService {
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			s.adminEmails[e] = struct{}{}
		}
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*AuthResult, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if !validEmail(email) {
		return nil, NewValidationError("invalid email", []string{"email"})
	}
	if len(password) < 6 {
		return nil, NewValidationError("password must be at least 6 characters", []string{"password"})
	}
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, wrapBackend("find user", err)
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	if fullName != "" {
		taken, err := s.store.DisplayNameTaken(ctx, fullName, "")
		if err != nil {
			return nil, wrapBackend("check display name", err)
		}
		if taken {
			return nil, NewConflictError("display name already in use")
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	userID := s.idGen()
	if err := s.store.AddUser(ctx, &User{ID: userID, Email: email, FullName: fullName, PassHash: hash, CreatedAt: s.now()}); err != nil {
		return nil, wrapBackend("add user", err)
	}
	if _, ok := s.adminEmails[email]; ok {
		if err := s.store.GrantAdmin(ctx, userID); err != nil {
			return nil, wrapBackend("grant admin", err)
		}
	}
	return s.issue(userID, email)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, wrapBackend("find user", err)
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	return s.issue(u.ID, u.Email)
}

func (s *AuthService) issue(userID, email string) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(userID, email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: userID, Email: email}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
