package services

import (
	"context"
	"strings"
)

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, p *Profile) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	DisplayNameTaken(ctx context.Context, name, exceptUserID string) (bool, error)
}

type ProfileService struct {
	store ProfileStore
}

func NewProfileService(store ProfileStore) *ProfileService {
	return &ProfileService{store: store}
}

func (s *ProfileService) Get(ctx context.Context, actor Identity) (*Profile, error) {
	if !actor.IsAccount() {
		return nil, NewUnauthorizedError("sign in required")
	}
	p, err := s.store.GetProfile(ctx, actor.ID)
	if err != nil {
		return nil, wrapBackend("get profile", err)
	}
	if p == nil {
		return nil, NewNotFoundError("profile not found")
	}
	return p, nil
}

// ProfileUpdate carries optional changes; nil leaves a field as is.
type ProfileUpdate struct {
	FullName *string
	Email    *string
}

func (s *ProfileService) Update(ctx context.Context, actor Identity, upd ProfileUpdate) (*Profile, error) {
	p, err := s.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if name != "" && name != p.FullName {
			taken, err := s.store.DisplayNameTaken(ctx, name, actor.ID)
			if err != nil {
				return nil, wrapBackend("check display name", err)
			}
			if taken {
				return nil, NewConflictError("display name already in use")
			}
		}
		p.FullName = name
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if !validEmail(email) {
			return nil, NewValidationError("invalid email", []string{"email"})
		}
		if email != p.Email {
			other, err := s.store.FindUserByEmail(ctx, email)
			if err != nil {
				return nil, wrapBackend("find user", err)
			}
			if other != nil && other.ID != actor.ID {
				return nil, NewConflictError("email exists")
			}
		}
		p.Email = email
	}
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, wrapBackend("update profile", err)
	}
	return p, nil
}
