package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service manages the user lifecycle behind phone sign-in.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service. A nil clock uses time.Now.
func NewService(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// ResolveOrCreate returns the user for phone, creating it on first sight. The
// bool reports whether this call created it. Two concurrent first sign-ins
// end up with the same user.
func (s *Service) ResolveOrCreate(ctx context.Context, phone string) (User, bool, error) {
	user, err := s.repo.FindByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, fmt.Errorf("find user: %w", err)
	}

	now := s.now().UTC()
	user = User{
		ID:        uuid.New().String(),
		Phone:     phone,
		Name:      DefaultName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user.Refresh()

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrExists) {
			existing, findErr := s.repo.FindByPhone(ctx, phone)
			if findErr != nil {
				return User{}, false, fmt.Errorf("find user after conflict: %w", findErr)
			}
			return existing, false, nil
		}
		return User{}, false, fmt.Errorf("create user: %w", err)
	}
	return user, true, nil
}

// Elevate promotes user to admin. Admins stay admins.
func (s *Service) Elevate(ctx context.Context, user User) (User, error) {
	if user.IsAdmin {
		return user, nil
	}
	now := s.now().UTC()
	if err := s.repo.SetAdmin(ctx, user.ID, now); err != nil {
		return User{}, fmt.Errorf("elevate user: %w", err)
	}
	user.IsAdmin = true
	user.UpdatedAt = now
	return user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateProfile applies input to the user and recomputes ProfileComplete.
func (s *Service) UpdateProfile(ctx context.Context, id string, input ProfileInput) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Location != nil {
		user.Location = strings.TrimSpace(*input.Location)
	}
	if input.Email != nil {
		email := strings.TrimSpace(*input.Email)
		if email != "" {
			addr, err := mail.ParseAddress(email)
			if err != nil || addr.Address != email {
				return User{}, fmt.Errorf("%w: email is not valid", ErrInvalidProfile)
			}
		}
		user.Email = email
	}

	user.Refresh()
	user.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// List returns a page of users matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	filter = filter.normalized()
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("list users: %w", err)
	}
	return Page{Items: users, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
