// Package memory is a process-local UserRepository for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
)

type Repository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	byPhone map[string]string
	now     func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
		now:     time.Now,
	}
}

func (r *Repository) FindOne(_ context.Context, filter domain.UserFilter) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byEmail[filter.Email]; ok && filter.Email != "" {
		return clone(r.byID[id]), nil
	}
	if id, ok := r.byPhone[filter.Phone]; ok && filter.Phone != "" {
		return clone(r.byID[id]), nil
	}
	return nil, nil
}

func (r *Repository) Insert(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[user.ID]; ok {
		return nil, autherror.ErrConflict
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return nil, autherror.ErrConflict
	}
	if _, ok := r.byPhone[user.Phone]; ok {
		return nil, autherror.ErrConflict
	}

	stored := clone(user)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt

	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	r.byPhone[stored.Phone] = stored.ID

	return clone(stored), nil
}

func (r *Repository) Update(_ context.Context, id string, changes domain.UserChanges) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, autherror.ErrNotFound
	}

	changes.Apply(stored)
	stored.UpdatedAt = r.now().UTC()

	return clone(stored), nil
}

// Len reports the number of stored users.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	c.OTPCode = clonePtr(u.OTPCode)
	c.OTPExpiresAt = clonePtr(u.OTPExpiresAt)
	c.OTPCooldownAt = clonePtr(u.OTPCooldownAt)
	c.LastFailedLoginAt = clonePtr(u.LastFailedLoginAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
