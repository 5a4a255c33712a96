package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/account-authority/internal/model"
)

// MemoryAccountRepo is a process-local account store with the same
// uniqueness rules as the MySQL table. Callers always receive copies.
type MemoryAccountRepo struct {
	mu         sync.RWMutex
	byID       map[string]*model.Account
	byUsername map[string]string
	byEmail    map[string]string
}

func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		byID:       make(map[string]*model.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (r *MemoryAccountRepo) Create(_ context.Context, a *model.Account) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc := cloneAccount(a)
	acc.Email = normalizeEmail(acc.Email)
	if _, ok := r.byUsername[acc.Username]; ok {
		return nil, &DuplicateError{Field: "username"}
	}
	if _, ok := r.byEmail[acc.Email]; ok {
		return nil, &DuplicateError{Field: "email"}
	}

	acc.ID = uuid.NewString()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	acc.UpdatedAt = acc.CreatedAt

	r.byID[acc.ID] = acc
	r.byUsername[acc.Username] = acc.ID
	r.byEmail[acc.Email] = acc.ID
	return cloneAccount(acc), nil
}

func (r *MemoryAccountRepo) FindByUsernameOrEmail(_ context.Context, username, email string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byUsername[username]; ok {
		return cloneAccount(r.byID[id]), nil
	}
	if id, ok := r.byEmail[normalizeEmail(email)]; ok {
		return cloneAccount(r.byID[id]), nil
	}
	return nil, ErrNotFound
}

func (r *MemoryAccountRepo) FindByUsername(_ context.Context, username string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(r.byID[id]), nil
}

func (r *MemoryAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (r *MemoryAccountRepo) UpdateCredential(_ context.Context, id, hash string, changedAt time.Time) error {
	return r.update(id, func(a *model.Account) {
		a.PasswordHash = hash
		a.PasswordChangedAt = &changedAt
		a.UpdatedAt = changedAt
	})
}

func (r *MemoryAccountRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(a *model.Account) { a.LastLogin = &at })
}

func (r *MemoryAccountRepo) UpdateStatus(_ context.Context, id string, active bool) error {
	return r.update(id, func(a *model.Account) {
		a.IsActive = active
		a.UpdatedAt = time.Now().UTC()
	})
}

func (r *MemoryAccountRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byUsername, a.Username)
	delete(r.byEmail, a.Email)
	delete(r.byID, id)
	return nil
}

func (r *MemoryAccountRepo) update(id string, fn func(*model.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(a)
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	cp := *a
	if a.PasswordChangedAt != nil {
		t := *a.PasswordChangedAt
		cp.PasswordChangedAt = &t
	}
	if a.LastLogin != nil {
		t := *a.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}
