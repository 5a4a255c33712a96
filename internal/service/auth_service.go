// Package service contains the authentication flow: signup, login, password
// change and the account administration used by admin routes. It owns every
// credential decision; handlers only decode input and encode results.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/auth"
	"github.com/iliyamo/account-authority/internal/logging"
	"github.com/iliyamo/account-authority/internal/model"
	"github.com/iliyamo/account-authority/internal/queue"
	"github.com/iliyamo/account-authority/internal/repository"
)

// DefaultMinPasswordLength applies when Options leaves it unset.
const DefaultMinPasswordLength = 8

// Messages shared with the access gate and tests.
const (
	MsgInvalidCredentials = "invalid credentials"
	MsgAccountDeactivated = "account deactivated"
	MsgWrongPassword      = "current password is incorrect"
	MsgAccountNotFound    = "account not found"
)

// AccountStore is the persistence the flow depends on. Lookups return
// repository.ErrNotFound for absence; Create returns a
// *repository.DuplicateError when a unique constraint is violated.
type AccountStore interface {
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.Account, error)
	FindByUsername(ctx context.Context, username string) (*model.Account, error)
	FindByID(ctx context.Context, id string) (*model.Account, error)
	Create(ctx context.Context, a *model.Account) (*model.Account, error)
	UpdateCredential(ctx context.Context, id, hash string, changedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// Options tunes the flow. Zero values select defaults.
type Options struct {
	TokenTTL          time.Duration
	MinPasswordLength int
	Now               func() time.Time
}

// AuthService implements the authentication flow.
type AuthService struct {
	store  AccountStore
	hasher auth.PasswordHasher
	tokens *auth.TokenService
	events queue.Publisher
	logger *slog.Logger

	ttl       time.Duration
	minLength int
	now       func() time.Time
	dummyHash string
}

// NewAuthService wires the flow. events and logger may be nil.
func NewAuthService(store AccountStore, hasher auth.PasswordHasher, tokens *auth.TokenService,
	events queue.Publisher, logger *slog.Logger, opts Options,
) (*AuthService, error) {
	if store == nil || hasher == nil || tokens == nil {
		return nil, apperr.New(apperr.Configuration, "auth service requires a store, a hasher and a token service")
	}
	if events == nil {
		events = queue.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = DefaultMinPasswordLength
	}
	if opts.MinPasswordLength > auth.MaxPasswordBytes {
		return nil, apperr.Newf(apperr.Configuration, "minimum password length %d exceeds %d bytes", opts.MinPasswordLength, auth.MaxPasswordBytes)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, err, "compute dummy hash")
	}

	return &AuthService{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		events:    events,
		logger:    logger,
		ttl:       opts.TokenTTL,
		minLength: opts.MinPasswordLength,
		now:       opts.Now,
		dummyHash: dummy,
	}, nil
}

// Result is an authenticated account together with its fresh token.
type Result struct {
	Account model.Account
	Token   auth.Token
}

// Signup registers a User account and returns it with a token.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*Result, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	switch {
	case err == nil:
		if existing.Username == in.Username {
			return nil, apperr.ConflictOn("username")
		}
		return nil, apperr.ConflictOn("email")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, s.storeFailure("signup lookup", err)
	}

	if err := s.checkPolicy(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, &model.Account{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Age:          in.Age,
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return nil, apperr.ConflictOn(dup.Field)
		}
		return nil, s.storeFailure("create account", err)
	}

	tok, err := s.tokens.Issue(created.ID, created.Role, created.Username, s.ttl)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, queue.AccountRegisteredQueue, queue.AccountRegisteredEvent{
		AccountID:    created.ID,
		Username:     created.Username,
		Email:        created.Email,
		Role:         string(created.Role),
		RegisteredAt: created.CreatedAt.UTC().Format(time.RFC3339),
	})
	s.logger.InfoContext(ctx, "account registered", "account_id", created.ID, "username", created.Username)

	return &Result{Account: created.Sanitized(), Token: tok}, nil
}

// Login verifies a username and password. Unknown usernames and wrong
// passwords fail identically and take the same time.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Result, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.New(apperr.Validation, "username and password are required")
	}

	acc, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, apperr.New(apperr.Authentication, MsgInvalidCredentials)
		}
		return nil, s.storeFailure("login lookup", err)
	}

	if !acc.IsActive {
		return nil, apperr.New(apperr.Authentication, MsgAccountDeactivated)
	}
	if !s.hasher.Verify(password, acc.PasswordHash) {
		return nil, apperr.New(apperr.Authentication, MsgInvalidCredentials)
	}

	now := s.now().UTC()
	if err := s.store.UpdateLastLogin(ctx, acc.ID, now); err != nil {
		s.logger.WarnContext(ctx, "record last login failed", "account_id", acc.ID, "error", err)
	} else {
		acc.LastLogin = &now
	}

	tok, err := s.tokens.Issue(acc.ID, acc.Role, acc.Username, s.ttl)
	if err != nil {
		return nil, err
	}
	return &Result{Account: acc.Sanitized(), Token: tok}, nil
}

// ChangePassword replaces the credential of accountID after re-verifying the
// current one. Tokens issued before the change stop passing the gate; the
// returned token keeps the caller signed in.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, current, next string) (auth.Token, error) {
	if current == "" || next == "" {
		return auth.Token{}, apperr.New(apperr.Validation, "current and new password are required")
	}

	acc, err := s.findByID(ctx, accountID)
	if err != nil {
		return auth.Token{}, err
	}
	if !s.hasher.Verify(current, acc.PasswordHash) {
		return auth.Token{}, apperr.New(apperr.Authentication, MsgWrongPassword)
	}
	if current == next {
		return auth.Token{}, apperr.New(apperr.Validation, "new password must differ from the current one").WithField("newPassword")
	}
	if err := s.checkPolicy(next); err != nil {
		return auth.Token{}, err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return auth.Token{}, err
	}
	changedAt := s.now().UTC()
	if err := s.store.UpdateCredential(ctx, acc.ID, hash, changedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return auth.Token{}, apperr.New(apperr.NotFound, MsgAccountNotFound)
		}
		return auth.Token{}, s.storeFailure("update credential", err)
	}
	s.logger.InfoContext(ctx, "password changed", "account_id", acc.ID)

	return s.tokens.Issue(acc.ID, acc.Role, acc.Username, s.ttl)
}

// GetAccount returns the sanitized account.
func (s *AuthService) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	acc, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := acc.Sanitized()
	return &out, nil
}

// DeleteAccount removes an account. Tokens it already holds stop passing the
// gate because the account no longer resolves.
func (s *AuthService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.NotFound, MsgAccountNotFound)
		}
		return s.storeFailure("delete account", err)
	}
	s.logger.InfoContext(ctx, "account deleted", "account_id", id)
	return nil
}

// SetActive deactivates or reactivates an account.
func (s *AuthService) SetActive(ctx context.Context, id string, active bool) (*model.Account, error) {
	if err := s.store.UpdateStatus(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, MsgAccountNotFound)
		}
		return nil, s.storeFailure("update status", err)
	}
	s.logger.InfoContext(ctx, "account status changed", "account_id", id, "active", active)
	return s.GetAccount(ctx, id)
}

// SeedAdmin creates an Admin account unless the username already exists.
// It is the only path that assigns the Admin role. created reports whether
// a new account was written.
func (s *AuthService) SeedAdmin(ctx context.Context, in SignupInput) (acc *model.Account, created bool, err error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.store.FindByUsername(ctx, in.Username)
	if err == nil {
		out := existing.Sanitized()
		return &out, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, s.storeFailure("seed lookup", err)
	}

	if err := s.checkPolicy(in.Password); err != nil {
		return nil, false, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, false, err
	}
	a, err := s.store.Create(ctx, &model.Account{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Age:          in.Age,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return nil, false, apperr.ConflictOn(dup.Field)
		}
		return nil, false, s.storeFailure("create admin", err)
	}
	out := a.Sanitized()
	return &out, true, nil
}

func (s *AuthService) findByID(ctx context.Context, id string) (*model.Account, error) {
	acc, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, MsgAccountNotFound)
		}
		return nil, s.storeFailure("find account", err)
	}
	return acc, nil
}

func (s *AuthService) checkPolicy(password string) error {
	if utf8.RuneCountInString(password) < s.minLength {
		return apperr.Newf(apperr.Validation, "password must be at least %d characters", s.minLength).WithField("password")
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperr.Newf(apperr.Validation, "password must be at most %d bytes", auth.MaxPasswordBytes).WithField("password")
	}
	return nil
}

// storeFailure logs an unexpected store error with its structured context
// and hides it behind an internal error.
func (s *AuthService) storeFailure(op string, err error) error {
	logging.LogError(s.logger, "account store failed", err, "op", op)
	return apperr.Wrap(apperr.Internal, err, op)
}

func (s *AuthService) publish(ctx context.Context, queueName string, event any) {
	if err := s.events.Publish(ctx, queueName, event); err != nil {
		s.logger.WarnContext(ctx, "publish event failed", "queue", queueName, "error", err)
	}
}
