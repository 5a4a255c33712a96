package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/auth"
	"github.com/iliyamo/account-authority/internal/model"
	"github.com/iliyamo/account-authority/internal/queue"
	"github.com/iliyamo/account-authority/internal/repository"
	"github.com/iliyamo/account-authority/internal/service"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	queues []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, q string, ev any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues = append(p.queues, q)
	p.events = append(p.events, ev)
	return p.err
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	service.AccountStore
	failFind        error
	failCreate      error
	failLastLogin   error
	failCredentials error
}

func (s *failingStore) FindByUsernameOrEmail(ctx context.Context, u, e string) (*model.Account, error) {
	if s.failFind != nil {
		return nil, s.failFind
	}
	return s.AccountStore.FindByUsernameOrEmail(ctx, u, e)
}

func (s *failingStore) FindByUsername(ctx context.Context, u string) (*model.Account, error) {
	if s.failFind != nil {
		return nil, s.failFind
	}
	return s.AccountStore.FindByUsername(ctx, u)
}

func (s *failingStore) Create(ctx context.Context, a *model.Account) (*model.Account, error) {
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	return s.AccountStore.Create(ctx, a)
}

func (s *failingStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if s.failLastLogin != nil {
		return s.failLastLogin
	}
	return s.AccountStore.UpdateLastLogin(ctx, id, at)
}

func (s *failingStore) UpdateCredential(ctx context.Context, id, hash string, at time.Time) error {
	if s.failCredentials != nil {
		return s.failCredentials
	}
	return s.AccountStore.UpdateCredential(ctx, id, hash, at)
}

type fixture struct {
	svc    *service.AuthService
	store  *repository.MemoryAccountRepo
	tokens *auth.TokenService
	clock  *fakeClock
	events *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

func newFixtureWithStore(t *testing.T, wrap func(service.AccountStore) service.AccountStore) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("service-test-secret", time.Hour)
	require.NoError(t, err)
	tokens = tokens.WithClock(clock.Now)

	store := repository.NewMemoryAccountRepo()
	var s service.AccountStore = store
	if wrap != nil {
		s = wrap(store)
	}
	events := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := service.NewAuthService(s, hasher, tokens, events, logger, service.Options{Now: clock.Now})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, tokens: tokens, clock: clock, events: events}
}

func alice() service.SignupInput {
	return service.SignupInput{Username: "alice", Email: "a@x.com", Password: "Str0ngPass!"}
}

func requireKind(t *testing.T, err error, kind apperr.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
	if msg != "" {
		assert.Equal(t, msg, apperr.MessageOf(err))
	}
}

func TestNewAuthServiceRequiresCollaborators(t *testing.T) {
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("k", 0)
	require.NoError(t, err)
	store := repository.NewMemoryAccountRepo()

	_, err = service.NewAuthService(nil, hasher, tokens, nil, nil, service.Options{})
	requireKind(t, err, apperr.Configuration, "")
	_, err = service.NewAuthService(store, nil, tokens, nil, nil, service.Options{})
	requireKind(t, err, apperr.Configuration, "")
	_, err = service.NewAuthService(store, hasher, nil, nil, nil, service.Options{})
	requireKind(t, err, apperr.Configuration, "")
	_, err = service.NewAuthService(store, hasher, tokens, nil, nil, service.Options{MinPasswordLength: 100})
	requireKind(t, err, apperr.Configuration, "")

	svc, err := service.NewAuthService(store, hasher, tokens, nil, nil, service.Options{})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestAliceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Signup(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Account.Username)
	assert.Equal(t, model.RoleUser, res.Account.Role)
	assert.True(t, res.Account.IsActive)
	assert.Empty(t, res.Account.PasswordHash)

	body, err := json.Marshal(res.Account)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "password")
	assert.NotContains(t, string(body), "$2a$")

	claims, err := f.tokens.Verify(res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, claims.Role)
	assert.Equal(t, res.Account.ID, claims.AccountID())

	_, err = f.svc.Signup(ctx, service.SignupInput{Username: "alice", Email: "other@x.com", Password: "Str0ngPass!"})
	requireKind(t, err, apperr.Conflict, "username already exists")
	assert.Equal(t, "username", apperr.FieldOf(err))

	_, err = f.svc.Login(ctx, "alice", "wrong")
	requireKind(t, err, apperr.Authentication, service.MsgInvalidCredentials)

	f.clock.Advance(time.Minute)
	login, err := f.svc.Login(ctx, "alice", "Str0ngPass!")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token.Value)
	require.NotNil(t, login.Account.LastLogin)
	assert.WithinDuration(t, f.clock.Now(), *login.Account.LastLogin, 0)

	stored, err := f.store.FindByID(ctx, res.Account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.WithinDuration(t, f.clock.Now(), *stored.LastLogin, 0)
}

func TestSignupConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, alice())
	require.NoError(t, err)

	t.Run("existing email names email", func(t *testing.T) {
		_, err := f.svc.Signup(ctx, service.SignupInput{Username: "alice2", Email: "A@X.com", Password: "Str0ngPass!"})
		requireKind(t, err, apperr.Conflict, "email already exists")
		assert.Equal(t, "email", apperr.FieldOf(err))
	})

	t.Run("username and email taken by different accounts names username", func(t *testing.T) {
		_, err := f.svc.Signup(ctx, service.SignupInput{Username: "bob", Email: "b@x.com", Password: "Str0ngPass!"})
		require.NoError(t, err)

		_, err = f.svc.Signup(ctx, service.SignupInput{Username: "alice", Email: "b@x.com", Password: "Str0ngPass!"})
		requireKind(t, err, apperr.Conflict, "username already exists")
		assert.Equal(t, "username", apperr.FieldOf(err))
	})

	t.Run("store-level duplicate maps to conflict", func(t *testing.T) {
		f := newFixtureWithStore(t, func(s service.AccountStore) service.AccountStore {
			return &failingStore{AccountStore: s, failCreate: &repository.DuplicateError{Field: "email"}}
		})
		_, err := f.svc.Signup(ctx, alice())
		requireKind(t, err, apperr.Conflict, "email already exists")
		assert.Equal(t, "email", apperr.FieldOf(err))
	})
}

func TestSignupConcurrentSameUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := alice()
			in.Email = string(rune('a'+i)) + "@race.io"
			_, err := f.svc.Signup(ctx, in)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.Is(err, apperr.Conflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, conflicts)
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		mut   func(*service.SignupInput)
		field string
	}{
		{"missing username", func(in *service.SignupInput) { in.Username = "" }, "username"},
		{"short username", func(in *service.SignupInput) { in.Username = "al" }, "username"},
		{"username starting with digit", func(in *service.SignupInput) { in.Username = "1alice" }, "username"},
		{"username with symbols", func(in *service.SignupInput) { in.Username = "ali-ce" }, "username"},
		{"missing email", func(in *service.SignupInput) { in.Email = "" }, "email"},
		{"malformed email", func(in *service.SignupInput) { in.Email = "not-an-email" }, "email"},
		{"display-name email", func(in *service.SignupInput) { in.Email = "Alice <a@x.com>" }, "email"},
		{"digits in first name", func(in *service.SignupInput) { in.FirstName = "Al1ce" }, "firstName"},
		{"symbols in last name", func(in *service.SignupInput) { in.LastName = "Sm!th" }, "lastName"},
		{"negative age", func(in *service.SignupInput) { in.Age = -1 }, "age"},
		{"implausible age", func(in *service.SignupInput) { in.Age = 151 }, "age"},
		{"missing password", func(in *service.SignupInput) { in.Password = "" }, "password"},
		{"short password", func(in *service.SignupInput) { in.Password = "short" }, "password"},
		{"short multibyte password", func(in *service.SignupInput) { in.Password = "密码密码" }, "password"},
		{"password over bcrypt limit", func(in *service.SignupInput) { in.Password = string(make([]byte, 73)) }, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := alice()
			tt.mut(&in)
			_, err := f.svc.Signup(ctx, in)
			requireKind(t, err, apperr.Validation, "")
			assert.Equal(t, tt.field, apperr.FieldOf(err))
		})
	}

	t.Run("accepts unicode names and trims input", func(t *testing.T) {
		res, err := f.svc.Signup(ctx, service.SignupInput{
			Username: " zoe_1 ", Email: " Zoe@Example.com ", FirstName: "Zoë", LastName: "de la Cruz",
			Password: "Str0ngPass!", Age: 42,
		})
		require.NoError(t, err)
		assert.Equal(t, "zoe_1", res.Account.Username)
		assert.Equal(t, "zoe@example.com", res.Account.Email)
		assert.Equal(t, 42, res.Account.Age)
	})

	t.Run("counts password length in characters", func(t *testing.T) {
		_, err := f.svc.Signup(ctx, service.SignupInput{Username: "mei", Email: "mei@x.com", Password: "密码密码密码密码"})
		require.NoError(t, err)
	})
}

func TestSignupPublishesRegistration(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Signup(context.Background(), alice())
	require.NoError(t, err)

	require.Equal(t, []string{queue.AccountRegisteredQueue}, f.events.queues)
	ev, ok := f.events.events[0].(queue.AccountRegisteredEvent)
	require.True(t, ok)
	assert.Equal(t, res.Account.ID, ev.AccountID)
	assert.Equal(t, "User", ev.Role)
	assert.Equal(t, "2026-03-01T12:00:00Z", ev.RegisteredAt)
}

func TestSignupSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	_, err := f.svc.Signup(context.Background(), alice())
	assert.NoError(t, err)
}

func TestSignupStoreFailureIsInternal(t *testing.T) {
	f := newFixtureWithStore(t, func(s service.AccountStore) service.AccountStore {
		return &failingStore{AccountStore: s, failFind: errors.New("connection refused")}
	})
	_, err := f.svc.Signup(context.Background(), alice())
	requireKind(t, err, apperr.Internal, "internal server error")
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, alice())
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "alice", "wrong-password")
	_, unknownUser := f.svc.Login(ctx, "mallory", "wrong-password")

	requireKind(t, wrongPassword, apperr.Authentication, service.MsgInvalidCredentials)
	requireKind(t, unknownUser, apperr.Authentication, service.MsgInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestLoginValidationAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Signup(ctx, alice())
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "", "x")
	requireKind(t, err, apperr.Validation, "")
	_, err = f.svc.Login(ctx, "alice", "")
	requireKind(t, err, apperr.Validation, "")
	_, err = f.svc.Login(ctx, "   ", "Str0ngPass!")
	requireKind(t, err, apperr.Validation, "")

	padded, err := f.svc.Login(ctx, " alice ", "Str0ngPass!")
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, padded.Account.ID)

	_, err = f.svc.SetActive(ctx, res.Account.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "alice", "Str0ngPass!")
	requireKind(t, err, apperr.Authentication, service.MsgAccountDeactivated)
}

func TestLoginSurvivesLastLoginFailure(t *testing.T) {
	f := newFixtureWithStore(t, func(s service.AccountStore) service.AccountStore {
		return &failingStore{AccountStore: s, failLastLogin: errors.New("read-only replica")}
	})
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, alice())
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "alice", "Str0ngPass!")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token.Value)
	assert.Nil(t, res.Account.LastLogin)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Signup(ctx, alice())
	require.NoError(t, err)
	id := res.Account.ID

	t.Run("wrong current password", func(t *testing.T) {
		_, err := f.svc.ChangePassword(ctx, id, "nope-nope", "An0therPass!")
		requireKind(t, err, apperr.Authentication, service.MsgWrongPassword)
	})

	t.Run("new password must differ", func(t *testing.T) {
		_, err := f.svc.ChangePassword(ctx, id, "Str0ngPass!", "Str0ngPass!")
		requireKind(t, err, apperr.Validation, "")
	})

	t.Run("new password must meet policy", func(t *testing.T) {
		_, err := f.svc.ChangePassword(ctx, id, "Str0ngPass!", "short")
		requireKind(t, err, apperr.Validation, "")
		assert.Equal(t, "password", apperr.FieldOf(err))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.svc.ChangePassword(ctx, "missing", "Str0ngPass!", "An0therPass!")
		requireKind(t, err, apperr.NotFound, "")
	})

	t.Run("success rotates credential and stamps change time", func(t *testing.T) {
		f.clock.Advance(2 * time.Second)
		tok, err := f.svc.ChangePassword(ctx, id, "Str0ngPass!", "An0therPass!")
		require.NoError(t, err)

		claims, err := f.tokens.Verify(tok.Value)
		require.NoError(t, err)
		stored, err := f.store.FindByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, stored.PasswordChangedAt)
		assert.WithinDuration(t, f.clock.Now(), *stored.PasswordChangedAt, 0)
		assert.False(t, stored.ChangedPasswordAfter(claims.IssuedAtTime()), "fresh token survives the change")

		oldClaims, err := f.tokens.Verify(res.Token.Value)
		require.NoError(t, err)
		assert.True(t, stored.ChangedPasswordAfter(oldClaims.IssuedAtTime()), "earlier token is stale")

		_, err = f.svc.Login(ctx, "alice", "Str0ngPass!")
		requireKind(t, err, apperr.Authentication, service.MsgInvalidCredentials)
		_, err = f.svc.Login(ctx, "alice", "An0therPass!")
		assert.NoError(t, err)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		f := newFixtureWithStore(t, func(s service.AccountStore) service.AccountStore {
			return &failingStore{AccountStore: s, failCredentials: errors.New("deadlock")}
		})
		res, err := f.svc.Signup(ctx, alice())
		require.NoError(t, err)
		_, err = f.svc.ChangePassword(ctx, res.Account.ID, "Str0ngPass!", "An0therPass!")
		requireKind(t, err, apperr.Internal, "")
	})
}

func TestAccountAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Signup(ctx, alice())
	require.NoError(t, err)
	id := res.Account.ID

	got, err := f.svc.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.PasswordHash)

	off, err := f.svc.SetActive(ctx, id, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	on, err := f.svc.SetActive(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, on.IsActive)

	require.NoError(t, f.svc.DeleteAccount(ctx, id))
	requireKind(t, f.svc.DeleteAccount(ctx, id), apperr.NotFound, service.MsgAccountNotFound)
	_, err = f.svc.GetAccount(ctx, id)
	requireKind(t, err, apperr.NotFound, "")
	_, err = f.svc.SetActive(ctx, id, true)
	requireKind(t, err, apperr.NotFound, "")
}

func TestSeedAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := service.SignupInput{Username: "root", Email: "root@example.com", Password: "Adm1nPassw0rd"}

	acc, created, err := f.svc.SeedAdmin(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RoleAdmin, acc.Role)

	again, created, err := f.svc.SeedAdmin(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, acc.ID, again.ID)

	res, err := f.svc.Login(ctx, "root", "Adm1nPassw0rd")
	require.NoError(t, err)
	claims, err := f.tokens.Verify(res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
}
