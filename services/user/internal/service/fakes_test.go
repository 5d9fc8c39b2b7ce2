package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/services/user/internal/domain"
	"github.com/horike37/serverless-application/services/user/internal/identity"
	"github.com/horike37/serverless-application/services/user/internal/provider"
	"github.com/horike37/serverless-application/services/user/internal/secret"
)

// --- In-memory repositories ---

type memProfiles struct {
	mu    sync.Mutex
	users map[string]*domain.PlatformUser
}

func newMemProfiles() *memProfiles {
	return &memProfiles{users: map[string]*domain.PlatformUser{}}
}

func (m *memProfiles) Create(_ context.Context, u *domain.PlatformUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.UserID]; ok {
		return apperrors.AlreadyExists("user", "user_id", u.UserID)
	}
	cp := *u
	m.users[u.UserID] = &cp
	return nil
}

func (m *memProfiles) GetByID(_ context.Context, id string) (*domain.PlatformUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *memProfiles) UpdateInfo(_ context.Context, id, name, intro string) (*domain.PlatformUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	u.DisplayName, u.SelfIntroduction, u.SyncIndex = name, intro, true
	cp := *u
	return &cp, nil
}

func (m *memProfiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

type memCredentials struct {
	mu    sync.Mutex
	creds map[string]*domain.FederatedCredential
}

func newMemCredentials() *memCredentials {
	return &memCredentials{creds: map[string]*domain.FederatedCredential{}}
}

func (m *memCredentials) Create(_ context.Context, c *domain.FederatedCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[c.UserID]; ok {
		return apperrors.AlreadyExists("federated credential", "user_id", c.UserID)
	}
	cp := *c
	m.creds[c.UserID] = &cp
	return nil
}

func (m *memCredentials) Get(_ context.Context, id string) (*domain.FederatedCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok {
		return nil, apperrors.NotFound("federated credential", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memCredentials) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creds)
}

type memAliases map[string]string

func (m memAliases) GetAlias(_ context.Context, id string) (string, bool, error) {
	a, ok := m[id]
	return a, ok, nil
}

// --- Event publisher mock ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishProfileCreated(ctx context.Context, u *domain.PlatformUser, p domain.Provider) error {
	args := m.Called(ctx, u, p)
	return args.Error(0)
}

func (m *mockEvents) PublishProfileUpdated(ctx context.Context, u *domain.PlatformUser) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

// --- Identity store with hooks ---

type hookedStore struct {
	identity.Store
	onExists  func()
	existsErr error
	respond   func() error
}

func (h *hookedStore) Exists(ctx context.Context, id string) (bool, error) {
	if h.onExists != nil {
		h.onExists()
	}
	if h.existsErr != nil {
		return false, h.existsErr
	}
	return h.Store.Exists(ctx, id)
}

func (h *hookedStore) RespondToNewPasswordChallenge(ctx context.Context, id, session, pw string, md map[string]string) (*domain.Tokens, error) {
	if h.respond != nil {
		if err := h.respond(); err != nil {
			return nil, err
		}
	}
	return h.Store.RespondToNewPasswordChallenge(ctx, id, session, pw, md)
}

// --- Resolver stub ---

type stubResolver struct {
	p   domain.Provider
	ext *domain.ExternalIdentity
	err error
}

func (s stubResolver) Provider() domain.Provider { return s.p }

func (s stubResolver) AuthorizationURL(context.Context) (string, error) {
	return "https://provider.example/authorize?state=x", nil
}

func (s stubResolver) Resolve(context.Context, provider.Callback) (*domain.ExternalIdentity, error) {
	return s.ext, s.err
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSealer(t *testing.T) *secret.Sealer {
	t.Helper()
	s, err := secret.NewSealer(make([]byte, 32))
	require.NoError(t, err)
	return s
}

type federationFixture struct {
	idp      *identity.Memory
	store    *hookedStore
	profiles *memProfiles
	creds    *memCredentials
	aliases  memAliases
	events   *mockEvents
	sealer   *secret.Sealer
	svc      *FederationService
}

func newFederationFixture(t *testing.T, resolvers ...provider.Resolver) *federationFixture {
	t.Helper()
	f := &federationFixture{
		idp:      identity.NewMemory(),
		profiles: newMemProfiles(),
		creds:    newMemCredentials(),
		aliases:  memAliases{},
		events:   &mockEvents{},
		sealer:   newTestSealer(t),
	}
	f.store = &hookedStore{Store: f.idp}
	f.events.On("PublishProfileCreated", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.svc = NewFederationService(f.store, f.profiles, f.creds, f.aliases, f.sealer, f.events, newTestLogger(), resolvers...)
	return f
}

// seedAccount creates a confirmed identity provider account with a
// stored credential, as an earlier login would have left it.
func (f *federationFixture) seedAccount(t *testing.T, userID, password string) {
	t.Helper()
	f.seedIdentity(t, userID, password)
	f.storeCredential(t, userID, password)
}

// seedIdentity creates a confirmed identity provider account only, as a
// native signup would.
func (f *federationFixture) seedIdentity(t *testing.T, userID, password string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.idp.CreateUser(ctx, identity.CreateUserInput{UserID: userID, TemporaryPassword: "tmp"}))
	res, err := f.idp.Authenticate(ctx, userID, "tmp", nil)
	require.NoError(t, err)
	_, err = f.idp.RespondToNewPasswordChallenge(ctx, userID, res.Session, password, nil)
	require.NoError(t, err)
}

// storeCredential seals password and stores it under userID.
func (f *federationFixture) storeCredential(t *testing.T, userID, password string) {
	t.Helper()
	sealed, err := f.sealer.Seal(userID, password)
	require.NoError(t, err)
	require.NoError(t, f.creds.Create(context.Background(), &domain.FederatedCredential{UserID: userID, Password: sealed, Provider: domain.ProviderTwitter}))
}
