package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/health"
	"github.com/horike37/serverless-application/pkg/httputil"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/verification"
	"github.com/horike37/serverless-application/services/user/internal/domain"
	"github.com/horike37/serverless-application/services/user/internal/identity"
	"github.com/horike37/serverless-application/services/user/internal/provider"
	"github.com/horike37/serverless-application/services/user/internal/secret"
	"github.com/horike37/serverless-application/services/user/internal/service"
)

// ============================================================================
// Mock Repositories
// ============================================================================

type mockProfileRepo struct {
	mock.Mock
}

func (m *mockProfileRepo) Create(ctx context.Context, u *domain.PlatformUser) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockProfileRepo) GetByID(ctx context.Context, id string) (*domain.PlatformUser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PlatformUser), args.Error(1)
}

func (m *mockProfileRepo) UpdateInfo(ctx context.Context, id, name, intro string) (*domain.PlatformUser, error) {
	args := m.Called(ctx, id, name, intro)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PlatformUser), args.Error(1)
}

type mockCredentialRepo struct {
	mock.Mock
}

func (m *mockCredentialRepo) Create(ctx context.Context, c *domain.FederatedCredential) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockCredentialRepo) Get(ctx context.Context, id string) (*domain.FederatedCredential, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FederatedCredential), args.Error(1)
}

type mockAliasRepo struct {
	mock.Mock
}

func (m *mockAliasRepo) GetAlias(ctx context.Context, id string) (string, bool, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Bool(1), args.Error(2)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishProfileCreated(ctx context.Context, u *domain.PlatformUser, p domain.Provider) error {
	return m.Called(ctx, u, p).Error(0)
}

func (m *mockEvents) PublishProfileUpdated(ctx context.Context, u *domain.PlatformUser) error {
	return m.Called(ctx, u).Error(0)
}

// ============================================================================
// Test Helpers
// ============================================================================

type stubResolver struct {
	p   domain.Provider
	ext *domain.ExternalIdentity
	err error
}

func (s stubResolver) Provider() domain.Provider { return s.p }

func (s stubResolver) AuthorizationURL(context.Context) (string, error) {
	return "https://api.twitter.com/oauth/authenticate?oauth_token=req-1", nil
}

func (s stubResolver) Resolve(context.Context, provider.Callback) (*domain.ExternalIdentity, error) {
	return s.ext, s.err
}

// failingStore fails every existence check with err.
type failingStore struct {
	identity.Store
	err error
}

func (f failingStore) Exists(context.Context, string) (bool, error) { return false, f.err }

type testEnv struct {
	idp         *identity.Memory
	profiles    *mockProfileRepo
	credentials *mockCredentialRepo
	aliases     *mockAliasRepo
	events      *mockEvents
	router      http.Handler
}

const (
	verifiedToken   = "verified-token"
	unverifiedToken = "unverified-token"
)

func boolPtr(b bool) *bool { return &b }

func testValidator() middleware.TokenValidator {
	return middleware.TokenValidatorFunc(func(_ context.Context, token string) (*middleware.Claims, error) {
		switch token {
		case verifiedToken:
			return &middleware.Claims{UserID: "alice", Verification: verification.Claims{
				PhoneNumberVerified: boolPtr(true), EmailVerified: boolPtr(true),
			}}, nil
		case unverifiedToken:
			return &middleware.Claims{UserID: "alice", Verification: verification.Claims{
				PhoneNumberVerified: boolPtr(false), EmailVerified: boolPtr(true),
			}}, nil
		default:
			return nil, errors.New("bad token")
		}
	})
}

func newTestEnv(t *testing.T, idp identity.Store, resolvers ...provider.Resolver) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	sealer, err := secret.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	env := &testEnv{
		idp:         identity.NewMemory(),
		profiles:    &mockProfileRepo{},
		credentials: &mockCredentialRepo{},
		aliases:     &mockAliasRepo{},
		events:      &mockEvents{},
	}
	if idp == nil {
		idp = env.idp
	}

	fed := service.NewFederationService(idp, env.profiles, env.credentials, env.aliases, sealer, env.events, logger, resolvers...)
	users := service.NewUserService(idp, env.profiles, env.events, logger)

	env.router = NewRouter(RouterConfig{
		Federation:     fed,
		Users:          users,
		TokenValidator: testValidator(),
		Gate:           verification.Gate{AllowLegacySessions: true},
		Health:         health.NewHandler("user-service"),
		ServiceName:    "user-service",
		Logger:         logger,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) addUser(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, e.idp.CreateUser(context.Background(), identity.CreateUserInput{UserID: userID, TemporaryPassword: "tmp"}))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NoError(t, json.Unmarshal(resp.Data, dst))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func twitterResolver() stubResolver {
	return stubResolver{p: domain.ProviderTwitter, ext: &domain.ExternalIdentity{
		Provider:    domain.ProviderTwitter,
		ExternalID:  "42",
		ScreenName:  "taro",
		DisplayName: "Taro",
		Email:       "taro@example.org",
	}}
}

// ============================================================================
// Login Tests
// ============================================================================

func TestAuthorizationURL(t *testing.T) {
	env := newTestEnv(t, nil, twitterResolver())

	rec := env.do(t, http.MethodGet, "/api/v1/login/twitter/authorization_url", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got AuthorizationURLResponse
	decodeData(t, rec, &got)
	assert.Contains(t, got.URL, "oauth_token=req-1")
}

func TestAuthorizationURL_UnknownOrDisabledProvider(t *testing.T) {
	env := newTestEnv(t, nil, twitterResolver())

	for _, path := range []string{
		"/api/v1/login/facebook/authorization_url",
		"/api/v1/login/line/authorization_url",
	} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestLogin_ProvisionsOnFirstLogin(t *testing.T) {
	env := newTestEnv(t, nil, twitterResolver())
	env.aliases.On("GetAlias", mock.Anything, "Twitter-42").Return("", false, nil)
	env.profiles.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.PlatformUser) bool {
		return u.UserID == "Twitter-42" && u.DisplayName == "Taro"
	})).Return(nil)
	env.credentials.On("Create", mock.Anything, mock.AnythingOfType("*domain.FederatedCredential")).Return(nil)
	env.events.On("PublishProfileCreated", mock.Anything, mock.Anything, domain.ProviderTwitter).Return(nil)

	rec := env.do(t, http.MethodPost, "/api/v1/login/twitter", "", TwitterLoginRequest{OAuthToken: "req-1", OAuthVerifier: "v"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got LoginResponse
	decodeData(t, rec, &got)
	assert.Equal(t, "Twitter-42", got.UserID)
	assert.Equal(t, "provisioned", got.Outcome)
	assert.False(t, got.HasUserID)
	assert.NotEmpty(t, got.AccessToken)
	assert.NotEmpty(t, got.IDToken)
	assert.NotEmpty(t, got.RefreshToken)
	env.profiles.AssertExpectations(t)
	env.credentials.AssertExpectations(t)
}

func TestLogin_ConcurrentWriteConflict(t *testing.T) {
	env := newTestEnv(t, nil, twitterResolver())
	env.aliases.On("GetAlias", mock.Anything, "Twitter-42").Return("", false, nil)
	env.profiles.On("Create", mock.Anything, mock.Anything).
		Return(apperrors.AlreadyExists("user", "user_id", "Twitter-42"))

	rec := env.do(t, http.MethodPost, "/api/v1/login/twitter", "", TwitterLoginRequest{OAuthToken: "req-1", OAuthVerifier: "v"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "RECORD_ALREADY_EXISTS", errorCode(t, rec))
	env.credentials.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLogin_ProviderErrorKeepsCode(t *testing.T) {
	throttled := &identity.ProviderError{Op: "AdminGetUser", Code: "TooManyRequestsException", Message: "Rate exceeded"}
	env := newTestEnv(t, failingStore{Store: identity.NewMemory(), err: throttled}, twitterResolver())

	rec := env.do(t, http.MethodPost, "/api/v1/login/twitter", "", TwitterLoginRequest{OAuthToken: "req-1", OAuthVerifier: "v"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "TooManyRequestsException", errorCode(t, rec))
}

func TestLogin_ResolverRejection(t *testing.T) {
	r := twitterResolver()
	r.err = apperrors.Gone("request token expired")
	env := newTestEnv(t, nil, r)

	rec := env.do(t, http.MethodPost, "/api/v1/login/twitter", "", TwitterLoginRequest{OAuthToken: "old", OAuthVerifier: "v"})

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestLogin_RequestValidation(t *testing.T) {
	line := stubResolver{p: domain.ProviderLINE}
	env := newTestEnv(t, nil, twitterResolver(), line)

	tests := []struct {
		name string
		path string
		body any
		code string
	}{
		{name: "twitter missing verifier", path: "/api/v1/login/twitter", body: map[string]string{"oauth_token": "t"}, code: "VALIDATION_ERROR"},
		{name: "line missing state", path: "/api/v1/login/line", body: map[string]string{"code": "c"}, code: "VALIDATION_ERROR"},
		{name: "malformed json", path: "/api/v1/login/line", body: `{"code":`, code: "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

// ============================================================================
// User Tests
// ============================================================================

func TestAvailability(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "taken-id")

	tests := []struct {
		userID    string
		status    int
		available bool
	}{
		{userID: "free-id", status: http.StatusOK, available: true},
		{userID: "taken-id", status: http.StatusOK, available: false},
		{userID: "admin", status: http.StatusBadRequest},
		{userID: "Twitter-1", status: http.StatusBadRequest},
		{userID: "a--b", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/users/"+tt.userID+"/availability", "", nil)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				var got service.Availability
				decodeData(t, rec, &got)
				assert.Equal(t, tt.available, got.Available)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "alice")
	env.profiles.On("GetByID", mock.Anything, "alice").
		Return(&domain.PlatformUser{UserID: "alice", DisplayName: "Alice"}, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/users/alice/info", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	decodeData(t, rec, &got)
	assert.Equal(t, "alice", got["user_id"])
	assert.Equal(t, "Alice", got["user_display_name"])
	assert.Equal(t, "FORCE_CHANGE_PASSWORD", got["status"])
}

func TestInfo_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/users/nobody/info", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RECORD_NOT_FOUND", errorCode(t, rec))
}

func TestUpdatePhoneNumber(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "alice")

	rec := env.do(t, http.MethodPut, "/api/v1/me/phone_number", unverifiedToken, UpdatePhoneNumberRequest{PhoneNumber: "+819012345678"})

	require.Equal(t, http.StatusNoContent, rec.Code)
	u, err := env.idp.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "+819012345678", u.Attribute(identity.AttrPhoneNumber))
}

func TestUpdatePhoneNumber_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "alice")

	rec := env.do(t, http.MethodPut, "/api/v1/me/phone_number", "", UpdatePhoneNumberRequest{PhoneNumber: "+819012345678"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/me/phone_number", "bogus", UpdatePhoneNumberRequest{PhoneNumber: "+819012345678"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/me/phone_number", verifiedToken, UpdatePhoneNumberRequest{PhoneNumber: "+815012345678"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestDeletePhoneNumber(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "alice")
	require.NoError(t, env.idp.UpdateAttribute(context.Background(), "alice", identity.AttrPhoneNumber, "+819012345678"))

	rec := env.do(t, http.MethodDelete, "/api/v1/me/phone_number", verifiedToken, nil)

	require.Equal(t, http.StatusNoContent, rec.Code)
	u, err := env.idp.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, u.Attribute(identity.AttrPhoneNumber))
}

func TestUpdateInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	updated := &domain.PlatformUser{UserID: "alice", DisplayName: "Alice", SelfIntroduction: "hi"}
	env.profiles.On("UpdateInfo", mock.Anything, "alice", "Alice", "hi").Return(updated, nil)
	env.events.On("PublishProfileUpdated", mock.Anything, updated).Return(nil)

	intro := "hi"
	rec := env.do(t, http.MethodPut, "/api/v1/me/info", verifiedToken, UpdateInfoRequest{UserDisplayName: "Alice", SelfIntroduction: &intro})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got domain.PlatformUser
	decodeData(t, rec, &got)
	assert.Equal(t, "Alice", got.DisplayName)
	env.events.AssertExpectations(t)
}

func TestUpdateInfo_RequiresVerifiedSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/me/info", unverifiedToken, UpdateInfoRequest{UserDisplayName: "Alice"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_VERIFIED_USER", errorCode(t, rec))
	env.profiles.AssertNotCalled(t, "UpdateInfo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateInfo_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/me/info", verifiedToken, UpdateInfoRequest{UserDisplayName: "0123456789012345678901234567890"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health/live", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
