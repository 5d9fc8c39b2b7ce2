package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"maps"
	"sync"
	"time"

	"github.com/horike37/serverless-application/services/user/internal/domain"
)

const (
	statusForceChangePassword = "FORCE_CHANGE_PASSWORD"
	statusConfirmed           = "CONFIRMED"
)

type memoryUser struct {
	password   string
	status     string
	attributes map[string]string
	createdAt  time.Time
	session    string
}

// Memory is an in-process Store for local runs and tests. It models the
// temporary password challenge and the provider error codes the service
// reacts to.
type Memory struct {
	mu    sync.Mutex
	users map[string]*memoryUser
	now   func() time.Time
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]*memoryUser), now: time.Now}
}

// GetUser implements Store.
func (m *Memory) GetUser(_ context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, userNotFound("AdminGetUser")
	}
	return &User{
		UserID:     userID,
		Status:     u.status,
		Enabled:    true,
		Attributes: maps.Clone(u.attributes),
		CreatedAt:  u.createdAt,
	}, nil
}

// Exists implements Store.
func (m *Memory) Exists(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[userID]
	return ok, nil
}

// Authenticate implements Store.
func (m *Memory) Authenticate(_ context.Context, userID, password string, _ map[string]string) (*AuthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, userNotFound("AdminInitiateAuth")
	}
	if u.password != password {
		return nil, &ProviderError{Op: "AdminInitiateAuth", Kind: KindProvider, Code: "NotAuthorizedException", Message: "Incorrect username or password."}
	}
	if u.status == statusForceChangePassword {
		u.session = randomToken()
		return &AuthResult{ChallengeName: ChallengeNewPasswordRequired, Session: u.session}, nil
	}
	return &AuthResult{Tokens: issueTokens()}, nil
}

// CreateUser implements Store.
func (m *Memory) CreateUser(_ context.Context, in CreateUserInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[in.UserID]; ok {
		return &ProviderError{Op: "AdminCreateUser", Kind: KindUserExists, Code: "UsernameExistsException", Message: "User account already exists"}
	}
	attrs := make(map[string]string, len(in.Attributes))
	maps.Copy(attrs, in.Attributes)
	m.users[in.UserID] = &memoryUser{
		password:   in.TemporaryPassword,
		status:     statusForceChangePassword,
		attributes: attrs,
		createdAt:  m.now().UTC(),
	}
	return nil
}

// RespondToNewPasswordChallenge implements Store.
func (m *Memory) RespondToNewPasswordChallenge(_ context.Context, userID, session, newPassword string, _ map[string]string) (*domain.Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, userNotFound("AdminRespondToAuthChallenge")
	}
	if u.session == "" || u.session != session {
		return nil, &ProviderError{Op: "AdminRespondToAuthChallenge", Kind: KindProvider, Code: "CodeMismatchException", Message: "Invalid session for the user."}
	}
	u.password = newPassword
	u.status = statusConfirmed
	u.session = ""
	return issueTokens(), nil
}

// UpdateAttribute implements Store.
func (m *Memory) UpdateAttribute(_ context.Context, userID, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return userNotFound("AdminUpdateUserAttributes")
	}
	u.attributes[name] = value
	return nil
}

// Ping implements the readiness check.
func (m *Memory) Ping(context.Context) error { return nil }

func userNotFound(op string) *ProviderError {
	return &ProviderError{Op: op, Kind: KindUserNotFound, Code: "UserNotFoundException", Message: "User does not exist."}
}

func issueTokens() *domain.Tokens {
	return &domain.Tokens{
		AccessToken:  randomToken(),
		IDToken:      randomToken(),
		RefreshToken: randomToken(),
		ExpiresIn:    3600,
	}
}

func randomToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
