package repository

import (
	"context"

	"github.com/horike37/serverless-application/services/user/internal/domain"
)

// ProfileRepository persists platform user profiles.
type ProfileRepository interface {
	// Create inserts a profile. It fails with apperrors.ErrAlreadyExists if
	// a profile with the same user id exists.
	Create(ctx context.Context, user *domain.PlatformUser) error

	// GetByID returns the profile or apperrors.ErrNotFound.
	GetByID(ctx context.Context, userID string) (*domain.PlatformUser, error)

	// UpdateInfo changes the display name and self introduction and returns
	// the updated row.
	UpdateInfo(ctx context.Context, userID, displayName, selfIntroduction string) (*domain.PlatformUser, error)
}

// CredentialRepository persists federated-login credentials.
type CredentialRepository interface {
	// Create inserts a credential, failing with apperrors.ErrAlreadyExists
	// when one is already stored for the user id.
	Create(ctx context.Context, cred *domain.FederatedCredential) error

	// Get returns the credential or apperrors.ErrNotFound.
	Get(ctx context.Context, userID string) (*domain.FederatedCredential, error)
}

// AliasRepository resolves federated user ids to the account they were
// linked to. It is read-only.
type AliasRepository interface {
	// GetAlias returns the alias target and true, or "" and false when the
	// user id has no alias.
	GetAlias(ctx context.Context, userID string) (string, bool, error)
}

// OAuthStateStore holds the short-lived values that tie an OAuth callback
// to the authorization request that started it.
type OAuthStateStore interface {
	// SaveRequestSecret stores the OAuth 1.0a request token secret.
	SaveRequestSecret(ctx context.Context, requestToken, secret string) error

	// TakeRequestSecret returns and removes the secret. It fails with
	// apperrors.ErrGone when the token is unknown or expired.
	TakeRequestSecret(ctx context.Context, requestToken string) (string, error)

	// SaveState stores an OAuth 2.0 state value.
	SaveState(ctx context.Context, state string) error

	// ConsumeState removes the state, failing with apperrors.ErrGone when
	// it is unknown, expired or already used.
	ConsumeState(ctx context.Context, state string) error
}
