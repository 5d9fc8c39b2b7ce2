// Package identity is the boundary to the managed identity provider that
// owns credentials and issues session tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/horike37/serverless-application/services/user/internal/domain"
)

// Attribute names understood by the identity provider.
const (
	AttrEmail       = "email"
	AttrPhoneNumber = "phone_number"
)

// MetadataThirdPartyLogin is the client metadata key that tells the
// provider's auth triggers which federated provider started the login.
const MetadataThirdPartyLogin = "THIRD_PARTY_LOGIN"

// ChallengeNewPasswordRequired is returned by Authenticate for a user still
// holding its temporary password.
const ChallengeNewPasswordRequired = "NEW_PASSWORD_REQUIRED"

// User is the identity provider's view of an account.
type User struct {
	UserID     string
	Status     string
	Enabled    bool
	Attributes map[string]string
	CreatedAt  time.Time
}

// Attribute returns the named attribute or "".
func (u *User) Attribute(name string) string {
	if u == nil || u.Attributes == nil {
		return ""
	}
	return u.Attributes[name]
}

// CreateUserInput describes an account to create.
type CreateUserInput struct {
	UserID            string
	Attributes        map[string]string
	TemporaryPassword string
	// SuppressMessage stops the provider from sending its welcome message.
	SuppressMessage bool
}

// AuthResult holds either issued tokens or a pending challenge.
type AuthResult struct {
	Tokens        *domain.Tokens
	ChallengeName string
	Session       string
}

// Store is the identity provider contract used by the user service.
type Store interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	Exists(ctx context.Context, userID string) (bool, error)
	Authenticate(ctx context.Context, userID, password string, metadata map[string]string) (*AuthResult, error)
	CreateUser(ctx context.Context, in CreateUserInput) error
	RespondToNewPasswordChallenge(ctx context.Context, userID, session, newPassword string, metadata map[string]string) (*domain.Tokens, error)
	UpdateAttribute(ctx context.Context, userID, name, value string) error
}

// ErrorKind is the closed set of identity failures callers branch on.
type ErrorKind int

const (
	// KindProvider is any provider failure without special handling.
	KindProvider ErrorKind = iota
	// KindUserNotFound means the account does not exist.
	KindUserNotFound
	// KindUserExists means CreateUser lost to an account with the same id.
	KindUserExists
)

func (k ErrorKind) String() string {
	switch k {
	case KindUserNotFound:
		return "user_not_found"
	case KindUserExists:
		return "user_exists"
	default:
		return "provider"
	}
}

// ProviderError keeps the provider's own error code so it can be returned
// to the client unchanged.
type ProviderError struct {
	Op      string
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity %s: %s: %s", e.Op, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindProvider for errors that did not
// come from a Store.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindProvider
}

// IsUserNotFound reports whether err means the account does not exist.
func IsUserNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindUserNotFound
}

// IsUserExists reports whether err means CreateUser found the id taken.
func IsUserExists(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindUserExists
}

// ThirdPartyMetadata builds the client metadata sent on federated logins.
func ThirdPartyMetadata(p domain.Provider) map[string]string {
	return map[string]string{MetadataThirdPartyLogin: p.String()}
}
