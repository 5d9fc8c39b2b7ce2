package domain

import "time"

// PlatformUser is a user profile row.
type PlatformUser struct {
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"user_display_name"`
	SelfIntroduction string    `json:"self_introduction,omitempty"`
	IconImageURL     string    `json:"icon_image_url,omitempty"`
	SyncIndex        bool      `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FederatedCredential is the secret used to sign a federated user into the
// identity provider. Password is the sealed value as stored.
type FederatedCredential struct {
	UserID    string
	Password  string
	Provider  Provider
	CreatedAt time.Time
}

// AliasRecord maps a federated user id onto an existing platform account.
type AliasRecord struct {
	UserID      string
	AliasUserID string
}

// ExternalIdentity is what a provider returns about the signed-in person.
type ExternalIdentity struct {
	Provider    Provider
	ExternalID  string
	ScreenName  string
	DisplayName string
	Email       string
	IconURL     string
}

// CandidateUserID returns the platform user id derived from the identity.
func (e ExternalIdentity) CandidateUserID() string {
	return e.Provider.CandidateUserID(e.ExternalID)
}

// ProfileDisplayName picks the display name stored on first login: the
// provider name, then the screen name, then the external id, truncated to
// 30 characters.
func (e ExternalIdentity) ProfileDisplayName() string {
	name := e.DisplayName
	if name == "" {
		name = e.ScreenName
	}
	if name == "" {
		name = e.ExternalID
	}
	if r := []rune(name); len(r) > 30 {
		name = string(r[:30])
	}
	return name
}

// Tokens are the identity-provider tokens handed to the client.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int32  `json:"expires_in"`
}

// LoginOutcome says how a federated login was resolved.
type LoginOutcome string

const (
	OutcomeLoggedIn    LoginOutcome = "logged_in"
	OutcomeAliased     LoginOutcome = "aliased"
	OutcomeProvisioned LoginOutcome = "provisioned"
)

// LoginResult is returned by a federated login attempt. HasUserID is false
// while the account still uses its provider-derived id.
type LoginResult struct {
	UserID    string       `json:"user_id"`
	Outcome   LoginOutcome `json:"outcome"`
	Tokens    Tokens       `json:"tokens"`
	HasUserID bool         `json:"has_user_id"`
}
