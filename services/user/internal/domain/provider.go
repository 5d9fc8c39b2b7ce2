package domain

import (
	"fmt"
	"strings"
)

// Provider identifies an external login provider.
type Provider string

const (
	ProviderTwitter Provider = "twitter"
	ProviderLINE    Provider = "line"
)

// Username prefixes that place federated users in their own namespaces.
const (
	TwitterUsernamePrefix = "Twitter-"
	LINEUsernamePrefix    = "LINE-"
)

// FakeUserEmailDomain is used when a provider withholds the email address.
const FakeUserEmailDomain = "example.com"

// ParseProvider converts a path or query value into a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(s)) {
	case ProviderTwitter:
		return ProviderTwitter, nil
	case ProviderLINE:
		return ProviderLINE, nil
	default:
		return "", fmt.Errorf("unknown login provider %q", s)
	}
}

// Prefix returns the platform username prefix for the provider.
func (p Provider) Prefix() string {
	switch p {
	case ProviderTwitter:
		return TwitterUsernamePrefix
	case ProviderLINE:
		return LINEUsernamePrefix
	default:
		return ""
	}
}

// CandidateUserID derives the platform user id for an external identity.
func (p Provider) CandidateUserID(externalID string) string {
	return p.Prefix() + externalID
}

// FallbackEmail is the placeholder address registered for identities that
// come back without an email.
func FallbackEmail(externalID string) string {
	return externalID + "@" + FakeUserEmailDomain
}

func (p Provider) String() string { return string(p) }
