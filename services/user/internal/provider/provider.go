// Package provider talks to the external OAuth providers and turns a
// completed authorization into a domain.ExternalIdentity.
package provider

import (
	"context"

	"github.com/horike37/serverless-application/services/user/internal/domain"
)

// Callback carries the values a provider redirects back with. Twitter fills
// OAuthToken and OAuthVerifier, LINE fills Code and State.
type Callback struct {
	OAuthToken    string
	OAuthVerifier string
	Code          string
	State         string
}

// Resolver starts an authorization and resolves its callback.
type Resolver interface {
	Provider() domain.Provider

	// AuthorizationURL returns the provider URL the browser is sent to.
	AuthorizationURL(ctx context.Context) (string, error)

	// Resolve exchanges the callback values for the signed-in identity.
	Resolve(ctx context.Context, cb Callback) (*domain.ExternalIdentity, error)
}
