package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/httputil"
	"github.com/horike37/serverless-application/pkg/logger"
	"github.com/horike37/serverless-application/pkg/verification"
)

type contextKeyType string

const claimsKey contextKeyType = "claims"

// Claims is the authenticated session extracted from an identity-provider
// ID token.
type Claims struct {
	UserID       string
	Email        string
	Verification verification.Claims
	Raw          map[string]any
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// TokenValidatorFunc adapts a function to TokenValidator.
type TokenValidatorFunc func(ctx context.Context, token string) (*Claims, error)

func (f TokenValidatorFunc) Validate(ctx context.Context, token string) (*Claims, error) {
	return f(ctx, token)
}

// CognitoIssuer returns the issuer URL of a Cognito user pool.
func CognitoIssuer(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// OIDCValidator verifies ID tokens against an issuer's JWKS.
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCValidator builds a validator that fetches signing keys lazily from
// <issuer>/.well-known/jwks.json. The audience must equal clientID.
func NewOIDCValidator(ctx context.Context, issuer, clientID string) *OIDCValidator {
	keySet := oidc.NewRemoteKeySet(ctx, strings.TrimSuffix(issuer, "/")+"/.well-known/jwks.json")
	return NewOIDCValidatorWithKeySet(issuer, clientID, keySet)
}

// NewOIDCValidatorWithKeySet builds a validator over an explicit key set.
func NewOIDCValidatorWithKeySet(issuer, clientID string, keySet oidc.KeySet) *OIDCValidator {
	return &OIDCValidator{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Validate verifies the token signature, issuer, audience and expiry.
func (v *OIDCValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}

	claims := &Claims{
		UserID:       stringClaim(raw, "cognito:username"),
		Email:        stringClaim(raw, "email"),
		Verification: verification.FromMap(raw),
		Raw:          raw,
	}
	if claims.UserID == "" {
		claims.UserID = idToken.Subject
	}
	return claims, nil
}

func stringClaim(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// Auth validates the bearer token and stores its claims in the context.
func Auth(validator TokenValidator, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing authorization header"), l)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid authorization header format"), l)
				return
			}

			claims, err := validator.Validate(r.Context(), parts[1])
			if err != nil {
				logger.FromContext(r.Context()).DebugContext(r.Context(), "token rejected", slog.String("error", err.Error()))
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), l)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = logger.WithUserID(ctx, claims.UserID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", claims.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireVerified rejects sessions that fail the verification gate with
// 403 NOT_VERIFIED_USER. It must run after Auth.
func RequireVerified(gate verification.Gate, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), l)
				return
			}
			if err := gate.Check(claims.Verification); err != nil {
				httputil.WriteError(w, r, err, l)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the authenticated claims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// UserIDFromContext extracts the authenticated user ID from the context.
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// WithClaims stores claims in ctx. Handler tests use it to skip token
// validation.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}
