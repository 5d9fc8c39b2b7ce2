package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/httpclient"
	"github.com/horike37/serverless-application/services/user/internal/domain"
	"github.com/horike37/serverless-application/services/user/internal/repository"
)

const (
	lineName = "line"

	// LINEIssuer is the iss claim of LINE Login ID tokens.
	LINEIssuer = "https://access.line.me"
)

// LINEConfig holds the channel credentials and endpoints.
type LINEConfig struct {
	ChannelID     string
	ChannelSecret string
	RedirectURI   string
	// AuthBaseURL is https://access.line.me, APIBaseURL https://api.line.me.
	AuthBaseURL string
	APIBaseURL  string
}

// LINE resolves LINE Login (OAuth 2.0 with an HS256 ID token) callbacks.
type LINE struct {
	oauth         *oauth2.Config
	channelID     string
	channelSecret []byte
	http          *http.Client
	states        repository.OAuthStateStore
	logger        *slog.Logger
}

// NewLINE creates a LINE resolver. httpClient carries the token exchange.
func NewLINE(cfg LINEConfig, httpClient *http.Client, states repository.OAuthStateStore, logger *slog.Logger) *LINE {
	return &LINE{
		oauth: &oauth2.Config{
			ClientID:     cfg.ChannelID,
			ClientSecret: cfg.ChannelSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   strings.TrimSuffix(cfg.AuthBaseURL, "/") + "/oauth2/v2.1/authorize",
				TokenURL:  strings.TrimSuffix(cfg.APIBaseURL, "/") + "/oauth2/v2.1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		channelID:     cfg.ChannelID,
		channelSecret: []byte(cfg.ChannelSecret),
		http:          httpClient,
		states:        states,
		logger:        logger,
	}
}

// Provider implements Resolver.
func (l *LINE) Provider() domain.Provider { return domain.ProviderLINE }

// AuthorizationURL stores a fresh state value and returns the authorize URL
// carrying it.
func (l *LINE) AuthorizationURL(ctx context.Context) (string, error) {
	state, err := randomState()
	if err != nil {
		return "", err
	}
	if err := l.states.SaveState(ctx, state); err != nil {
		return "", err
	}
	return l.oauth.AuthCodeURL(state), nil
}

// lineIDClaims are the ID token claims the login flow reads.
type lineIDClaims struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// Resolve consumes the state, exchanges the code and verifies the ID token.
func (l *LINE) Resolve(ctx context.Context, cb Callback) (*domain.ExternalIdentity, error) {
	if cb.Code == "" || cb.State == "" {
		return nil, apperrors.InvalidInput("code and state are required")
	}
	if err := l.states.ConsumeState(ctx, cb.State); err != nil {
		return nil, err
	}

	tok, err := l.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, l.http), cb.Code)
	if err != nil {
		return nil, classifyExchange(err)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, apperrors.Upstream("LINE_BAD_RESPONSE", "line: token response carried no id_token", nil)
	}

	claims, err := l.verifyIDToken(rawIDToken)
	if err != nil {
		return nil, &apperrors.AppError{
			Code:    "LINE_ID_TOKEN_INVALID",
			Message: "line: id token failed verification",
			Status:  http.StatusUnauthorized,
			Err:     fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err),
		}
	}

	identity := &domain.ExternalIdentity{
		Provider:    domain.ProviderLINE,
		ExternalID:  claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		IconURL:     claims.Picture,
	}
	if identity.Email == "" {
		identity.Email = domain.FallbackEmail(claims.Subject)
		l.logger.DebugContext(ctx, "line returned no email, using fallback",
			slog.String("external_id", claims.Subject),
		)
	}
	return identity, nil
}

func (l *LINE) verifyIDToken(raw string) (*lineIDClaims, error) {
	claims := &lineIDClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return l.channelSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(LINEIssuer),
		jwt.WithAudience(l.channelID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("id token has no subject")
	}
	return claims, nil
}

// classifyExchange keeps LINE's OAuth error code. A rejected code is the
// caller's problem (401); transport failures go through httpclient.Classify.
func classifyExchange(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		code := rErr.ErrorCode
		if code == "" && rErr.Response != nil {
			code = "HTTP_" + strconv.Itoa(rErr.Response.StatusCode)
		}
		status := http.StatusUnauthorized
		sentinel := apperrors.ErrUnauthorized
		if rErr.Response != nil && rErr.Response.StatusCode >= http.StatusInternalServerError {
			status, sentinel = http.StatusBadGateway, apperrors.ErrUpstream
		}
		return &apperrors.AppError{
			Code:    code,
			Message: "line: " + rErr.ErrorDescription,
			Status:  status,
			Err:     fmt.Errorf("%w: %w", sentinel, err),
		}
	}
	return httpclient.Classify(err, lineName)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
