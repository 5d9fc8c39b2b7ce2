package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/httpclient"
	"github.com/horike37/serverless-application/services/user/internal/domain"
	"github.com/horike37/serverless-application/services/user/internal/repository"
)

const twitterName = "twitter"

// TwitterConfig holds the consumer credentials and endpoints.
type TwitterConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	// APIBaseURL is https://api.twitter.com outside tests.
	APIBaseURL string
}

// Twitter resolves OAuth 1.0a logins. The request token secret is parked in
// the state store between the two legs of the handshake.
type Twitter struct {
	oauth  *oauth1.Config
	api    string
	http   *http.Client
	states repository.OAuthStateStore
	logger *slog.Logger
}

// NewTwitter creates a Twitter resolver. httpClient carries both token
// legs and the verify credentials call, and is usually a circuit breaker's
// StandardClient.
func NewTwitter(cfg TwitterConfig, httpClient *http.Client, states repository.OAuthStateStore, logger *slog.Logger) *Twitter {
	base := strings.TrimSuffix(cfg.APIBaseURL, "/")
	oauthCfg := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
	oauthCfg.CallbackURL = cfg.CallbackURL
	oauthCfg.HTTPClient = httpClient
	oauthCfg.Endpoint = oauth1.Endpoint{
		RequestTokenURL: base + "/oauth/request_token",
		AuthorizeURL:    base + "/oauth/authenticate",
		AccessTokenURL:  base + "/oauth/access_token",
	}
	return &Twitter{
		oauth:  oauthCfg,
		api:    base,
		http:   httpClient,
		states: states,
		logger: logger,
	}
}

// Provider implements Resolver.
func (t *Twitter) Provider() domain.Provider { return domain.ProviderTwitter }

// AuthorizationURL obtains a request token and returns the authenticate
// URL for it.
func (t *Twitter) AuthorizationURL(ctx context.Context) (string, error) {
	requestToken, requestSecret, err := t.oauth.RequestToken()
	if err != nil {
		return "", apperrors.Upstream("TWITTER_REQUEST_TOKEN_FAILED", "twitter: could not obtain a request token", err)
	}
	if err := t.states.SaveRequestSecret(ctx, requestToken, requestSecret); err != nil {
		return "", err
	}
	u, err := t.oauth.AuthorizationURL(requestToken)
	if err != nil {
		return "", fmt.Errorf("build twitter authorization url: %w", err)
	}
	return u.String(), nil
}

type twitterCredentials struct {
	IDStr                string `json:"id_str"`
	ScreenName           string `json:"screen_name"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	ProfileImageURLHTTPS string `json:"profile_image_url_https"`
}

// Resolve exchanges the verifier for an access token and reads the
// account behind it.
func (t *Twitter) Resolve(ctx context.Context, cb Callback) (*domain.ExternalIdentity, error) {
	if cb.OAuthToken == "" || cb.OAuthVerifier == "" {
		return nil, apperrors.InvalidInput("oauth_token and oauth_verifier are required")
	}

	requestSecret, err := t.states.TakeRequestSecret(ctx, cb.OAuthToken)
	if err != nil {
		return nil, err
	}

	accessToken, accessSecret, err := t.oauth.AccessToken(cb.OAuthToken, requestSecret, cb.OAuthVerifier)
	if err != nil {
		return nil, &apperrors.AppError{
			Code:    "TWITTER_ACCESS_TOKEN_REJECTED",
			Message: "twitter: the oauth verifier was rejected",
			Status:  http.StatusUnauthorized,
			Err:     fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err),
		}
	}

	signedCtx := context.WithValue(ctx, oauth1.HTTPClient, t.http)
	client := t.oauth.Client(signedCtx, oauth1.NewToken(accessToken, accessSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.api+"/1.1/account/verify_credentials.json?include_email=true&skip_status=true", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build verify credentials request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, httpclient.Classify(err, twitterName)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, twitterName)
	}
	defer func() { _ = resp.Body.Close() }()

	var creds twitterCredentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, apperrors.Upstream("TWITTER_BAD_RESPONSE", "twitter: malformed verify credentials response", err)
	}
	if creds.IDStr == "" {
		return nil, apperrors.Upstream("TWITTER_BAD_RESPONSE", "twitter: verify credentials returned no id", nil)
	}

	identity := &domain.ExternalIdentity{
		Provider:    domain.ProviderTwitter,
		ExternalID:  creds.IDStr,
		ScreenName:  creds.ScreenName,
		DisplayName: creds.Name,
		Email:       creds.Email,
		IconURL:     creds.ProfileImageURLHTTPS,
	}
	if identity.Email == "" {
		identity.Email = domain.FallbackEmail(creds.IDStr)
		t.logger.DebugContext(ctx, "twitter withheld email, using fallback",
			slog.String("external_id", creds.IDStr),
		)
	}
	return identity, nil
}
