package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/httputil"
	"github.com/horike37/serverless-application/pkg/validator"
	"github.com/horike37/serverless-application/services/user/internal/domain"
	"github.com/horike37/serverless-application/services/user/internal/provider"
	"github.com/horike37/serverless-application/services/user/internal/service"
)

// LoginHandler serves the federated login endpoints.
type LoginHandler struct {
	service *service.FederationService
	logger  *slog.Logger
}

// NewLoginHandler creates a new login HTTP handler.
func NewLoginHandler(svc *service.FederationService, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{service: svc, logger: logger}
}

// TwitterLoginRequest is the body of POST /api/v1/login/twitter.
type TwitterLoginRequest struct {
	OAuthToken    string `json:"oauth_token" validate:"required"`
	OAuthVerifier string `json:"oauth_verifier" validate:"required"`
}

// LINELoginRequest is the body of POST /api/v1/login/line.
type LINELoginRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required,max=64"`
}

// AuthorizationURLResponse is returned by the authorization_url endpoints.
type AuthorizationURLResponse struct {
	URL string `json:"url"`
}

// LoginResponse is returned by a successful federated login.
type LoginResponse struct {
	UserID       string `json:"user_id"`
	Outcome      string `json:"outcome"`
	HasUserID    bool   `json:"has_user_id"`
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int32  `json:"expires_in"`
}

func providerParam(r *http.Request) (domain.Provider, error) {
	p, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return "", apperrors.InvalidInput(err.Error())
	}
	return p, nil
}

// AuthorizationURL handles GET /api/v1/login/{provider}/authorization_url
func (h *LoginHandler) AuthorizationURL(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	url, err := h.service.AuthorizationURL(r.Context(), p)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, AuthorizationURLResponse{URL: url})
}

// Login handles POST /api/v1/login/{provider}
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	var cb provider.Callback
	switch p {
	case domain.ProviderTwitter:
		var req TwitterLoginRequest
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, r, err, h.logger)
			return
		}
		cb = provider.Callback{OAuthToken: req.OAuthToken, OAuthVerifier: req.OAuthVerifier}
	case domain.ProviderLINE:
		var req LINELoginRequest
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			writeDecodeError(w, r, err, h.logger)
			return
		}
		cb = provider.Callback{Code: req.Code, State: req.State}
	}

	res, err := h.service.Login(r.Context(), p, cb)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, LoginResponse{
		UserID:       res.UserID,
		Outcome:      string(res.Outcome),
		HasUserID:    res.HasUserID,
		AccessToken:  res.Tokens.AccessToken,
		IDToken:      res.Tokens.IDToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresIn:    res.Tokens.ExpiresIn,
	})
}
