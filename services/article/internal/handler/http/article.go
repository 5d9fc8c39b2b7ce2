package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/httputil"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/pagination"
	"github.com/horike37/serverless-application/pkg/validator"
	"github.com/horike37/serverless-application/services/article/internal/domain"
	"github.com/horike37/serverless-application/services/article/internal/service"
)

// ArticleHandler handles the article endpoints.
type ArticleHandler struct {
	service *service.ArticleService
	logger  *slog.Logger
}

// NewArticleHandler creates a new article HTTP handler.
func NewArticleHandler(svc *service.ArticleService, logger *slog.Logger) *ArticleHandler {
	return &ArticleHandler{service: svc, logger: logger}
}

// UpdateDraftRequest is the body of PUT /api/v1/me/articles/{article_id}/drafts.
type UpdateDraftRequest struct {
	Title       *string `json:"title"`
	Body        *string `json:"body" validate:"required"`
	EyeCatchURL *string `json:"eye_catch_url"`
	Overview    *string `json:"overview"`
}

// UpdateDraft handles PUT /api/v1/me/articles/{article_id}/drafts
func (h *ArticleHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("user not authenticated"), h.logger)
		return
	}

	var req UpdateDraftRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		var valErr *validator.ValidationError
		if !errors.As(err, &valErr) {
			err = apperrors.InvalidInput("invalid request body")
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	info, err := h.service.UpdateDraft(r.Context(), userID, chi.URLParam(r, "article_id"), service.DraftInput{
		Title:       req.Title,
		Body:        req.Body,
		EyeCatchURL: req.EyeCatchURL,
		Overview:    req.Overview,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, info)
}

// ListPopular handles GET /api/v1/articles/popular?limit=&page=
func (h *ArticleHandler) ListPopular(w http.ResponseWriter, r *http.Request) {
	p, err := pagination.FromRequest(r, domain.DefaultPopularLimit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	articles, err := h.service.ListPopular(r.Context(), p)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, articles)
}
