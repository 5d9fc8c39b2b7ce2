package http

import (
	"log/slog"
	"net/http"

	"github.com/horike37/serverless-application/pkg/httputil"
	"github.com/horike37/serverless-application/pkg/pagination"
	"github.com/horike37/serverless-application/services/search/internal/domain"
	"github.com/horike37/serverless-application/services/search/internal/service"
)

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// SearchTags handles GET /api/v1/search/tags?query=&limit=&page=
func (h *SearchHandler) SearchTags(w http.ResponseWriter, r *http.Request) {
	p, err := pagination.FromRequest(r, domain.DefaultTagLimit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	tags, err := h.service.SearchTags(r.Context(), r.URL.Query().Get("query"), p)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, tags)
}

// SearchUsers handles GET /api/v1/search/users?query=&limit=&page=
func (h *SearchHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	p, err := pagination.FromRequest(r, domain.DefaultUserLimit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	users, err := h.service.SearchUsers(r.Context(), r.URL.Query().Get("query"), p)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, users)
}
