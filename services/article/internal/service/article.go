package service

import (
	"context"
	"log/slog"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/pagination"
	"github.com/horike37/serverless-application/pkg/validator"
	"github.com/horike37/serverless-application/services/article/internal/domain"
	"github.com/horike37/serverless-application/services/article/internal/repository"
	"github.com/horike37/serverless-application/services/article/internal/sanitize"
)

var draftSchema = validator.Object([]string{"article_id"}, "article_id", "title", "body", "eye_catch_url", "overview")

// ArticleService implements draft editing and the popular list.
type ArticleService struct {
	repo      repository.ArticleRepository
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
}

// NewArticleService creates a new article service.
func NewArticleService(repo repository.ArticleRepository, sanitizer *sanitize.Sanitizer, logger *slog.Logger) *ArticleService {
	return &ArticleService{
		repo:      repo,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// DraftInput holds the editable draft fields. Nil fields are stored empty.
type DraftInput struct {
	Title       *string
	Body        *string
	EyeCatchURL *string
	Overview    *string
}

// UpdateDraft replaces the draft's title, body, eye catch and overview.
// Articles that are not drafts of userID are reported as not found.
func (s *ArticleService) UpdateDraft(ctx context.Context, userID, articleID string, in DraftInput) (*domain.ArticleInfo, error) {
	params := map[string]any{"article_id": articleID}
	for name, v := range map[string]*string{
		"title":         in.Title,
		"body":          in.Body,
		"eye_catch_url": in.EyeCatchURL,
		"overview":      in.Overview,
	} {
		if v != nil {
			params[name] = *v
		}
	}
	if err := validator.ValidateParams(draftSchema, params); err != nil {
		return nil, err
	}
	if in.Body == nil || *in.Body == "" {
		return nil, apperrors.InvalidInput("body is required")
	}

	info, err := s.repo.GetInfo(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if !info.OwnedDraftBy(userID) {
		return nil, apperrors.NotFound("article", articleID)
	}

	update := &domain.DraftUpdate{
		ArticleID:   articleID,
		UserID:      userID,
		Title:       s.sanitizer.Text(deref(in.Title)),
		Body:        s.sanitizer.ArticleBody(*in.Body),
		Overview:    s.sanitizer.Text(deref(in.Overview)),
		EyeCatchURL: deref(in.EyeCatchURL),
	}
	updated, err := s.repo.UpdateDraft(ctx, update)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "draft updated",
		slog.String("article_id", articleID),
		slog.String("user_id", userID),
	)
	return updated, nil
}

// ListPopular returns one page of public articles, highest score first.
func (s *ArticleService) ListPopular(ctx context.Context, p pagination.Params) ([]domain.PopularArticle, error) {
	p, err := pagination.New(p.Limit, p.Page, domain.DefaultPopularLimit)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPopular(ctx, p.Limit, p.Offset)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
