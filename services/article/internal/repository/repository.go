package repository

import (
	"context"

	"github.com/horike37/serverless-application/services/article/internal/domain"
)

// ArticleRepository persists articles.
type ArticleRepository interface {
	// GetInfo returns the article or apperrors.ErrNotFound.
	GetInfo(ctx context.Context, articleID string) (*domain.ArticleInfo, error)

	// UpdateDraft writes the draft's content and listing fields atomically.
	// It fails with apperrors.ErrNotFound when the article is no longer a
	// draft owned by the user.
	UpdateDraft(ctx context.Context, update *domain.DraftUpdate) (*domain.ArticleInfo, error)

	// ListPopular returns public articles by score, highest first.
	ListPopular(ctx context.Context, limit, offset int) ([]domain.PopularArticle, error)
}
