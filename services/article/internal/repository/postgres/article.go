package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/horike37/serverless-application/pkg/database"
	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/services/article/internal/domain"
)

const (
	getInfoSQL = `
		SELECT article_id, user_id, status, title, overview, eye_catch_url, sort_key, created_at, updated_at
		FROM article_info
		WHERE article_id = $1`

	upsertContentSQL = `
		INSERT INTO article_content (article_id, title, body, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (article_id) DO UPDATE
		SET title = EXCLUDED.title, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`

	updateDraftInfoSQL = `
		UPDATE article_info
		SET title = $1, overview = $2, eye_catch_url = $3, updated_at = $4
		WHERE article_id = $5 AND user_id = $6 AND status = 'draft'
		RETURNING article_id, user_id, status, title, overview, eye_catch_url, sort_key, created_at, updated_at`

	listPopularSQL = `
		SELECT i.article_id, i.user_id, i.status, i.title, i.overview, i.eye_catch_url, i.sort_key, i.created_at, i.updated_at, s.score
		FROM article_score s
		JOIN article_info i ON i.article_id = s.article_id
		WHERE i.status = 'public'
		ORDER BY s.score DESC, i.sort_key DESC
		LIMIT $1 OFFSET $2`
)

// ArticleRepository implements repository.ArticleRepository on PostgreSQL.
type ArticleRepository struct {
	db  database.TxBeginner
	now func() time.Time
}

// NewArticleRepository creates a PostgreSQL-backed article repository.
func NewArticleRepository(db database.TxBeginner) *ArticleRepository {
	return &ArticleRepository{db: db, now: time.Now}
}

// GetInfo returns the article listing record.
func (r *ArticleRepository) GetInfo(ctx context.Context, articleID string) (a *domain.ArticleInfo, err error) {
	ctx, end := database.TraceQuery(ctx, "GetArticleInfo", getInfoSQL)
	defer func() { end(err) }()

	a, err = scanInfo(r.db.QueryRow(ctx, getInfoSQL, articleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("article", articleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get article info: %w", err)
	}
	return a, nil
}

// UpdateDraft updates article_info and article_content in one transaction.
// The info update is conditional on ownership and draft status, so a draft
// published or deleted since it was read is reported as not found.
func (r *ArticleRepository) UpdateDraft(ctx context.Context, u *domain.DraftUpdate) (a *domain.ArticleInfo, err error) {
	ctx, end := database.TraceQuery(ctx, "UpdateDraft", updateDraftInfoSQL)
	defer func() { end(err) }()

	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = r.now().UTC()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err = scanInfo(tx.QueryRow(ctx, updateDraftInfoSQL,
		u.Title,
		u.Overview,
		u.EyeCatchURL,
		u.UpdatedAt,
		u.ArticleID,
		u.UserID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("article", u.ArticleID)
	}
	if err != nil {
		return nil, fmt.Errorf("update article info: %w", err)
	}

	if _, err = tx.Exec(ctx, upsertContentSQL, u.ArticleID, u.Title, u.Body, u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update article content: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return a, nil
}

// ListPopular returns one page of public articles ordered by score.
func (r *ArticleRepository) ListPopular(ctx context.Context, limit, offset int) (out []domain.PopularArticle, err error) {
	ctx, end := database.TraceQuery(ctx, "ListPopular", listPopularSQL)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, listPopularSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list popular articles: %w", err)
	}
	defer rows.Close()

	out = make([]domain.PopularArticle, 0, limit)
	for rows.Next() {
		var (
			p      domain.PopularArticle
			status string
		)
		if err = rows.Scan(
			&p.ArticleID,
			&p.UserID,
			&status,
			&p.Title,
			&p.Overview,
			&p.EyeCatchURL,
			&p.SortKey,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.Score,
		); err != nil {
			return nil, fmt.Errorf("scan popular article: %w", err)
		}
		p.Status = domain.Status(status)
		out = append(out, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate popular articles: %w", err)
	}
	return out, nil
}

func scanInfo(row pgx.Row) (*domain.ArticleInfo, error) {
	var (
		a      domain.ArticleInfo
		status string
	)
	if err := row.Scan(
		&a.ArticleID,
		&a.UserID,
		&status,
		&a.Title,
		&a.Overview,
		&a.EyeCatchURL,
		&a.SortKey,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = domain.Status(status)
	return &a, nil
}
