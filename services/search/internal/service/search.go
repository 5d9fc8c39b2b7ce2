package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/pagination"
	"github.com/horike37/serverless-application/pkg/validator"
	"github.com/horike37/serverless-application/services/search/internal/domain"
	"github.com/horike37/serverless-application/services/search/internal/engine"
)

// SearchService implements tag and user search plus the index writes that
// feed them.
type SearchService struct {
	engine engine.SearchEngine
	logger *slog.Logger
	now    func() time.Time
}

// NewSearchService creates a new search service.
func NewSearchService(eng engine.SearchEngine, logger *slog.Logger) *SearchService {
	return &SearchService{
		engine: eng,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SearchTags returns tags whose name starts with query, ignoring case, most
// used first. Zero limit and page take the defaults of 100 and 1.
func (s *SearchService) SearchTags(ctx context.Context, query string, p pagination.Params) ([]domain.Tag, error) {
	page, err := s.validate(query, p, domain.DefaultTagLimit)
	if err != nil {
		return nil, err
	}

	tags, err := s.engine.SearchTags(ctx, query, page)
	if err != nil {
		return nil, fmt.Errorf("search tags: %w", err)
	}

	s.logger.DebugContext(ctx, "tag search executed",
		slog.String("query", query),
		slog.Int("limit", page.Limit),
		slog.Int("page", page.Page),
		slog.Int("hits", len(tags)),
	)
	return tags, nil
}

// SearchUsers returns users matching query by id or display name.
func (s *SearchService) SearchUsers(ctx context.Context, query string, p pagination.Params) ([]domain.UserDocument, error) {
	page, err := s.validate(query, p, domain.DefaultUserLimit)
	if err != nil {
		return nil, err
	}

	users, err := s.engine.SearchUsers(ctx, query, page)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

func (s *SearchService) validate(query string, p pagination.Params, defaultLimit int) (domain.Page, error) {
	if err := validator.ValidateField("query", query); err != nil {
		return domain.Page{}, err
	}
	params, err := pagination.New(p.Limit, p.Page, defaultLimit)
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{Limit: params.Limit, Page: params.Page}, nil
}

// IndexTag creates or replaces a tag with the given count.
func (s *SearchService) IndexTag(ctx context.Context, name string, count int) error {
	if err := validator.ValidateField("tag", name); err != nil {
		return err
	}
	if count < 0 {
		return apperrors.InvalidInput("tag count must not be negative")
	}

	tag := &domain.Tag{Name: name, Count: count, CreatedAt: s.now()}
	if err := s.engine.IndexTag(ctx, tag); err != nil {
		return fmt.Errorf("index tag: %w", err)
	}

	s.logger.InfoContext(ctx, "tag indexed",
		slog.String("tag", name),
		slog.Int("count", count),
	)
	return nil
}

// BulkIndexTags creates or replaces many tags. Invalid names are skipped
// and logged.
func (s *SearchService) BulkIndexTags(ctx context.Context, tags []domain.Tag) (int, error) {
	valid := make([]domain.Tag, 0, len(tags))
	now := s.now()
	for _, tag := range tags {
		if err := validator.ValidateField("tag", tag.Name); err != nil {
			s.logger.WarnContext(ctx, "skipping invalid tag",
				slog.String("tag", tag.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if tag.CreatedAt.IsZero() {
			tag.CreatedAt = now
		}
		valid = append(valid, tag)
	}

	if err := s.engine.BulkIndexTags(ctx, valid); err != nil {
		return 0, fmt.Errorf("bulk index tags: %w", err)
	}

	s.logger.InfoContext(ctx, "bulk tag index completed",
		slog.Int("count", len(valid)),
		slog.Int("skipped", len(tags)-len(valid)),
	)
	return len(valid), nil
}

// IncrementTagCount records tag usage, creating the tag when it is new.
func (s *SearchService) IncrementTagCount(ctx context.Context, name string, delta int) error {
	if err := validator.ValidateField("tag", name); err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}
	if err := s.engine.IncrementTagCount(ctx, name, delta); err != nil {
		return fmt.Errorf("increment tag count: %w", err)
	}
	return nil
}

// IndexUserProfileInput holds a user profile as published by the user
// service.
type IndexUserProfileInput struct {
	UserID           string
	DisplayName      string
	SelfIntroduction string
	IconImageURL     string
}

// IndexUserProfile adds or replaces the user's search document.
func (s *SearchService) IndexUserProfile(ctx context.Context, in IndexUserProfileInput) error {
	if strings.TrimSpace(in.UserID) == "" {
		return apperrors.InvalidInput("user id is required")
	}

	doc := &domain.UserDocument{
		UserID:           in.UserID,
		DisplayName:      in.DisplayName,
		SelfIntroduction: in.SelfIntroduction,
		IconImageURL:     in.IconImageURL,
		UpdatedAt:        s.now(),
	}
	if err := s.engine.IndexUser(ctx, doc); err != nil {
		return fmt.Errorf("index user profile: %w", err)
	}

	s.logger.InfoContext(ctx, "user profile indexed", slog.String("user_id", in.UserID))
	return nil
}
