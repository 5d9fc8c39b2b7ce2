package engine

import (
	"context"

	"github.com/horike37/serverless-application/services/search/internal/domain"
)

// SearchEngine defines the operations the search service needs from an
// index backend. Implementations may use Elasticsearch or in-memory storage.
type SearchEngine interface {
	// IndexTag adds or replaces a tag document keyed by its name.
	IndexTag(ctx context.Context, tag *domain.Tag) error

	// BulkIndexTags adds or replaces multiple tag documents.
	BulkIndexTags(ctx context.Context, tags []domain.Tag) error

	// IncrementTagCount adds delta to a tag's count, creating the tag with
	// count delta when it does not exist.
	IncrementTagCount(ctx context.Context, name string, delta int) error

	// SearchTags returns tags whose name starts with prefix, compared
	// case-insensitively, ordered by count descending. No match is an empty
	// slice, not an error.
	SearchTags(ctx context.Context, prefix string, page domain.Page) ([]domain.Tag, error)

	// IndexUser adds or replaces a user document keyed by user id.
	IndexUser(ctx context.Context, user *domain.UserDocument) error

	// SearchUsers matches query against user ids and display names.
	SearchUsers(ctx context.Context, query string, page domain.Page) ([]domain.UserDocument, error)
}
