package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/horike37/serverless-application/services/search/internal/domain"
)

// IndexUser adds or replaces a user document keyed by user id.
func (e *Engine) IndexUser(ctx context.Context, user *domain.UserDocument) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("elasticsearch index user: marshal: %w", err)
	}

	res, err := e.client.Index(
		e.userIndex,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(user.UserID),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index user: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch index user", res)
	}

	e.logger.Debug("indexed user", "user_id", user.UserID)
	return nil
}

// SearchUsers matches query against the user id and display name, with
// search-as-you-type on both.
func (e *Engine) SearchUsers(ctx context.Context, query string, page domain.Page) ([]domain.UserDocument, error) {
	from, size, ok := resultWindow(page)
	if !ok {
		return []domain.UserDocument{}, nil
	}
	return search[domain.UserDocument](ctx, e, "search users", e.userIndex, buildUserQuery(query, from, size))
}

func buildUserQuery(query string, from, size int) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"user_id.text^2", "user_display_name^2", "user_display_name.autocomplete"},
				"type":   "best_fields",
			},
		},
		"sort": []any{
			map[string]any{"_score": "desc"},
			map[string]any{"user_id": "asc"},
		},
		"from": from,
		"size": size,
	}
}
