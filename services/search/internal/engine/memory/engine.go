package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/horike37/serverless-application/services/search/internal/domain"
)

// Engine is an in-memory implementation of the SearchEngine interface used
// by tests and local development. Thread-safe via sync.RWMutex.
type Engine struct {
	mu    sync.RWMutex
	tags  map[string]domain.Tag
	users map[string]domain.UserDocument
	now   func() time.Time
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		tags:  make(map[string]domain.Tag),
		users: make(map[string]domain.UserDocument),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// IndexTag adds or replaces a tag.
func (e *Engine) IndexTag(_ context.Context, tag *domain.Tag) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tags[tag.Name] = *tag
	return nil
}

// BulkIndexTags adds or replaces multiple tags.
func (e *Engine) BulkIndexTags(_ context.Context, tags []domain.Tag) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range tags {
		e.tags[tags[i].Name] = tags[i]
	}
	return nil
}

// IncrementTagCount adds delta to the tag's count, creating it if needed.
func (e *Engine) IncrementTagCount(_ context.Context, name string, delta int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tag, ok := e.tags[name]
	if !ok {
		tag = domain.Tag{Name: name, CreatedAt: e.now()}
	}
	tag.Count += delta
	e.tags[name] = tag
	return nil
}

// SearchTags returns tags whose lowercased name starts with the lowercased
// prefix, by count descending. Equal counts are ordered by name.
func (e *Engine) SearchTags(_ context.Context, prefix string, page domain.Page) ([]domain.Tag, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	prefixLower := strings.ToLower(prefix)
	matched := make([]domain.Tag, 0)
	for _, t := range e.tags {
		if strings.HasPrefix(strings.ToLower(t.Name), prefixLower) {
			matched = append(matched, t)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Count != matched[j].Count {
			return matched[i].Count > matched[j].Count
		}
		return matched[i].Name < matched[j].Name
	})

	return paginate(matched, page), nil
}

// IndexUser adds or replaces a user document.
func (e *Engine) IndexUser(_ context.Context, user *domain.UserDocument) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.users[user.UserID] = *user
	return nil
}

// SearchUsers returns users whose id or display name contains query,
// compared case-insensitively, ordered by user id.
func (e *Engine) SearchUsers(_ context.Context, query string, page domain.Page) ([]domain.UserDocument, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	queryLower := strings.ToLower(query)
	matched := make([]domain.UserDocument, 0)
	for _, u := range e.users {
		if strings.Contains(strings.ToLower(u.UserID), queryLower) ||
			strings.Contains(strings.ToLower(u.DisplayName), queryLower) {
			matched = append(matched, u)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UserID < matched[j].UserID
	})

	return paginate(matched, page), nil
}

func paginate[T any](items []T, page domain.Page) []T {
	total := len(items)
	offset := page.From()
	if offset > total {
		offset = total
	}
	end := offset + page.Limit
	if end > total {
		end = total
	}
	return items[offset:end]
}
