package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/horike37/serverless-application/services/search/internal/domain"
)

// Config selects the cluster and index names.
type Config struct {
	URL       string
	TagIndex  string
	UserIndex string
}

// Engine is an Elasticsearch-backed implementation of the SearchEngine interface.
type Engine struct {
	client    *elasticsearch.Client
	tagIndex  string
	userIndex string
	logger    *slog.Logger
	now       func() time.Time
}

// esSearchResponse decodes the hits of a search response.
type esSearchResponse[T any] struct {
	Hits struct {
		Hits []struct {
			Source T `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a new Elasticsearch engine and makes sure both indexes exist.
// Empty index names fall back to DefaultTagIndex and DefaultUserIndex.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.TagIndex == "" {
		cfg.TagIndex = DefaultTagIndex
	}
	if cfg.UserIndex == "" {
		cfg.UserIndex = DefaultUserIndex
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	e := &Engine{
		client:    client,
		tagIndex:  cfg.TagIndex,
		userIndex: cfg.UserIndex,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}

	if err := e.ensureIndex(ctx, e.tagIndex, tagIndexMapping()); err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to ensure index %s: %w", e.tagIndex, err)
	}
	if err := e.ensureIndex(ctx, e.userIndex, userIndexMapping()); err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to ensure index %s: %w", e.userIndex, err)
	}

	return e, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// ensureIndex creates the index with the given mapping unless it exists.
func (e *Engine) ensureIndex(ctx context.Context, name, mapping string) error {
	res, err := e.client.Indices.Exists([]string{name}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", "index", name)
		return nil
	}

	res, err = e.client.Indices.Create(
		name,
		e.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res)
	}

	e.logger.Info("elasticsearch index created", "index", name)
	return nil
}

// IndexTag adds or replaces a tag document. The tag name is the document id.
func (e *Engine) IndexTag(ctx context.Context, tag *domain.Tag) error {
	data, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("elasticsearch index tag: marshal: %w", err)
	}

	res, err := e.client.Index(
		e.tagIndex,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(tag.Name),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index tag: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch index tag", res)
	}

	e.logger.Debug("indexed tag", "name", tag.Name, "count", tag.Count)
	return nil
}

// BulkIndexTags adds or replaces multiple tags using the bulk NDJSON API.
func (e *Engine) BulkIndexTags(ctx context.Context, tags []domain.Tag) error {
	if len(tags) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range tags {
		action := map[string]any{
			"index": map[string]any{
				"_index": e.tagIndex,
				"_id":    tags[i].Name,
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index tags: encode action: %w", err)
		}
		if err := enc.Encode(tags[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk index tags: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.tagIndex),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk index tags: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch bulk index tags", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index tags: decode response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk index tags: partial errors: %s", strings.Join(errMsgs, "; "))
	}

	e.logger.Info("bulk indexed tags", "count", len(tags))
	return nil
}

// IncrementTagCount adds delta to the tag's count with a scripted update,
// upserting the tag when it is new.
func (e *Engine) IncrementTagCount(ctx context.Context, name string, delta int) error {
	body := map[string]any{
		"script": map[string]any{
			"source": "ctx._source.count += params.delta",
			"lang":   "painless",
			"params": map[string]any{"delta": delta},
		},
		"upsert": domain.Tag{Name: name, Count: delta, CreatedAt: e.now()},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("elasticsearch increment tag count: marshal: %w", err)
	}

	res, err := e.client.Update(
		e.tagIndex,
		name,
		bytes.NewReader(data),
		e.client.Update.WithRetryOnConflict(3),
		e.client.Update.WithRefresh("true"),
		e.client.Update.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch increment tag count: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch increment tag count", res)
	}
	return nil
}

// maxResultWindow is the cluster's default index.max_result_window. A
// search whose from+size exceeds it is rejected with a 400.
const maxResultWindow = 10000

// resultWindow returns from and size for page, trimmed to maxResultWindow.
// ok is false when the page starts past the window and cannot have hits.
func resultWindow(page domain.Page) (from, size int, ok bool) {
	from = page.From()
	if from >= maxResultWindow {
		return 0, 0, false
	}
	return from, min(page.Limit, maxResultWindow-from), true
}

// SearchTags runs a prefix query on name.lower sorted by count descending.
func (e *Engine) SearchTags(ctx context.Context, prefix string, page domain.Page) ([]domain.Tag, error) {
	from, size, ok := resultWindow(page)
	if !ok {
		return []domain.Tag{}, nil
	}
	return search[domain.Tag](ctx, e, "search tags", e.tagIndex, buildTagQuery(prefix, from, size))
}

func buildTagQuery(prefix string, from, size int) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"prefix": map[string]any{
				"name.lower": strings.ToLower(prefix),
			},
		},
		"sort": []any{
			map[string]any{"count": "desc"},
			map[string]any{"name": "asc"},
		},
		"from": from,
		"size": size,
	}
}

// search runs query against index and returns the decoded sources.
func search[T any](ctx context.Context, e *Engine, op, index string, query map[string]any) ([]T, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: marshal query: %w", op, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("elasticsearch "+op, res)
	}

	var esResp esSearchResponse[T]
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch %s: decode response: %w", op, err)
	}

	out := make([]T, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

// DeleteIndexes removes both indexes. It is intended for tests and
// administrative operations. A 404 counts as success.
func (e *Engine) DeleteIndexes(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.tagIndex, e.userIndex},
		e.client.Indices.Delete.WithContext(ctx),
		e.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}

	e.logger.Info("elasticsearch indexes deleted", "tag_index", e.tagIndex, "user_index", e.userIndex)
	return nil
}

// responseError builds an error from a failed response, using the
// Elasticsearch error body when it can be decoded.
func responseError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
