package elasticsearch

// Default index names.
const (
	DefaultTagIndex  = "tags"
	DefaultUserIndex = "users"
)

// tagIndexMapping keeps the tag name as an exact keyword and adds a
// lowercased copy under name.lower for case-insensitive prefix queries.
func tagIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "normalizer": {
        "lowercase_normalizer": {
          "type": "custom",
          "filter": ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "name":       { "type": "keyword", "fields": { "lower": { "type": "keyword", "normalizer": "lowercase_normalizer" } } },
      "count":      { "type": "integer" },
      "created_at": { "type": "date" }
    }
  }
}`
}

// userIndexMapping indexes display names for both full-text and
// search-as-you-type matching.
func userIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 1,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "user_id":           { "type": "keyword", "fields": { "text": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "user_display_name": { "type": "text", "fields": { "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "self_introduction": { "type": "text" },
      "icon_image_url":    { "type": "keyword", "index": false },
      "updated_at":        { "type": "date" }
    }
  }
}`
}
