package domain

import "time"

// Status is the publication state of an article.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusPublic Status = "public"
)

// ArticleInfo is the listing record of an article.
type ArticleInfo struct {
	ArticleID   string    `json:"article_id"`
	UserID      string    `json:"user_id"`
	Status      Status    `json:"status"`
	Title       string    `json:"title"`
	Overview    string    `json:"overview"`
	EyeCatchURL string    `json:"eye_catch_url"`
	SortKey     int64     `json:"sort_key"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OwnedDraftBy reports whether the article is a draft belonging to userID.
func (a *ArticleInfo) OwnedDraftBy(userID string) bool {
	return a.UserID == userID && a.Status == StatusDraft
}

// ArticleContent is the full text of an article.
type ArticleContent struct {
	ArticleID string    `json:"article_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PopularArticle is a public article with its popularity score.
type PopularArticle struct {
	ArticleInfo
	Score int64 `json:"score"`
}

// DraftUpdate carries already sanitized draft fields.
type DraftUpdate struct {
	ArticleID   string
	UserID      string
	Title       string
	Body        string
	Overview    string
	EyeCatchURL string
	UpdatedAt   time.Time
}

// DefaultPopularLimit is the page size of the popular list.
const DefaultPopularLimit = 20
