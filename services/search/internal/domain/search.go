package domain

import (
	"time"
)

// Tag is a tag document in the tags index. Count is the number of articles
// carrying the tag.
type Tag struct {
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// UserDocument is a user profile document in the users index.
type UserDocument struct {
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"user_display_name"`
	SelfIntroduction string    `json:"self_introduction,omitempty"`
	IconImageURL     string    `json:"icon_image_url,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Page selects one page of results. Page is 1-indexed.
type Page struct {
	Limit int
	Page  int
}

// From returns the offset of the first result on the page.
func (p Page) From() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Default page sizes.
const (
	DefaultTagLimit  = 100
	DefaultUserLimit = 10
)
