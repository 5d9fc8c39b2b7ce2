// Package sanitize cleans user supplied article text before it is stored.
package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

// ArticleBodyTags are the HTML elements allowed in an article body.
var ArticleBodyTags = []string{
	"a", "b", "blockquote", "br", "h2", "h3", "i", "p", "u",
	"img", "hr", "div", "figure", "figcaption",
}

// Sanitizer holds the compiled policies. It is safe for concurrent use.
type Sanitizer struct {
	text *bluemonday.Policy
	body *bluemonday.Policy
}

// New builds the text and article body policies.
func New() *Sanitizer {
	body := bluemonday.NewPolicy()
	body.AllowElements(ArticleBodyTags...)
	body.AllowStandardURLs()
	body.AllowAttrs("href").OnElements("a")
	body.AllowAttrs("src", "alt").OnElements("img")
	body.AllowAttrs("class").OnElements("div", "figure")
	body.RequireNoFollowOnLinks(false)

	return &Sanitizer{
		text: bluemonday.StrictPolicy(),
		body: body,
	}
}

// Text strips all markup.
func (s *Sanitizer) Text(in string) string {
	return s.text.Sanitize(in)
}

// ArticleBody keeps only the allowed article elements and attributes.
func (s *Sanitizer) ArticleBody(in string) string {
	return s.body.Sanitize(in)
}
