package navigator

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Crawl result of one navigation or content read
type Result struct {
	// Actual page URL after redirects
	URL string

	SessionID  string
	StatusCode int
	HTML       string

	// DOM tree of the page, restricted by Model.ReadOnlySelector if set
	Document *goquery.Document

	FromCache bool
	FetchedAt time.Time
}

// Whitespace normalized text of the document
func (r *Result) Text() string {
	if r == nil || r.Document == nil {
		return ""
	}

	selection := r.Document.Find("body")
	if selection.Length() == 0 {
		selection = r.Document.Selection
	}
	return strings.Join(strings.Fields(selection.Text()), " ")
}

func (r *Result) clone() *Result {
	copied := *r
	if r.Document != nil {
		copied.Document = goquery.CloneDocument(r.Document)
	}
	return &copied
}
