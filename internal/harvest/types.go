// Package harvest drives a browser through a paginated, infinitely scrolling
// search page and collects the postings it surfaces.
package harvest

import (
	"context"
	"net/http"

	"github.com/spigell/job-harvester/internal/posting"
)

// Strategy is one named search to run.
type Strategy struct {
	Name string
	URL  string
}

// Request is an outgoing request observed on the page.
type Request struct {
	ID      string
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Response is a completed response whose URL matched the page's watch filter.
type Response struct {
	ID     string
	URL    string
	Status int
	Body   []byte
}

// Event is one observed network event. Exactly one of Request and Response is set.
type Event struct {
	Request  *Request
	Response *Response
}

// Page is a single browser tab driving the search UI.
type Page interface {
	Navigate(ctx context.Context, url string) error
	DismissBanner(ctx context.Context) error
	ScrollToBottom(ctx context.Context) error
	Height(ctx context.Context) (int64, error)
	// Events delivers matching network traffic in arrival order.
	Events() <-chan Event
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Close() error
}

// Browser opens pages. watch selects which URLs produce events.
type Browser interface {
	NewPage(ctx context.Context, watch func(url string) bool) (Page, error)
}

// Tab is a throwaway page used to read one posting's external detail page.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	// Text returns the rendered text of the page with chrome elements removed.
	Text(ctx context.Context) (string, error)
	Close() error
}

// TabOpener opens tabs for the detail fetcher.
type TabOpener interface {
	OpenTab(ctx context.Context) (Tab, error)
}

// PageResult is the outcome of one replayed page request.
type PageResult struct {
	Page     int
	Status   int
	Postings []*posting.Posting
	Err      error
}

// Source knows the search API contract of one job board.
type Source interface {
	// IsSearchEndpoint reports whether traffic to url should be observed.
	IsSearchEndpoint(url string) bool
	// MatchRequest recognizes a paginated search request and describes it as a template.
	MatchRequest(req *Request) (*Template, bool)
	// ParseBatch extracts postings from a search response body.
	ParseBatch(body []byte) ([]*posting.Posting, error)
	// FetchPage replays the template for the given page number.
	FetchPage(ctx context.Context, tmpl *Template, page int, cookies []*http.Cookie) PageResult
}
