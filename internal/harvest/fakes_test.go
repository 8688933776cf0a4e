package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/spigell/job-harvester/internal/posting"
)

type fakePage struct {
	heights  []int64
	onLoad   []Event
	onScroll map[int][]Event
	navErr   error

	scrolls int
	events  chan Event
	closed  bool
}

func newFakePage() *fakePage {
	return &fakePage{events: make(chan Event, 1024), onScroll: make(map[int][]Event)}
}

func (p *fakePage) Navigate(context.Context, string) error {
	if p.navErr != nil {
		return p.navErr
	}
	for _, ev := range p.onLoad {
		p.events <- ev
	}
	return nil
}

func (p *fakePage) DismissBanner(context.Context) error { return errors.New("no banner") }

func (p *fakePage) ScrollToBottom(context.Context) error {
	p.scrolls++
	for _, ev := range p.onScroll[p.scrolls] {
		p.events <- ev
	}
	return nil
}

func (p *fakePage) Height(context.Context) (int64, error) {
	if p.scrolls == 0 || len(p.heights) == 0 {
		return 0, nil
	}
	idx := min(p.scrolls, len(p.heights)) - 1
	return p.heights[idx], nil
}

func (p *fakePage) Events() <-chan Event { return p.events }

func (p *fakePage) Cookies(context.Context) ([]*http.Cookie, error) {
	return []*http.Cookie{{Name: "session", Value: "abc"}}, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	pages []*fakePage
	next  int
}

func (b *fakeBrowser) NewPage(context.Context, func(string) bool) (Page, error) {
	if b.next >= len(b.pages) {
		return nil, errors.New("no more pages")
	}
	p := b.pages[b.next]
	b.next++
	return p, nil
}

type fakeSource struct {
	mu      sync.Mutex
	pages   map[int][]string
	fetched []int
}

func (s *fakeSource) IsSearchEndpoint(url string) bool {
	return strings.HasSuffix(url, "/api/search-jobs")
}

func (s *fakeSource) MatchRequest(req *Request) (*Template, bool) {
	if req.Method != http.MethodPost || !s.IsSearchEndpoint(req.URL) {
		return nil, false
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return nil, false
	}
	page, _ := body["page"].(float64)
	return &Template{Endpoint: req.URL, Method: req.Method, Headers: req.Headers, Body: body, Page: int(page), PageSize: 40}, true
}

func (s *fakeSource) ParseBatch(body []byte) ([]*posting.Posting, error) {
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, err
	}
	return postingsFor(ids), nil
}

func (s *fakeSource) FetchPage(_ context.Context, _ *Template, page int, _ []*http.Cookie) PageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, page)
	return PageResult{Page: page, Status: http.StatusOK, Postings: postingsFor(s.pages[page])}
}

func postingsFor(ids []string) []*posting.Posting {
	out := make([]*posting.Posting, 0, len(ids))
	for _, id := range ids {
		out = append(out, &posting.Posting{ID: id, Title: "title " + id, Company: "company " + id, ApplyURL: "https://jobs.example/" + id})
	}
	return out
}

func searchRequest(page int) Event {
	body, _ := json.Marshal(map[string]any{"searchState": map[string]any{}, "page": page, "size": 40})
	return Event{Request: &Request{
		Method:  http.MethodPost,
		URL:     "https://hiring.cafe/api/search-jobs",
		Headers: map[string]string{"Content-Type": "application/json", "Content-Length": "120", "Host": "hiring.cafe"},
		Body:    string(body),
	}}
}

func searchResponse(ids ...string) Event {
	body, _ := json.Marshal(ids)
	return Event{Response: &Response{URL: "https://hiring.cafe/api/search-jobs", Status: http.StatusOK, Body: body}}
}

func rawResponse(body string) Event {
	return Event{Response: &Response{URL: "https://hiring.cafe/api/search-jobs", Status: http.StatusOK, Body: []byte(body)}}
}
