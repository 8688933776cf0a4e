package hiringcafe

import (
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/harvest"
)

func TestFetchPageReplaysTemplate(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotHeaders http.Header
	var gotCookie string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}

		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_, _ = gz.Write([]byte(`{"results":[{"id":"a","job_information":{"title":"SRE"}},{"objectID":"b"}]}`))
	}))
	defer srv.Close()

	c := New(zap.NewNop())
	tmpl := &harvest.Template{
		Endpoint: srv.URL + "/api/search-jobs",
		Method:   http.MethodPost,
		Headers:  map[string]string{"X-Requested-With": "hc", "Cookie": "stale=1"},
		Body:     map[string]any{"searchState": map[string]any{"jobTitleQuery": "SRE"}, "page": 1.0},
		Page:     1,
		PageSize: 1000,
	}

	res := c.FetchPage(t.Context(), tmpl, 4, []*http.Cookie{{Name: "session", Value: "s3"}})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Status != http.StatusOK || res.Page != 4 {
		t.Fatalf("unexpected result meta: %+v", res)
	}
	if len(res.Postings) != 2 || res.Postings[0].ID != "a" || res.Postings[0].Title != "SRE" || res.Postings[1].ID != "b" {
		t.Fatalf("unexpected postings: %+v", res.Postings)
	}

	if gotBody["page"] != 4.0 || gotBody["size"] != 1000.0 {
		t.Fatalf("unexpected replay body: %v", gotBody)
	}
	if gotHeaders.Get("X-Requested-With") != "hc" {
		t.Fatalf("expected captured header to be replayed")
	}
	if gotCookie != "s3" {
		t.Fatalf("expected browser cookie, got %q", gotCookie)
	}
	if tmpl.Body["page"] != 1.0 {
		t.Fatalf("template body must not be mutated")
	}
}

func TestFetchPageReportsBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res := New(zap.NewNop()).FetchPage(t.Context(), &harvest.Template{Endpoint: srv.URL}, 2, nil)
	if res.Err == nil {
		t.Fatalf("expected error")
	}
	if res.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", res.Status)
	}
}
