package browser

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

const searchURL = "https://hiring.cafe/api/search-jobs"

func testPage(t *testing.T) *Page {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// A context without a protocol executor makes body reads fail fast.
	watch := func(u string) bool { return strings.HasSuffix(u, "/api/search-jobs") }
	return newPage(ctx, cancel, context.Background(), watch, zap.NewNop())
}

func drainRaw(p *Page) []any {
	var out []any
	for {
		select {
		case ev := <-p.raw:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestListenFiltersByURLButCountsEveryRequest(t *testing.T) {
	p := testPage(t)

	p.listen(&network.EventRequestWillBeSent{RequestID: "1", Request: &network.Request{URL: "https://cdn.example/app.js"}})
	p.listen(&network.EventRequestWillBeSent{RequestID: "2", Request: &network.Request{URL: searchURL, Method: "POST"}})
	p.listen(&network.EventResponseReceived{RequestID: "1", Response: &network.Response{URL: "https://cdn.example/app.js"}})
	p.listen(&network.EventResponseReceived{RequestID: "2", Response: &network.Response{URL: searchURL, Status: 200}})

	if got := p.inflight.Load(); got != 2 {
		t.Fatalf("expected 2 requests in flight, got %d", got)
	}

	raw := drainRaw(p)
	if len(raw) != 2 {
		t.Fatalf("expected only search traffic to be forwarded, got %d events", len(raw))
	}
	if _, ok := raw[0].(*network.EventRequestWillBeSent); !ok {
		t.Fatalf("expected request first, got %T", raw[0])
	}

	p.listen(&network.EventLoadingFinished{RequestID: "1"})
	p.listen(&network.EventLoadingFailed{RequestID: "2"})
	if got := p.inflight.Load(); got != 0 {
		t.Fatalf("expected nothing in flight, got %d", got)
	}
	if n := len(drainRaw(p)); n != 2 {
		t.Fatalf("expected completion events to be forwarded, got %d", n)
	}
}

func TestListenIgnoresUnrelatedEvents(t *testing.T) {
	p := testPage(t)

	p.listen(&network.EventDataReceived{RequestID: "1"})
	p.listen(&network.EventRequestWillBeSent{RequestID: "2"})

	if n := len(drainRaw(p)); n != 0 {
		t.Fatalf("expected no forwarded events, got %d", n)
	}
	if got := p.inflight.Load(); got != 1 {
		t.Fatalf("a request without details still counts as in flight, got %d", got)
	}
}

func TestConvertRequestWithoutBody(t *testing.T) {
	p := testPage(t)

	ev, ok := p.convert(&network.EventRequestWillBeSent{
		RequestID: "7",
		Request: &network.Request{
			URL:     searchURL,
			Method:  "POST",
			Headers: network.Headers{"Content-Type": "application/json", "X-Page": 2},
		},
	})
	if !ok || ev.Request == nil {
		t.Fatalf("expected a request event")
	}
	if ev.Request.ID != "7" || ev.Request.Method != "POST" || ev.Request.URL != searchURL {
		t.Fatalf("unexpected request: %+v", ev.Request)
	}
	if ev.Request.Headers["X-Page"] != "2" {
		t.Fatalf("expected headers to be flattened, got %v", ev.Request.Headers)
	}
}

func TestConvertMatchesResponsesToLoadingFinished(t *testing.T) {
	p := testPage(t)

	if _, ok := p.convert(&network.EventResponseReceived{RequestID: "1", Response: &network.Response{URL: searchURL, Status: 200}}); ok {
		t.Fatalf("response headers alone must not produce an event")
	}
	if len(p.pending) != 1 {
		t.Fatalf("expected one pending response, got %d", len(p.pending))
	}

	if _, ok := p.convert(&network.EventLoadingFinished{RequestID: "unknown"}); ok {
		t.Fatalf("unknown request must not produce an event")
	}
	if len(p.pending) != 1 {
		t.Fatalf("unknown request must not touch pending responses")
	}

	// The body read fails without a browser, so the event is dropped, but
	// the pending entry is consumed either way.
	if _, ok := p.convert(&network.EventLoadingFinished{RequestID: "1"}); ok {
		t.Fatalf("expected unreadable body to be dropped")
	}
	if len(p.pending) != 0 {
		t.Fatalf("expected pending response to be consumed")
	}
}

func TestConvertLoadingFailedClearsPending(t *testing.T) {
	p := testPage(t)

	p.convert(&network.EventResponseReceived{RequestID: "3", Response: &network.Response{URL: searchURL, Status: 500}})
	if _, ok := p.convert(&network.EventLoadingFailed{RequestID: "3"}); ok {
		t.Fatalf("failed loads never produce events")
	}
	if len(p.pending) != 0 {
		t.Fatalf("expected pending response to be dropped")
	}
}

func TestCloseBannerSelectorComesFirst(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div class="banner"><button aria-label="Close banner">×</button><button>OK</button></div>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n := doc.Find(closeBannerSelector).Length(); n != 1 {
		t.Fatalf("expected the selector to find the close button, found %d", n)
	}

	closeAt := strings.Index(dismissBannerJS, closeBannerSelector)
	wordsAt := strings.Index(dismissBannerJS, "const words")
	if closeAt < 0 || wordsAt < 0 || closeAt > wordsAt {
		t.Fatalf("expected the close button to be tried before the word list")
	}
}
