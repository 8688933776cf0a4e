package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/harvest"
)

const (
	eventBuffer    = 4096
	idleQuiet      = 500 * time.Millisecond
	idleMaxWait    = 15 * time.Second
	idlePollPeriod = 100 * time.Millisecond
)

// closeBannerSelector is hiring.cafe's own banner close button. The word
// list below catches generic consent dialogs.
const closeBannerSelector = `button[aria-label="Close banner"]`

const dismissBannerJS = `(() => {
  const close = document.querySelector('` + closeBannerSelector + `');
  if (close) {
    close.click();
    return true;
  }
  const words = ["accept", "agree", "got it", "allow all", "ok"];
  const buttons = Array.from(document.querySelectorAll("button, [role=button]"));
  const hit = buttons.find(b => {
    const t = (b.innerText || "").trim().toLowerCase();
    return t && words.some(w => t === w || t.startsWith(w + " "));
  });
  if (!hit) return false;
  hit.click();
  return true;
})()`

// errNoBanner is returned by DismissBanner when nothing was clicked.
var errNoBanner = errors.New("no banner found")

type pendingResponse struct {
	url    string
	status int
}

// Page is a search tab that reports matching network traffic on a channel.
type Page struct {
	tabCtx context.Context
	cancel context.CancelFunc
	exec   context.Context
	watch  func(string) bool
	logger *zap.Logger

	raw    chan any
	events chan harvest.Event

	inflight   atomic.Int64
	lastActive atomic.Int64

	mu      sync.Mutex
	pending map[network.RequestID]pendingResponse
}

// NewPage opens a tab that observes requests and responses whose URL passes watch.
func (s *Session) NewPage(ctx context.Context, watch func(string) bool) (harvest.Page, error) {
	tabCtx, cancel, err := s.newTarget()
	if err != nil {
		return nil, err
	}

	p := newPage(tabCtx, cancel, cdp.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Target), watch, s.logger)

	chromedp.ListenTarget(tabCtx, p.listen)
	go p.dispatch()

	runCtx, done := bind(tabCtx, ctx)
	defer done()
	if err := chromedp.Run(runCtx, network.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("enabling network events: %w", err)
	}

	return p, nil
}

func newPage(tabCtx context.Context, cancel context.CancelFunc, exec context.Context, watch func(string) bool, logger *zap.Logger) *Page {
	p := &Page{
		tabCtx:  tabCtx,
		cancel:  cancel,
		exec:    exec,
		watch:   watch,
		logger:  logger,
		raw:     make(chan any, eventBuffer),
		events:  make(chan harvest.Event, eventBuffer),
		pending: make(map[network.RequestID]pendingResponse),
	}
	p.lastActive.Store(time.Now().UnixNano())
	return p
}

// listen runs on the protocol reader goroutine, so it must not block or
// issue commands. It only does bookkeeping and hands events to dispatch.
func (p *Page) listen(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.inflight.Add(1)
		p.touch()
		if e.Request == nil || !p.watch(e.Request.URL) {
			return
		}
	case *network.EventResponseReceived:
		if e.Response == nil || !p.watch(e.Response.URL) {
			return
		}
	case *network.EventLoadingFinished:
		p.inflight.Add(-1)
		p.touch()
	case *network.EventLoadingFailed:
		p.inflight.Add(-1)
		p.touch()
	default:
		return
	}

	select {
	case p.raw <- ev:
	default:
		p.logger.Warn("dropping network event, buffer full")
	}
}

func (p *Page) touch() {
	p.lastActive.Store(time.Now().UnixNano())
}

// dispatch turns raw protocol events into harvest events in arrival order.
func (p *Page) dispatch() {
	defer close(p.events)

	for {
		select {
		case <-p.tabCtx.Done():
			return
		case ev := <-p.raw:
			if out, ok := p.convert(ev); ok {
				select {
				case p.events <- out:
				case <-p.tabCtx.Done():
					return
				}
			}
		}
	}
}

func (p *Page) convert(ev any) (harvest.Event, bool) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		req := &harvest.Request{
			ID:      string(e.RequestID),
			Method:  e.Request.Method,
			URL:     e.Request.URL,
			Headers: flattenHeaders(e.Request.Headers),
		}
		if e.Request.HasPostData {
			body, err := network.GetRequestPostData(e.RequestID).Do(p.exec)
			if err != nil {
				p.logger.Debug("reading request body", zap.String("url", req.URL), zap.Error(err))
			}
			req.Body = body
		}
		return harvest.Event{Request: req}, true

	case *network.EventResponseReceived:
		p.mu.Lock()
		p.pending[e.RequestID] = pendingResponse{url: e.Response.URL, status: int(e.Response.Status)}
		p.mu.Unlock()
		return harvest.Event{}, false

	case *network.EventLoadingFinished:
		resp, ok := p.takePending(e.RequestID)
		if !ok {
			return harvest.Event{}, false
		}
		body, err := network.GetResponseBody(e.RequestID).Do(p.exec)
		if err != nil {
			p.logger.Debug("reading response body", zap.String("url", resp.url), zap.Error(err))
			return harvest.Event{}, false
		}
		return harvest.Event{Response: &harvest.Response{
			ID:     string(e.RequestID),
			URL:    resp.url,
			Status: resp.status,
			Body:   body,
		}}, true

	case *network.EventLoadingFailed:
		p.takePending(e.RequestID)
	}

	return harvest.Event{}, false
}

func (p *Page) takePending(id network.RequestID) (pendingResponse, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, ok := p.pending[id]
	delete(p.pending, id)
	return resp, ok
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	runCtx, done := bind(p.tabCtx, ctx)
	defer done()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return err
	}
	return p.waitIdle(runCtx)
}

// waitIdle returns once no request has started or finished for idleQuiet.
func (p *Page) waitIdle(ctx context.Context) error {
	deadline := time.Now().Add(idleMaxWait)
	ticker := time.NewTicker(idlePollPeriod)
	defer ticker.Stop()

	for {
		quietFor := time.Since(time.Unix(0, p.lastActive.Load()))
		if p.inflight.Load() <= 0 && quietFor >= idleQuiet {
			return nil
		}
		if time.Now().After(deadline) {
			p.logger.Debug("network never went idle", zap.Int64("inflight", p.inflight.Load()))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Page) DismissBanner(ctx context.Context) error {
	runCtx, done := bind(p.tabCtx, ctx)
	defer done()

	var clicked bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(dismissBannerJS, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return errNoBanner
	}
	return nil
}

func (p *Page) ScrollToBottom(ctx context.Context) error {
	runCtx, done := bind(p.tabCtx, ctx)
	defer done()

	return chromedp.Run(runCtx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (p *Page) Height(ctx context.Context) (int64, error) {
	runCtx, done := bind(p.tabCtx, ctx)
	defer done()

	var height float64
	if err := chromedp.Run(runCtx, chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &height)); err != nil {
		return 0, err
	}
	return int64(height), nil
}

func (p *Page) Events() <-chan harvest.Event {
	return p.events
}

// Cookies exports the tab's cookies for replaying requests outside the browser.
func (p *Page) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	runCtx, done := bind(p.tabCtx, ctx)
	defer done()

	var cookies []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			hc.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}
		out = append(out, hc)
	}
	return out, nil
}

func (p *Page) Close() error {
	p.cancel()
	return nil
}

func flattenHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	return out
}
