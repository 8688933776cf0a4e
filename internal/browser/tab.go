package browser

import (
	"context"
	"unicode/utf8"

	"github.com/chromedp/chromedp"

	"github.com/spigell/job-harvester/internal/harvest"
	"github.com/spigell/job-harvester/internal/utils"
)

// minInnerText is the length under which the rendered text is considered a
// shell page and the raw markup is parsed as a fallback.
const minInnerText = 800

const visibleTextJS = `(() => {
  if (!document.body) return "";
  const clone = document.body.cloneNode(true);
  clone.querySelectorAll("script, style, noscript, svg, nav, header, footer, button, iframe").forEach(n => n.remove());
  return clone.innerText || "";
})()`

// Tab is a short-lived tab used for reading one detail page.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Session) OpenTab(context.Context) (harvest.Tab, error) {
	ctx, cancel, err := s.newTarget()
	if err != nil {
		return nil, err
	}
	return &Tab{ctx: ctx, cancel: cancel}, nil
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	runCtx, done := bind(t.ctx, ctx)
	defer done()

	return chromedp.Run(runCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// Text returns the visible text of the current document.
func (t *Tab) Text(ctx context.Context) (string, error) {
	runCtx, done := bind(t.ctx, ctx)
	defer done()

	var inner string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(visibleTextJS, &inner)); err != nil {
		return "", err
	}
	inner = utils.CleanText(inner)
	if utf8.RuneCountInString(inner) >= minInnerText {
		return inner, nil
	}

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return inner, nil
	}
	if fallback := ExtractText(html); utf8.RuneCountInString(fallback) > utf8.RuneCountInString(inner) {
		return fallback, nil
	}
	return inner, nil
}

func (t *Tab) Close() error {
	t.cancel()
	return nil
}
