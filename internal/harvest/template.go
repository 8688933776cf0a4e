package harvest

import (
	"errors"
	"maps"
	"strings"
	"sync"
)

// ErrNotReady is returned when replay is attempted before a template was captured.
var ErrNotReady = errors.New("search template not captured")

var connectionHeaders = map[string]struct{}{
	"content-length": {},
	"host":           {},
	"connection":     {},
}

// Template is the learned pagination contract of a search endpoint.
type Template struct {
	Endpoint string
	Method   string
	Headers  map[string]string
	Body     map[string]any
	Page     int
	PageSize int
}

// Capture holds the first template offered to it. The first captured request
// is assumed to describe every later page.
type Capture struct {
	mu    sync.Mutex
	tmpl  *Template
	ready chan struct{}
}

func NewCapture() *Capture {
	return &Capture{ready: make(chan struct{})}
}

// Offer stores t if nothing was captured yet. It reports whether t was taken.
func (c *Capture) Offer(t *Template) bool {
	if t == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tmpl != nil {
		return false
	}

	stored := *t
	stored.Headers = SanitizeHeaders(t.Headers)
	stored.Body = maps.Clone(t.Body)
	c.tmpl = &stored
	close(c.ready)

	return true
}

// Ready reports whether a template has been captured.
func (c *Capture) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Done is closed once a template is captured.
func (c *Capture) Done() <-chan struct{} {
	return c.ready
}

// Template returns a copy of the captured template.
func (c *Capture) Template() (*Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tmpl == nil {
		return nil, ErrNotReady
	}

	out := *c.tmpl
	out.Headers = maps.Clone(c.tmpl.Headers)
	out.Body = maps.Clone(c.tmpl.Body)
	return &out, nil
}

// SanitizeHeaders drops connection-level and pseudo headers that must not be replayed.
func SanitizeHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if _, skip := connectionHeaders[strings.ToLower(k)]; skip {
			continue
		}
		// HTTP/2 pseudo headers such as :authority.
		if strings.HasPrefix(k, ":") {
			continue
		}
		out[k] = v
	}
	return out
}
