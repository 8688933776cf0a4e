package posting

import (
	"net/url"
	"strings"
)

var trackingParams = map[string]struct{}{
	"gclid":        {},
	"fbclid":       {},
	"ref":          {},
	"source":       {},
	"trk":          {},
	"trackingid":   {},
	"lever-origin": {},
	"gh_src":       {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// CleanURL drops tracking query parameters and the fragment from an apply link.
// Unparseable input is returned trimmed.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingParams[lower]; ok {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String()
}
