package hiringcafe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spigell/job-harvester/internal/harvest"
	"github.com/spigell/job-harvester/internal/posting"
)

// batchKeys are tried in order when a search response is an object.
var batchKeys = []string{"results", "jobs", "data", "items", "content"}

// IsSearchEndpoint matches the paginated search API path.
func (c *Client) IsSearchEndpoint(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(u.Path, "/"), searchPath)
}

// MatchRequest recognizes a POST to the search endpoint whose JSON body has a
// searchState and a page number of at least 1.
func (c *Client) MatchRequest(req *harvest.Request) (*harvest.Template, bool) {
	if req == nil || req.Method != http.MethodPost || !c.IsSearchEndpoint(req.URL) {
		return nil, false
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return nil, false
	}

	if _, ok := body["searchState"]; !ok {
		return nil, false
	}

	page, ok := intField(body, "page")
	if !ok || page < 1 {
		return nil, false
	}

	size, ok := intField(body, "size")
	if !ok || size <= 0 {
		size = defaultPageSize
	}

	return &harvest.Template{
		Endpoint: req.URL,
		Method:   req.Method,
		Headers:  req.Headers,
		Body:     body,
		Page:     page,
		PageSize: size,
	}, true
}

// ParseBatch normalizes the postings carried by a search response.
func (c *Client) ParseBatch(body []byte) ([]*posting.Posting, error) {
	batch, err := ExtractBatch(body)
	if err != nil {
		return nil, err
	}
	return posting.FromBatch(batch, c.BaseURL), nil
}

// ExtractBatch returns the result list of a search response: the body itself
// when it is an array, else the first array under one of the known keys.
func ExtractBatch(body []byte) ([]any, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	switch v := decoded.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range batchKeys {
			if list, ok := v[key].([]any); ok {
				return list, nil
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected search response type %T", decoded)
	}
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}
