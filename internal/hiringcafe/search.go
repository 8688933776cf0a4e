package hiringcafe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Query is the part of a strategy that becomes the hiring.cafe search state.
type Query struct {
	Roles       []string `mapstructure:"roles"`
	Exclusions  []string `mapstructure:"exclusions"`
	Departments []string `mapstructure:"departments"`
	Locations   []any    `mapstructure:"locations"`
}

// JobTitleQuery renders roles and exclusions as ("a" OR "b") NOT "c".
func JobTitleQuery(roles, exclusions []string) string {
	quoted := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			quoted = append(quoted, fmt.Sprintf("%q", r))
		}
	}

	var b strings.Builder
	if len(quoted) > 0 {
		b.WriteString("(")
		b.WriteString(strings.Join(quoted, " OR "))
		b.WriteString(")")
	}

	for _, e := range exclusions {
		if e = strings.TrimSpace(e); e == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "NOT %q", e)
	}

	return b.String()
}

// SearchState builds the searchState object understood by the site.
func SearchState(q Query) map[string]any {
	state := map[string]any{
		"jobTitleQuery": JobTitleQuery(q.Roles, q.Exclusions),
	}
	if len(q.Departments) > 0 {
		state["departments"] = q.Departments
	}
	if len(q.Locations) > 0 {
		state["locations"] = q.Locations
	}
	return state
}

// SearchURL returns base/?searchState=<json> for the query.
func SearchURL(base string, q Query) (string, error) {
	if len(q.Roles) == 0 {
		return "", errors.New("at least one role is required")
	}

	state, err := json.Marshal(SearchState(q))
	if err != nil {
		return "", fmt.Errorf("encode search state: %w", err)
	}

	if base == "" {
		base = BaseURL
	}
	return strings.TrimRight(base, "/") + "/?searchState=" + url.QueryEscape(string(state)), nil
}

// ParseSearchURL extracts the search state from a URL produced by the site or by SearchURL.
func ParseSearchURL(raw string) (map[string]any, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	encoded := u.Query().Get("searchState")
	if encoded == "" {
		return nil, errors.New("url has no searchState parameter")
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(encoded), &state); err != nil {
		return nil, fmt.Errorf("decode search state: %w", err)
	}
	return state, nil
}
