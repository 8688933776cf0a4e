package hiringcafe

import (
	"strings"
	"testing"
)

func TestJobTitleQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		roles      []string
		exclusions []string
		expect     string
	}{
		{name: "roles and exclusions", roles: []string{"Platform Engineer", "SRE"}, exclusions: []string{"Intern"}, expect: `("Platform Engineer" OR "SRE") NOT "Intern"`},
		{name: "single role", roles: []string{" Go Developer "}, expect: `("Go Developer")`},
		{name: "blank entries skipped", roles: []string{"", "DevOps"}, exclusions: []string{" ", "Junior", "Manager"}, expect: `("DevOps") NOT "Junior" NOT "Manager"`},
		{name: "exclusions only", exclusions: []string{"Sales"}, expect: `NOT "Sales"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := JobTitleQuery(tt.roles, tt.exclusions); got != tt.expect {
				t.Fatalf("expected %s, got %s", tt.expect, got)
			}
		})
	}
}

func TestSearchURLRoundTrip(t *testing.T) {
	t.Parallel()

	q := Query{
		Roles:       []string{"Staff Engineer"},
		Exclusions:  []string{"Frontend"},
		Departments: []string{"Engineering"},
		Locations:   []any{map[string]any{"formatted_address": "Berlin, Germany"}},
	}

	u, err := SearchURL("https://hiring.cafe/", q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(u, "https://hiring.cafe/?searchState=") {
		t.Fatalf("unexpected url: %s", u)
	}

	state, err := ParseSearchURL(u)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if state["jobTitleQuery"] != `("Staff Engineer") NOT "Frontend"` {
		t.Fatalf("unexpected query: %v", state["jobTitleQuery"])
	}
	deps, ok := state["departments"].([]any)
	if !ok || len(deps) != 1 || deps[0] != "Engineering" {
		t.Fatalf("unexpected departments: %v", state["departments"])
	}
	if _, ok := state["locations"].([]any); !ok {
		t.Fatalf("expected locations to survive: %v", state)
	}
}

func TestSearchURLValidation(t *testing.T) {
	t.Parallel()

	if _, err := SearchURL("", Query{}); err == nil {
		t.Fatalf("expected error without roles")
	}

	u, err := SearchURL("", Query{Roles: []string{"SRE"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(u, BaseURL+"/?searchState=") {
		t.Fatalf("expected default base url, got %s", u)
	}

	state, _ := ParseSearchURL(u)
	if _, ok := state["departments"]; ok {
		t.Fatalf("empty departments must be omitted: %v", state)
	}

	if _, err := ParseSearchURL("https://hiring.cafe/jobs"); err == nil {
		t.Fatalf("expected error for url without search state")
	}
}
