package posting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	t.Parallel()

	withID := &Posting{ID: " 77 ", Company: "Acme", Title: "SRE"}
	if withID.Key() != "77" {
		t.Fatalf("expected id key, got %q", withID.Key())
	}

	a := &Posting{Company: "  Acme Corp ", Title: "Staff Engineer"}
	b := &Posting{Company: "acme corp", Title: " STAFF ENGINEER"}
	if a.Key() != b.Key() {
		t.Fatalf("expected composite keys to match: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() != "acme corp|staff engineer" {
		t.Fatalf("unexpected composite key: %q", a.Key())
	}
}

func TestNeedsDetails(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		p      Posting
		expect bool
	}{
		{name: "short with link", p: Posting{ApplyURL: "https://x", Description: "tiny"}, expect: true},
		{name: "short without link", p: Posting{Description: "tiny"}, expect: false},
		{name: "long enough", p: Posting{ApplyURL: "https://x", Description: strings.Repeat("a", 200)}, expect: false},
		{name: "whitespace only", p: Posting{ApplyURL: "https://x", Description: strings.Repeat(" ", 300)}, expect: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.p.NeedsDetails(200); got != tt.expect {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestSetFirstSeenWins(t *testing.T) {
	t.Parallel()

	s := NewSet()
	first := &Posting{ID: "1", Title: "first"}
	if !s.Add(first) {
		t.Fatalf("expected first add to succeed")
	}
	if s.Add(&Posting{ID: "1", Title: "second"}) {
		t.Fatalf("expected duplicate to be ignored")
	}
	added := s.AddAll([]*Posting{{ID: "2"}, {ID: "1"}, {Company: "A", Title: "B"}})
	if added != 2 {
		t.Fatalf("expected 2 new postings, got %d", added)
	}

	items := s.Items()
	if len(items) != 3 || items[0] != first || items[1].ID != "2" || items[2].Key() != "a|b" {
		t.Fatalf("unexpected order: %+v", items)
	}
}

func TestExcludePreservesOrder(t *testing.T) {
	t.Parallel()

	ps := &Postings{Items: []*Posting{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}}
	removed := ps.Exclude(func(p *Posting) bool { return p.ID == "2" || p.ID == "3" })

	if strings.Join(removed, ",") != "2,3" {
		t.Fatalf("unexpected removed keys: %v", removed)
	}
	if strings.Join(ps.Keys(), ",") != "1,4" {
		t.Fatalf("unexpected remaining keys: %v", ps.Keys())
	}
	if ps.FindByKey("4") == nil || ps.FindByKey("2") != nil {
		t.Fatalf("lookup does not reflect exclusion")
	}
}

func TestCleanURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                                 "",
		"not a url":                        "not a url",
		"https://a.io/j?utm_medium=x&id=5": "https://a.io/j?id=5",
		"https://a.io/j?gh_src=abc#apply":  "https://a.io/j",
		"https://a.io/j?Ref=hc&lever-origin=applied&x=1": "https://a.io/j?x=1",
	}

	for input, expect := range tests {
		if got := CleanURL(input); got != expect {
			t.Fatalf("CleanURL(%q): expected %q, got %q", input, expect, got)
		}
	}
}

func TestExcludedFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "exclude.json")

	empty, err := ReadExcludedFile(path)
	if err != nil {
		t.Fatalf("missing file should be empty: %v", err)
	}
	if len(empty.Items) != 0 {
		t.Fatalf("expected no items")
	}

	ps := &Postings{Items: []*Posting{{ID: "9", Company: "Acme", Title: "SRE", ApplyURL: "https://a.io"}}}
	empty.Append(ps.ToExcluded(time.Unix(0, 0).UTC()))
	if err := empty.ToFile(path); err != nil {
		t.Fatalf("write exclude file: %v", err)
	}

	loaded, err := ReadExcludedFile(path)
	if err != nil {
		t.Fatalf("read exclude file: %v", err)
	}
	if _, ok := loaded.Keys()["9"]; !ok {
		t.Fatalf("expected key 9 in %+v", loaded.Items)
	}

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if loaded, err = ReadExcludedFile(path); err != nil || len(loaded.Items) != 0 {
		t.Fatalf("expected empty list for empty file, got %+v, %v", loaded, err)
	}
}
