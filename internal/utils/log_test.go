package utils

import "testing"

func TestTruncateHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		limit    int
		forLog   string
		truncate string
	}{
		{name: "non-positive limit", input: "hello world", limit: 0, forLog: "", truncate: ""},
		{name: "fits", input: "hello", limit: 10, forLog: "hello", truncate: "hello"},
		{name: "cut", input: "hello world", limit: 5, forLog: "hello...", truncate: "hello"},
		{name: "log view trims, plain cut does not", input: "  spaced  ", limit: 5, forLog: "space...", truncate: "  spa"},
		{name: "counts runes", input: "привет мир", limit: 6, forLog: "привет...", truncate: "привет"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.forLog {
				t.Fatalf("TruncateForLog: expected %q, got %q", tt.forLog, got)
			}
			if got := Truncate(tt.input, tt.limit); got != tt.truncate {
				t.Fatalf("Truncate: expected %q, got %q", tt.truncate, got)
			}
		})
	}
}
