package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestLoadPrecedence(t *testing.T) {
	keyring.MockInit()

	dir := t.TempDir()
	file := filepath.Join(dir, "token")
	if err := os.WriteFile(file, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}
	if err := Store("telegram", "from-keyring"); err != nil {
		t.Fatalf("store keyring secret: %v", err)
	}

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{
			name:   "file wins over value and keyring",
			src:    Source{Name: "telegram token", File: file, Value: "inline", Keyring: "telegram"},
			expect: "from-file",
		},
		{
			name:   "value wins over keyring",
			src:    Source{Name: "telegram token", Value: " inline ", Keyring: "telegram"},
			expect: "inline",
		},
		{
			name:   "keyring is the last resort",
			src:    Source{Name: "telegram token", Keyring: "telegram"},
			expect: "from-keyring",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	keyring.MockInit()

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte("   "), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}

	tests := []struct {
		name     string
		src      Source
		contains string
	}{
		{name: "nothing configured", src: Source{Name: "gemini api key"}, contains: "gemini api key is not configured"},
		{name: "empty file", src: Source{File: empty}, contains: "is empty"},
		{name: "missing file", src: Source{Name: "token", File: empty + ".missing"}, contains: "reading token from file"},
		{name: "unknown keyring account", src: Source{Name: "token", Keyring: "absent"}, contains: `keyring account "absent"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.src)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Fatalf("expected error to contain %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestStoreRejectsBlankInput(t *testing.T) {
	keyring.MockInit()

	if err := Store(" ", "value"); err == nil {
		t.Fatalf("expected error for blank account")
	}
	if err := Store("account", " "); err == nil {
		t.Fatalf("expected error for blank value")
	}
}
