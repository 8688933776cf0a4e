package browser

import (
	"strings"
	"testing"
)

func TestExtractTextPrefersMainSection(t *testing.T) {
	body := strings.Repeat("Build distributed systems in Go. ", 10)
	html := `<html><body>
<header>Site Header</header>
<nav>Jobs | Companies</nav>
<main><h1>Senior Engineer</h1><p>` + body + `</p></main>
<footer>Copyright</footer>
<script>var x = 1;</script>
</body></html>`

	got := ExtractText(html)
	if !strings.HasPrefix(got, "Senior Engineer") {
		t.Fatalf("expected main section first, got %q", got[:40])
	}
	for _, unwanted := range []string{"Site Header", "Jobs | Companies", "Copyright", "var x"} {
		if strings.Contains(got, unwanted) {
			t.Fatalf("expected %q to be stripped, got %q", unwanted, got)
		}
	}
}

func TestExtractTextFallsBackToBody(t *testing.T) {
	html := `<html><body><main>tiny</main><div>Role overview</div><div>Remote friendly</div></body></html>`

	got := ExtractText(html)
	if got != "tiny Role overview Remote friendly" {
		t.Fatalf("unexpected body text %q", got)
	}
}

func TestExtractTextEmptyDocument(t *testing.T) {
	if got := ExtractText(""); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}
