package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/spigell/job-harvester/internal/utils"
)

const chromeSelectors = "script, style, noscript, svg, nav, header, footer, button, iframe"

// contentSelectors are tried in order; the first with enough text wins over
// the whole body.
var contentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#content",
	".job-description",
	".description",
	".posting",
}

const minSectionText = 200

// ExtractText pulls readable text out of a rendered document. Page chrome is
// dropped and a main content section is preferred when one carries enough text.
func ExtractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(chromeSelectors).Remove()
	doc.Find("p, div, li, br, h1, h2, h3, h4, h5, h6, tr, section").AppendHtml("\n")

	for _, sel := range contentSelectors {
		text := utils.CleanText(doc.Find(sel).First().Text())
		if len(text) >= minSectionText {
			return text
		}
	}
	return utils.CleanText(doc.Find("body").Text())
}
