package linkedin

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/spigell/job-harvester/internal/posting"
	"github.com/spigell/job-harvester/internal/utils"
)

// Posting ids are namespaced so they never collide with hiring.cafe ids.
const idPrefix = "linkedin:"

var descriptionSelectors = []string{
	".show-more-less-html__markup",
	".description__text",
	".core-section-container__content",
	"div.description",
	"article",
}

const maxBodyFallback = 5000

// Card is one guest search result.
type Card struct {
	JobID       string
	Title       string
	Company     string
	Location    string
	URL         string
	Description string
}

// Posting converts the card into the canonical record.
func (c Card) Posting(searchLocation string) *posting.Posting {
	return &posting.Posting{
		ID:          idPrefix + c.JobID,
		Title:       c.Title,
		Company:     c.Company,
		ApplyURL:    c.URL,
		SourceURL:   SourceURL,
		Description: c.Description,
		Raw: map[string]any{
			"source":          Name,
			"job_id":          c.JobID,
			"title":           c.Title,
			"company":         c.Company,
			"location":        c.Location,
			"search_location": searchLocation,
			"apply_url":       c.URL,
		},
	}
}

// ParseSearchResults reads the list items of a guest search page. Cards
// without a recognizable job id are skipped.
func ParseSearchResults(page string) ([]Card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var cards []Card
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		link, _ := li.Find("a.base-card__full-link").First().Attr("href")
		link, _, _ = strings.Cut(strings.TrimSpace(link), "?")

		id := JobID(link)
		if id == "" {
			return
		}

		cards = append(cards, Card{
			JobID:    id,
			Title:    utils.CleanText(li.Find(".base-search-card__title").First().Text()),
			Company:  utils.CleanText(li.Find(".base-search-card__subtitle").First().Text()),
			Location: utils.CleanText(li.Find(".job-search-card__location").First().Text()),
			URL:      link,
		})
	})
	return cards, nil
}

// JobID takes the id out of a job link: /jobs/view/<id>/ or the trailing
// number of a slug like /jobs/view/go-engineer-at-acme-4012345678.
func JobID(link string) string {
	if link == "" {
		return ""
	}
	if _, after, ok := strings.Cut(link, "view/"); ok {
		id, _, _ := strings.Cut(after, "/")
		if i := strings.LastIndex(id, "-"); i >= 0 {
			id = id[i+1:]
		}
		return id
	}
	if i := strings.LastIndex(link, "-"); i >= 0 {
		return strings.Trim(link[i+1:], "/")
	}
	return ""
}

// ExtractDescription returns the first description block with real content,
// falling back to the head of the page text.
func ExtractDescription(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse posting page: %w", err)
	}

	for _, sel := range descriptionSelectors {
		block := doc.Find(sel).First()
		if block.Length() == 0 {
			continue
		}
		html, err := goquery.OuterHtml(block)
		if err != nil {
			continue
		}
		if text := utils.StripHTML(html); utf8.RuneCountInString(text) > minDescription {
			return text, nil
		}
	}

	doc.Find("script, style, noscript").Remove()
	return utils.Truncate(utils.CleanText(doc.Text()), maxBodyFallback), nil
}
