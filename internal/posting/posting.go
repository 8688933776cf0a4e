// Package posting holds the canonical job posting record shared by the
// harvester, the dedup store and the scoring pipeline.
package posting

import (
	"encoding/json"
	"os"
	"strings"
	"unicode/utf8"
)

// Posting is one harvested job listing.
type Posting struct {
	ID          string         `json:"id,omitempty"`
	Title       string         `json:"title"`
	Company     string         `json:"company"`
	ApplyURL    string         `json:"apply_url,omitempty"`
	SourceURL   string         `json:"source_url,omitempty"`
	Description string         `json:"description,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// Normalize lowercases and trims a company or title for identity comparisons.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CompositeKey is the identity used when a posting carries no source id.
func CompositeKey(company, title string) string {
	return Normalize(company) + "|" + Normalize(title)
}

// Key returns the source-native id when present, otherwise the normalized company|title pair.
func (p *Posting) Key() string {
	if id := strings.TrimSpace(p.ID); id != "" {
		return id
	}
	return CompositeKey(p.Company, p.Title)
}

// DescriptionLength counts runes of the trimmed description.
func (p *Posting) DescriptionLength() int {
	return utf8.RuneCountInString(strings.TrimSpace(p.Description))
}

// NeedsDetails reports whether the posting should go through a detail fetch:
// its description is shorter than minLength and it has somewhere to fetch from.
func (p *Posting) NeedsDetails(minLength int) bool {
	return strings.TrimSpace(p.ApplyURL) != "" && p.DescriptionLength() < minLength
}

// Postings is an ordered list of postings.
type Postings struct {
	Items []*Posting
}

func (ps *Postings) Len() int {
	return len(ps.Items)
}

// Keys returns the identity keys in list order.
func (ps *Postings) Keys() []string {
	keys := make([]string, 0, len(ps.Items))
	for _, p := range ps.Items {
		keys = append(keys, p.Key())
	}
	return keys
}

// FindByKey returns the posting with the given identity key or nil.
func (ps *Postings) FindByKey(key string) *Posting {
	for _, p := range ps.Items {
		if p.Key() == key {
			return p
		}
	}
	return nil
}

// Exclude removes every posting matching drop, preserving the order of the rest.
// It returns the keys of the removed postings.
func (ps *Postings) Exclude(drop func(*Posting) bool) []string {
	var removed []string
	kept := ps.Items[:0]
	for _, p := range ps.Items {
		if drop(p) {
			removed = append(removed, p.Key())
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(ps.Items); i++ {
		ps.Items[i] = nil
	}
	ps.Items = kept
	return removed
}

// DumpToTmpFile writes the list as indented JSON into a new temp file and returns its name.
func (ps *Postings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "postings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ps); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ReportByCompany groups titles and links by company name.
func (ps *Postings) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, p := range ps.Items {
		company := strings.TrimSpace(p.Company)
		if company == "" {
			company = "(unknown)"
		}
		report[company] = append(report[company], map[string]string{
			"title":              p.Title,
			"url":                p.ApplyURL,
			"description_length": itoa(p.DescriptionLength()),
		})
	}
	return report
}
