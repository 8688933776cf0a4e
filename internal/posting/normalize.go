package posting

// Field fallback chains for hiring.cafe search payloads, most specific first.
var (
	idChain = []Accessor{
		Path("id"),
		Path("objectID"),
	}
	titleChain = []Accessor{
		Path("job_information", "title"),
		Path("job_information", "job_title_raw"),
		Path("v5_processed_job_data", "core_job_title"),
	}
	companyChain = []Accessor{
		Path("v5_processed_job_data", "company_name"),
		Path("v5_processed_company_data", "name"),
		Path("enriched_company_data", "name"),
	}
	applyChain = []Accessor{
		Path("apply_url"),
		Path("job_information", "apply_url"),
	}
	descriptionChain = []Accessor{
		Path("job_information", "description"),
		Path("description"),
	}
)

// FromSourcePayload maps one search result object into a Posting. It never
// fails: every missing field falls through its chain to an empty string.
// Filtering out unusable postings is left to later stages.
func FromSourcePayload(raw map[string]any, sourceURL string) *Posting {
	return &Posting{
		ID:          FirstString(raw, idChain...),
		Title:       FirstString(raw, titleChain...),
		Company:     FirstString(raw, companyChain...),
		ApplyURL:    CleanURL(FirstString(raw, applyChain...)),
		SourceURL:   sourceURL,
		Description: FirstString(raw, descriptionChain...),
		Raw:         raw,
	}
}

// FromBatch normalizes every object in a batch, skipping non-object entries.
func FromBatch(batch []any, sourceURL string) []*Posting {
	out := make([]*Posting, 0, len(batch))
	for _, item := range batch {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, FromSourcePayload(obj, sourceURL))
	}
	return out
}
