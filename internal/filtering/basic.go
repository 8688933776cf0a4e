package filtering

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/posting"
)

const DefaultMinDescriptionLength = 50

type applyLinkFilter struct {
	toggle
}

// NewApplyLink creates a filter that removes postings without an apply link.
func NewApplyLink() Filter {
	return &applyLinkFilter{}
}

func (f *applyLinkFilter) Name() string { return "apply_link" }

func (f *applyLinkFilter) Validate(*Config) error { return nil }

func (f *applyLinkFilter) Apply(_ context.Context, deps Deps, ps *posting.Postings) (*posting.Postings, Step, error) {
	removed, step := exclude(ps, func(p *posting.Posting) bool {
		return strings.TrimSpace(p.ApplyURL) == ""
	})
	if len(removed) > 0 {
		deps.Logger.Debug("excluding postings without apply link", zap.Strings("excluded_postings", removed))
	}
	return ps, step, nil
}

func (f *applyLinkFilter) Status() Status {
	return f.status(f.Name(), nil)
}

type descriptionFilter struct {
	toggle
	minLength int
}

// NewDescription creates a filter that removes postings whose description is too short to score.
func NewDescription() Filter {
	return &descriptionFilter{}
}

func (f *descriptionFilter) Name() string { return "description" }

func (f *descriptionFilter) Validate(cfg *Config) error {
	f.minLength = DefaultMinDescriptionLength
	if cfg != nil && cfg.MinDescriptionLength > 0 {
		f.minLength = cfg.MinDescriptionLength
	}
	return nil
}

func (f *descriptionFilter) Apply(_ context.Context, deps Deps, ps *posting.Postings) (*posting.Postings, Step, error) {
	removed, step := exclude(ps, func(p *posting.Posting) bool {
		return p.DescriptionLength() < f.minLength
	})
	if len(removed) > 0 {
		deps.Logger.Debug("excluding postings with short descriptions",
			zap.Int("min_length", f.minLength),
			zap.Strings("excluded_postings", removed),
		)
	}
	return ps, step, nil
}

func (f *descriptionFilter) Status() Status {
	return f.status(f.Name(), map[string]string{"min_length": strconv.Itoa(f.minLength)})
}

type companiesFilter struct {
	toggle
	companies map[string]struct{}
}

// NewCompanies creates a filter that removes postings from excluded companies.
func NewCompanies() Filter {
	return &companiesFilter{}
}

func (f *companiesFilter) Name() string { return "companies" }

func (f *companiesFilter) Validate(cfg *Config) error {
	f.companies = make(map[string]struct{})
	if cfg == nil {
		return nil
	}
	for _, c := range cfg.ExcludedCompanies {
		if n := posting.Normalize(c); n != "" {
			f.companies[n] = struct{}{}
		}
	}
	return nil
}

func (f *companiesFilter) Apply(_ context.Context, deps Deps, ps *posting.Postings) (*posting.Postings, Step, error) {
	if len(f.companies) == 0 {
		return ps, Step{Initial: ps.Len(), Left: ps.Len()}, nil
	}

	removed, step := exclude(ps, func(p *posting.Posting) bool {
		_, ok := f.companies[posting.Normalize(p.Company)]
		return ok
	})
	if len(removed) > 0 {
		deps.Logger.Info("excluding postings by companies",
			zap.Strings("excluded_postings", removed),
			zap.Int("postings_left", ps.Len()),
		)
	}
	return ps, step, nil
}

func (f *companiesFilter) Status() Status {
	names := make([]string, 0, len(f.companies))
	for c := range f.companies {
		names = append(names, c)
	}
	details := map[string]string{}
	if len(names) > 0 {
		details["companies"] = strings.Join(names, ",")
	}
	return f.status(f.Name(), details)
}
