package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/posting"
)

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile creates a filter that removes postings listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, ps *posting.Postings) (*posting.Postings, Step, error) {
	if f.path == "" {
		return ps, Step{Initial: ps.Len(), Left: ps.Len()}, nil
	}

	excluded, err := posting.ReadExcludedFile(f.path)
	if err != nil {
		return ps, Step{}, fmt.Errorf("getting excluded postings from file: %w", err)
	}

	keys := excluded.Keys()
	removed, step := exclude(ps, func(p *posting.Posting) bool {
		_, ok := keys[p.Key()]
		return ok
	})
	if len(removed) > 0 {
		deps.Logger.Info("excluding postings based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_postings", removed),
			zap.Int("postings_left", ps.Len()),
		)
	}
	return ps, step, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return f.status(f.Name(), details)
}
