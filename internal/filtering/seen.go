package filtering

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/posting"
)

// SeenFilter partitions postings into already processed and new ones using
// the dedup store. A failed lookup keeps the posting.
type SeenFilter struct {
	toggle
	processed  int
	lookupErrs int
}

// NewSeen creates a filter that removes postings recorded by earlier runs.
func NewSeen() *SeenFilter {
	return &SeenFilter{}
}

func (f *SeenFilter) Name() string { return "seen" }

func (f *SeenFilter) Validate(*Config) error { return nil }

func (f *SeenFilter) Apply(ctx context.Context, deps Deps, ps *posting.Postings) (*posting.Postings, Step, error) {
	if deps.Seen == nil {
		return ps, Step{}, errors.New("dedup store is required")
	}

	f.processed, f.lookupErrs = 0, 0
	removed, step := exclude(ps, func(p *posting.Posting) bool {
		seen, err := deps.Seen.IsProcessed(ctx, p)
		if err != nil {
			f.lookupErrs++
			deps.Logger.Warn("dedup lookup failed, keeping posting",
				zap.String("posting_key", p.Key()),
				zap.Error(err),
			)
			return false
		}
		return seen
	})
	f.processed = len(removed)

	if f.processed > 0 {
		deps.Logger.Info("skipping already processed postings",
			zap.Int("already_processed", f.processed),
			zap.Int("postings_left", ps.Len()),
		)
	}
	return ps, step, nil
}

// AlreadyProcessed returns how many postings the last Apply dropped.
func (f *SeenFilter) AlreadyProcessed() int { return f.processed }

func (f *SeenFilter) Status() Status {
	return f.status(f.Name(), map[string]string{
		"already_processed": strconv.Itoa(f.processed),
		"lookup_errors":     strconv.Itoa(f.lookupErrs),
	})
}
