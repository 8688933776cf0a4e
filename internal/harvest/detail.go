package harvest

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spigell/job-harvester/internal/logger"
	"github.com/spigell/job-harvester/internal/posting"
	"github.com/spigell/job-harvester/internal/utils"
)

// DetailConfig tunes the detail fetcher. Zero values fall back to defaults.
type DetailConfig struct {
	Concurrency int
	// Polls is how many times the rendered text is read after navigation.
	Polls        int
	PollInterval time.Duration
	// PollTarget stops polling early once the text is at least this long.
	PollTarget int
	// MinLength is the shortest text accepted as a description. Postings
	// whose description is already this long are not fetched.
	MinLength int
	Timeout   time.Duration
}

const (
	defaultDetailConcurrency = 5
	defaultDetailPolls       = 5
	defaultDetailInterval    = 2 * time.Second
	defaultDetailPollTarget  = 500
	defaultDetailMinLength   = 200
	defaultDetailTimeout     = 45 * time.Second
)

func (c DetailConfig) withDefaults() DetailConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultDetailConcurrency
	}
	if c.Polls <= 0 {
		c.Polls = defaultDetailPolls
	}
	if c.PollInterval < 0 {
		c.PollInterval = 0
	} else if c.PollInterval == 0 {
		c.PollInterval = defaultDetailInterval
	}
	if c.PollTarget <= 0 {
		c.PollTarget = defaultDetailPollTarget
	}
	if c.MinLength <= 0 {
		c.MinLength = defaultDetailMinLength
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultDetailTimeout
	}
	return c
}

// DetailResult is the outcome of one detail fetch.
type DetailResult struct {
	Key  string
	URL  string
	Text string
	Err  error
}

// Filled reports whether the fetch produced an accepted description.
func (r DetailResult) Filled() bool {
	return r.Err == nil && r.Text != ""
}

// DetailFetcher back-fills short descriptions from each posting's apply link.
type DetailFetcher struct {
	cfg    DetailConfig
	tabs   TabOpener
	logger *zap.Logger
}

func NewDetailFetcher(cfg DetailConfig, tabs TabOpener, log *zap.Logger) *DetailFetcher {
	return &DetailFetcher{
		cfg:    cfg.withDefaults(),
		tabs:   tabs,
		logger: logger.WithFields(log),
	}
}

// Fetch visits every posting that needs details, at most Concurrency at a
// time. Accepted texts replace the posting description; failures are logged
// and leave the posting untouched. Results follow the input order.
func (d *DetailFetcher) Fetch(ctx context.Context, postings []*posting.Posting) []DetailResult {
	var targets []*posting.Posting
	for _, p := range postings {
		if p.NeedsDetails(d.cfg.MinLength) {
			targets = append(targets, p)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	d.logger.Info("fetching posting details", zap.Int("count", len(targets)), zap.Int("concurrency", d.cfg.Concurrency))

	results := make([]DetailResult, len(targets))
	sem := semaphore.NewWeighted(int64(d.cfg.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range targets {
		if err := sem.Acquire(gctx, 1); err != nil {
			results[i] = DetailResult{Key: p.Key(), URL: p.ApplyURL, Err: err}
			continue
		}

		g.Go(func() error {
			defer sem.Release(1)
			results[i] = d.fetchOne(gctx, p)
			// Never fail the group: one posting must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		log := logger.WithPosting(d.logger, r.Key)
		if r.Err != nil {
			log.Debug("detail fetch failed", zap.String("url", r.URL), zap.Error(r.Err))
			continue
		}
		if r.Text == "" {
			continue
		}
		targets[i].Description = r.Text
		log.Debug("description filled", zap.Int("length", utf8.RuneCountInString(r.Text)))
	}

	return results
}

func (d *DetailFetcher) fetchOne(ctx context.Context, p *posting.Posting) DetailResult {
	res := DetailResult{Key: p.Key(), URL: p.ApplyURL}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	tab, err := d.tabs.OpenTab(ctx)
	if err != nil {
		res.Err = fmt.Errorf("open tab: %w", err)
		return res
	}
	defer tab.Close()

	if err := tab.Navigate(ctx, p.ApplyURL); err != nil {
		res.Err = fmt.Errorf("navigate: %w", err)
		return res
	}

	best := ""
	for i := 0; i < d.cfg.Polls; i++ {
		text, err := tab.Text(ctx)
		if err == nil {
			text = utils.CleanText(text)
			if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
				best = text
			}
		}
		if utf8.RuneCountInString(best) >= d.cfg.PollTarget {
			break
		}
		if i < d.cfg.Polls-1 {
			if err := utils.WaitFor(ctx, d.cfg.PollInterval); err != nil {
				res.Err = err
				return res
			}
		}
	}

	if utf8.RuneCountInString(best) > d.cfg.MinLength {
		res.Text = best
	}
	return res
}
