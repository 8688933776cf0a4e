// Package pipeline sequences one run: harvest every strategy, drop postings
// that are unusable or already seen, score the rest one at a time, escalate
// the promising ones and publish the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/ai"
	"github.com/spigell/job-harvester/internal/filtering"
	"github.com/spigell/job-harvester/internal/harvest"
	"github.com/spigell/job-harvester/internal/logger"
	"github.com/spigell/job-harvester/internal/posting"
	"github.com/spigell/job-harvester/internal/report"
	"github.com/spigell/job-harvester/internal/store"
)

const (
	DefaultThreshold   = 65
	DefaultReportEvery = 5
)

type Harvester interface {
	Run(ctx context.Context, strategies []harvest.Strategy) *harvest.Result
}

type Store interface {
	filtering.SeenChecker
	Record(ctx context.Context, p *posting.Posting, score int, status, runID string) (bool, error)
}

// Feed is an extra source harvested without the browser. Its postings are
// merged after the strategies, so a posting seen there first wins.
type Feed interface {
	Name() string
	Harvest(ctx context.Context) ([]*posting.Posting, error)
}

type Scorer interface {
	Score(ctx context.Context, profileJSON string, p *posting.Posting) ai.Score
}

type Escalator interface {
	Analyze(ctx context.Context, cvText string, p *posting.Posting) ai.Escalation
}

type ReportSink interface {
	Write(matches []report.Match, meta report.Meta) error
}

type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Gate is asked before scoring starts. Returning false ends the run without scoring.
type Gate func(ctx context.Context, ps *posting.Postings) (bool, error)

type Config struct {
	Threshold   int
	ReportEvery int
	Filters     *filtering.Config
	// DisabledFilters are filter names to skip, mapped to the reason.
	DisabledFilters map[string]string
}

// Profile is the candidate side of every prompt.
type Profile struct {
	JSON   string
	CVText string
}

type Deps struct {
	Harvester Harvester
	Store     Store
	Scorer    Scorer
	Escalator Escalator
	Report    ReportSink
	// Feeds are optional.
	Feeds []Feed
	// Notifier is optional.
	Notifier Notifier
	// Gate is optional.
	Gate Gate
	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
	Logger   *zap.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID        string
	Harvested    int
	AlreadySeen  int
	Candidates   int
	Scored       int
	Escalations  int
	RecordErrors int
	Matches      []report.Match
	// ReportWritten is set once the final report has been rendered.
	ReportWritten bool
	Aborted       bool
}

func (r *Result) meta(cfg Config, strategies []harvest.Strategy, final bool) report.Meta {
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name)
	}
	return report.Meta{
		RunID:      r.RunID,
		Strategies: names,
		Harvested:  r.Harvested,
		Skipped:    r.AlreadySeen,
		Scored:     r.Scored,
		Threshold:  cfg.Threshold,
		Final:      final,
	}
}

type Pipeline struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Harvester == nil:
		return nil, errors.New("harvester is required")
	case deps.Store == nil:
		return nil, errors.New("store is required")
	case deps.Scorer == nil:
		return nil, errors.New("scorer is required")
	case deps.Escalator == nil:
		return nil, errors.New("escalator is required")
	case deps.Report == nil:
		return nil, errors.New("report sink is required")
	}

	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = DefaultReportEvery
	}
	if cfg.Filters == nil {
		cfg.Filters = &filtering.Config{}
	}
	deps.Logger = logger.WithFields(deps.Logger)

	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// Run executes one full pass. Only setup problems and filter configuration
// errors are returned; unit failures degrade the result instead.
func (p *Pipeline) Run(ctx context.Context, strategies []harvest.Strategy, profile Profile) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := p.deps.Logger.With(zap.String(logger.FieldRun, res.RunID))

	harvested := p.deps.Harvester.Run(ctx, strategies)
	log.Info("harvest finished",
		zap.String("postings", humanize.Comma(int64(len(harvested.Postings)))),
		zap.Int("strategies", len(harvested.Strategies)),
	)

	items := p.merge(ctx, log, harvested.Postings)
	res.Harvested = len(items)

	steps := filtering.Default()
	for name, reason := range p.cfg.DisabledFilters {
		filtering.DisableByName(steps, name, reason)
	}
	log.Debug("filter chain", zap.Any("steps", filtering.Describe(steps)))

	candidates, err := filtering.Run(ctx, p.cfg.Filters, filtering.Deps{Logger: log, Seen: p.deps.Store}, steps,
		&posting.Postings{Items: items})
	if err != nil {
		return res, fmt.Errorf("filtering postings: %w", err)
	}
	for _, step := range steps {
		if seen, ok := step.(*filtering.SeenFilter); ok {
			res.AlreadySeen = seen.AlreadyProcessed()
		}
	}
	res.Candidates = candidates.Len()

	if candidates.Len() == 0 {
		log.Info("nothing new to score")
		p.finish(ctx, log, res, strategies)
		return res, nil
	}

	if p.deps.Gate != nil {
		ok, err := p.deps.Gate(ctx, candidates)
		if err != nil {
			return res, fmt.Errorf("confirmation: %w", err)
		}
		if !ok {
			log.Info("scoring declined")
			res.Aborted = true
			return res, nil
		}
	}

	p.score(ctx, log, res, candidates.Items, strategies, profile)
	p.finish(ctx, log, res, strategies)
	return res, nil
}

// merge adds every feed to the harvested postings. A failed feed is skipped.
func (p *Pipeline) merge(ctx context.Context, log *zap.Logger, harvested []*posting.Posting) []*posting.Posting {
	if len(p.deps.Feeds) == 0 {
		return harvested
	}

	set := posting.NewSet()
	set.AddAll(harvested)
	for _, feed := range p.deps.Feeds {
		flog := log.With(zap.String("feed", feed.Name()))

		got, err := feed.Harvest(ctx)
		if err != nil {
			flog.Warn("feed failed, continuing without it", zap.Error(err))
			continue
		}
		added := set.AddAll(got)
		flog.Info("feed merged", zap.Int("fetched", len(got)), zap.Int("added", added))
	}
	return set.Items()
}

func (p *Pipeline) score(ctx context.Context, log *zap.Logger, res *Result, items []*posting.Posting, strategies []harvest.Strategy, profile Profile) {
	var bar *pb.ProgressBar
	if p.deps.Progress != nil {
		bar = pb.Full.New(len(items)).SetWriter(p.deps.Progress).Set("prefix", "scoring ").Start()
		defer bar.Finish()
	}

	started := time.Now()
	for i, item := range items {
		if ctx.Err() != nil {
			log.Warn("run cancelled, stopping scoring", zap.Int("scored", res.Scored), zap.Int("left", len(items)-i))
			return
		}

		plog := logger.WithPosting(log, item.Key())

		score := p.deps.Scorer.Score(ctx, profile.JSON, item)
		res.Scored++

		status := store.StatusScored
		if score.Meets(p.cfg.Threshold) {
			match := report.Match{Posting: item, Score: score, ScoredAt: time.Now()}

			match.Escalation = p.deps.Escalator.Analyze(ctx, profile.CVText, item)
			res.Escalations++
			status = store.StatusEscalated
			if !match.Escalation.Available() {
				plog.Info("escalation unavailable", zap.Error(match.Escalation.Err))
			}

			res.Matches = append(res.Matches, match)
		}

		if _, err := p.deps.Store.Record(ctx, item, score.Value, status, res.RunID); err != nil {
			res.RecordErrors++
			plog.Error("recording posting failed, it will be rescored next run", zap.Error(err))
		}

		done := i + 1
		elapsed := time.Since(started)
		plog.Info("posting scored",
			zap.String("title", item.Title),
			zap.String("company", item.Company),
			zap.Int("score", score.Value),
			zap.String("status", status),
			zap.String("progress", fmt.Sprintf("%d/%d", done, len(items))),
			zap.Duration("eta", eta(elapsed, done, len(items))),
		)
		if bar != nil {
			bar.Increment()
		}

		if len(res.Matches) > 0 && done%p.cfg.ReportEvery == 0 && done < len(items) {
			if err := p.deps.Report.Write(res.Matches, res.meta(p.cfg, strategies, false)); err != nil {
				log.Warn("interim report failed", zap.Error(err))
			}
		}
	}
}

// finish writes the final report and sends the summary. Both are best effort.
// A run without matches leaves the previous report in place.
func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, res *Result, strategies []harvest.Strategy) {
	meta := res.meta(p.cfg, strategies, true)
	if len(res.Matches) == 0 {
		log.Info("no matches, report not written")
	} else if err := p.deps.Report.Write(res.Matches, meta); err != nil {
		log.Error("final report failed", zap.Error(err))
	} else {
		res.ReportWritten = true
	}

	log.Info("run finished",
		zap.Int("harvested", res.Harvested),
		zap.Int("already_seen", res.AlreadySeen),
		zap.Int("scored", res.Scored),
		zap.Int("matches", len(res.Matches)),
		zap.Int("record_errors", res.RecordErrors),
	)

	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.Send(ctx, report.Summary(res.Matches, meta)); err != nil {
		log.Warn("summary notification failed", zap.Error(err))
	}
}

func eta(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || done >= total {
		return 0
	}
	perItem := elapsed / time.Duration(done)
	return (perItem * time.Duration(total-done)).Round(time.Second)
}
