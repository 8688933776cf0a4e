package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/job-harvester/internal/logger"
	"github.com/spigell/job-harvester/internal/posting"
	"github.com/spigell/job-harvester/internal/utils"
)

// State is a phase of one strategy run.
type State string

const (
	StateLoading        State = "loading"
	StateScrollLoop     State = "scroll_loop"
	StateReplayBackfill State = "replay_backfill"
	StateDetailFetch    State = "detail_fetch"
	StateDone           State = "done"
)

// ScrollExit names the condition that ended the scroll loop.
type ScrollExit string

const (
	ExitStagnant      ScrollExit = "stagnant"
	ExitIterationCap  ScrollExit = "iteration_cap"
	ExitPostingCap    ScrollExit = "posting_cap"
	ExitContextClosed ScrollExit = "context_closed"
)

// Config tunes the harvester. Zero values fall back to the defaults below.
type Config struct {
	MaxScrolls        int
	StagnantRounds    int
	MaxPostings       int
	ReplayEmptyLimit  int
	MaxReplayPages    int
	Settle            time.Duration
	NavigationTimeout time.Duration
	// ReplayInterval spaces replayed page requests. Negative disables pacing.
	ReplayInterval   time.Duration
	StrategyDelayMin time.Duration
	StrategyDelayMax time.Duration
}

const (
	defaultMaxScrolls        = 60
	defaultStagnantRounds    = 3
	defaultMaxPostings       = 3000
	defaultReplayEmptyLimit  = 3
	defaultMaxReplayPages    = 100
	defaultSettle            = 1500 * time.Millisecond
	defaultNavigationTimeout = 45 * time.Second
	defaultReplayInterval    = 500 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.MaxScrolls <= 0 {
		c.MaxScrolls = defaultMaxScrolls
	}
	if c.StagnantRounds <= 0 {
		c.StagnantRounds = defaultStagnantRounds
	}
	if c.MaxPostings <= 0 {
		c.MaxPostings = defaultMaxPostings
	}
	if c.ReplayEmptyLimit <= 0 {
		c.ReplayEmptyLimit = defaultReplayEmptyLimit
	}
	if c.MaxReplayPages <= 0 {
		c.MaxReplayPages = defaultMaxReplayPages
	}
	if c.Settle < 0 {
		c.Settle = 0
	} else if c.Settle == 0 {
		c.Settle = defaultSettle
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.ReplayInterval == 0 {
		c.ReplayInterval = defaultReplayInterval
	}
	return c
}

// Deps are the collaborators of the harvester.
type Deps struct {
	Browser Browser
	Source  Source
	// Details is optional; without it postings keep their search snippets.
	Details *DetailFetcher
	Logger  *zap.Logger
}

// Harvester runs strategies one after another in a single browser.
type Harvester struct {
	cfg  Config
	deps Deps
}

// StrategyStats counts what each phase contributed.
type StrategyStats struct {
	Scrolls          int
	Exit             ScrollExit
	Intercepted      int
	Replayed         int
	ReplayPages      int
	ParseErrors      int
	DetailsAttempted int
	DetailsFilled    int
	TemplateCaptured bool
}

// StrategyResult is the outcome of one strategy. A failed strategy carries
// Err and whatever postings it gathered before failing.
type StrategyResult struct {
	Strategy Strategy
	State    State
	Postings []*posting.Posting
	Stats    StrategyStats
	Err      error
}

// Result merges every strategy. Postings are in first-seen order.
type Result struct {
	Postings   []*posting.Posting
	Strategies []StrategyResult
}

func New(cfg Config, deps Deps) *Harvester {
	deps.Logger = logger.WithFields(deps.Logger)
	return &Harvester{cfg: cfg.withDefaults(), deps: deps}
}

// Run executes every strategy serially and merges their postings. A strategy
// that fails contributes what it has and does not stop the others.
func (h *Harvester) Run(ctx context.Context, strategies []Strategy) *Result {
	merged := posting.NewSet()
	result := &Result{}

	for i, strategy := range strategies {
		if i > 0 {
			delay := utils.Jitter(h.cfg.StrategyDelayMin, h.cfg.StrategyDelayMax)
			if err := utils.WaitFor(ctx, delay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		res := h.runStrategy(ctx, strategy)
		added := merged.AddAll(res.Postings)
		result.Strategies = append(result.Strategies, res)

		log := logger.WithStrategy(h.deps.Logger, strategy.Name)
		if res.Err != nil {
			log.Warn("strategy failed", zap.Error(res.Err), zap.String("state", string(res.State)), zap.Int("postings", len(res.Postings)))
		}
		log.Info("strategy finished",
			zap.Int("postings", len(res.Postings)),
			zap.Int("new_in_run", added),
			zap.Int("scrolls", res.Stats.Scrolls),
			zap.String("scroll_exit", string(res.Stats.Exit)),
			zap.Int("replay_pages", res.Stats.ReplayPages),
			zap.Int("details_filled", res.Stats.DetailsFilled),
		)
	}

	result.Postings = merged.Items()
	return result
}

type strategyRun struct {
	h       *Harvester
	log     *zap.Logger
	page    Page
	capture *Capture
	set     *posting.Set
	stats   *StrategyStats
}

func (h *Harvester) runStrategy(ctx context.Context, strategy Strategy) StrategyResult {
	res := StrategyResult{Strategy: strategy, State: StateLoading}
	log := logger.WithStrategy(h.deps.Logger, strategy.Name)

	page, err := h.deps.Browser.NewPage(ctx, h.deps.Source.IsSearchEndpoint)
	if err != nil {
		res.Err = fmt.Errorf("open page: %w", err)
		return res
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug("closing page", zap.Error(err))
		}
	}()

	run := &strategyRun{
		h:       h,
		log:     log,
		page:    page,
		capture: NewCapture(),
		set:     posting.NewSet(),
		stats:   &res.Stats,
	}

	if err := run.load(ctx, strategy.URL); err != nil {
		res.Err = err
		return res
	}

	res.State = StateScrollLoop
	res.Stats.Exit = run.scroll(ctx)

	res.State = StateReplayBackfill
	res.Stats.TemplateCaptured = run.capture.Ready()
	if err := run.replay(ctx); err != nil && !errors.Is(err, ErrNotReady) {
		log.Warn("replay stopped", zap.Error(err))
	}

	res.State = StateDetailFetch
	res.Postings = run.set.Items()
	if h.deps.Details != nil {
		results := h.deps.Details.Fetch(ctx, res.Postings)
		res.Stats.DetailsAttempted = len(results)
		for _, r := range results {
			if r.Filled() {
				res.Stats.DetailsFilled++
			}
		}
	}

	res.State = StateDone
	return res
}

func (r *strategyRun) load(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, r.h.cfg.NavigationTimeout)
	defer cancel()

	r.log.Info("loading search page", zap.String("url", url))
	if err := r.page.Navigate(navCtx, url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	if err := r.page.DismissBanner(ctx); err != nil {
		r.log.Debug("no banner dismissed", zap.Error(err))
	}

	r.drain()
	return nil
}

// scroll pages the UI until the height stops growing with a template in hand,
// or one of the caps is hit.
func (r *strategyRun) scroll(ctx context.Context) ScrollExit {
	cfg := r.h.cfg

	lastHeight, err := r.page.Height(ctx)
	if err != nil {
		r.log.Debug("reading initial height", zap.Error(err))
	}

	stagnant := 0
	for i := 1; i <= cfg.MaxScrolls; i++ {
		if ctx.Err() != nil {
			return ExitContextClosed
		}
		r.stats.Scrolls = i

		if err := r.page.ScrollToBottom(ctx); err != nil {
			r.log.Debug("scroll failed", zap.Int("iteration", i), zap.Error(err))
		}
		if err := utils.WaitFor(ctx, cfg.Settle); err != nil {
			return ExitContextClosed
		}
		r.drain()

		height, err := r.page.Height(ctx)
		if err != nil {
			r.log.Debug("reading height", zap.Int("iteration", i), zap.Error(err))
		}
		if height > lastHeight {
			lastHeight = height
			stagnant = 0
		} else {
			stagnant++
		}

		r.log.Debug("scrolled",
			zap.Int("iteration", i),
			zap.Int64("height", height),
			zap.Int("stagnant", stagnant),
			zap.Bool("template_ready", r.capture.Ready()),
			zap.Int("postings", r.set.Len()),
		)

		if stagnant >= cfg.StagnantRounds && r.capture.Ready() {
			return ExitStagnant
		}
		if r.set.Len() >= cfg.MaxPostings {
			return ExitPostingCap
		}
	}

	return ExitIterationCap
}

// drain consumes every event already delivered by the page.
func (r *strategyRun) drain() {
	events := r.page.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handle(ev)
		default:
			return
		}
	}
}

func (r *strategyRun) handle(ev Event) {
	src := r.h.deps.Source

	if ev.Request != nil {
		if tmpl, ok := src.MatchRequest(ev.Request); ok && r.capture.Offer(tmpl) {
			r.log.Info("captured search template",
				zap.String("endpoint", tmpl.Endpoint),
				zap.Int("page", tmpl.Page),
				zap.Int("page_size", tmpl.PageSize),
			)
		}
	}

	if ev.Response == nil {
		return
	}

	if ev.Response.Status >= 400 {
		r.log.Debug("skipping failed search response", zap.Int("status", ev.Response.Status))
		return
	}

	batch, err := src.ParseBatch(ev.Response.Body)
	if err != nil {
		r.stats.ParseErrors++
		r.log.Warn("parsing intercepted response", zap.String("url", ev.Response.URL), zap.Error(err))
		return
	}

	r.stats.Intercepted += r.set.AddAll(batch)
}

// replay requests pages past the last captured one until enough pages in a
// row bring nothing new.
func (r *strategyRun) replay(ctx context.Context) error {
	cfg := r.h.cfg

	tmpl, err := r.capture.Template()
	if err != nil {
		r.log.Info("skipping replay", zap.String("reason", err.Error()))
		return err
	}

	cookies, err := r.page.Cookies(ctx)
	if err != nil {
		r.log.Debug("reading cookies", zap.Error(err))
	}

	limit := rate.Inf
	if cfg.ReplayInterval > 0 {
		limit = rate.Every(cfg.ReplayInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	empty := 0
	for page := tmpl.Page + 1; page <= tmpl.Page+cfg.MaxReplayPages; page++ {
		if r.set.Len() >= cfg.MaxPostings {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		res := r.h.deps.Source.FetchPage(ctx, tmpl, page, cookies)
		r.stats.ReplayPages++
		if res.Err != nil {
			return fmt.Errorf("page %d: %w", page, res.Err)
		}

		added := r.set.AddAll(res.Postings)
		r.stats.Replayed += added
		r.log.Debug("replayed page",
			zap.Int("page", page),
			zap.Int("batch", len(res.Postings)),
			zap.Int("new", added),
		)

		if added == 0 {
			empty++
			if empty >= cfg.ReplayEmptyLimit {
				return nil
			}
			continue
		}
		empty = 0
	}

	return nil
}
