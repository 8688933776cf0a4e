// Package linkedin harvests LinkedIn guest-search postings through the
// Bright Data Web Unlocker API. It is an optional second feed merged into the
// hiring.cafe harvest before scoring.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/job-harvester/internal/posting"
	"github.com/spigell/job-harvester/internal/utils"
)

const (
	Name = "linkedin"

	UnlockerEndpoint = "https://api.brightdata.com/request"
	SourceURL        = "https://linkedin.com"

	searchURL  = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	postingURL = "https://www.linkedin.com/jobs-guest/jobs/api/jobPosting/"

	DefaultLimit    = 5
	DefaultLocation = "Bulgaria"
	DefaultQuery    = "Software Engineer"
	DefaultTimeout  = 90 * time.Second
	DefaultDelay    = 500 * time.Millisecond

	minDescription = 50
	maxErrorBody   = 200
)

type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	Query     string        `mapstructure:"query"`
	Locations []string      `mapstructure:"locations"`
	Limit     int           `mapstructure:"limit" validate:"min=0"`
	Zone      string        `mapstructure:"zone" validate:"required_if=Enabled true"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Delay     time.Duration `mapstructure:"delay"`
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Query) == "" {
		c.Query = DefaultQuery
	}
	if len(c.Locations) == 0 {
		c.Locations = []string{DefaultLocation}
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	return c
}

// Client fetches LinkedIn pages through the unlocker. Every request, search
// or detail, is paced by one limiter.
type Client struct {
	cfg      Config
	token    string
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func New(cfg Config, token string, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		token:    strings.TrimSpace(token),
		endpoint: UnlockerEndpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Every(cfg.Delay), 1),
		logger:   logger.With(zap.String("source", Name)),
	}
}

// WithEndpoint points the client at another unlocker host.
func (c *Client) WithEndpoint(u string) *Client {
	c.endpoint = u
	return c
}

func (c *Client) Name() string {
	return Name
}

// Harvest searches every configured location and enriches up to Limit cards
// per location with their description. A failed location is skipped; an
// error is returned only when every location failed.
func (c *Client) Harvest(ctx context.Context) ([]*posting.Posting, error) {
	if c.token == "" {
		return nil, errors.New("bright data api token is not configured")
	}

	var (
		out  []*posting.Posting
		errs []error
	)
	for _, loc := range c.cfg.Locations {
		log := c.logger.With(zap.String("location", loc))

		page, err := c.fetch(ctx, SearchURL(c.cfg.Query, loc))
		if err != nil {
			log.Warn("linkedin search failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", loc, err))
			continue
		}

		cards, err := ParseSearchResults(page)
		if err != nil {
			log.Warn("parsing linkedin search results", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", loc, err))
			continue
		}
		log.Info("linkedin candidates found", zap.Int("cards", len(cards)), zap.Int("limit", c.cfg.Limit))

		if len(cards) > c.cfg.Limit {
			cards = cards[:c.cfg.Limit]
		}
		for _, card := range cards {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			card.Description = c.description(ctx, card)
			out = append(out, card.Posting(loc))
		}
	}

	if len(errs) == len(c.cfg.Locations) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// description tries the light guest posting endpoint first, then the card link.
func (c *Client) description(ctx context.Context, card Card) string {
	targets := []string{postingURL + url.PathEscape(card.JobID)}
	if card.URL != "" {
		targets = append(targets, card.URL)
	}

	for _, target := range targets {
		page, err := c.fetch(ctx, target)
		if err != nil {
			c.logger.Debug("linkedin description fetch failed", zap.String("url", target), zap.Error(err))
			continue
		}
		text, err := ExtractDescription(page)
		if err != nil {
			continue
		}
		if utf8.RuneCountInString(text) >= minDescription {
			return text
		}
	}
	return ""
}

type unlockRequest struct {
	Zone   string `json:"zone"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

// fetch asks the unlocker for the raw HTML of target.
func (c *Client) fetch(ctx context.Context, target string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(unlockRequest{Zone: c.cfg.Zone, URL: target, Format: "raw"})
	if err != nil {
		return "", fmt.Errorf("encode unlocker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create unlocker request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send unlocker request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read unlocker response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("unlocker returned %d: %s", resp.StatusCode, utils.TruncateForLog(string(body), maxErrorBody))
		if code := resp.Header.Get("x-brd-err-code"); code != "" {
			msg += " (" + code + ")"
		}
		return "", errors.New(msg)
	}

	c.logger.Debug("unlocker response",
		zap.String("url", strings.SplitN(target, "?", 2)[0]),
		zap.Duration("took", time.Since(started)),
		zap.Int("body_length", len(body)),
	)
	return string(body), nil
}

// SearchURL builds the guest search URL for the first results page.
func SearchURL(query, location string) string {
	params := url.Values{}
	params.Set("keywords", query)
	params.Set("location", location)
	params.Set("start", "0")
	return searchURL + "?" + params.Encode()
}
