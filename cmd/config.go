package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/spigell/job-harvester/internal/ai/local"
	"github.com/spigell/job-harvester/internal/browser"
	"github.com/spigell/job-harvester/internal/harvest"
	"github.com/spigell/job-harvester/internal/hiringcafe"
	"github.com/spigell/job-harvester/internal/linkedin"
)

const (
	backendLocal  = "local"
	backendOpenAI = "openai"
	backendGemini = "gemini"

	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4o-mini"

	profileFallbackRunes = 4000
)

// Keyring accounts understood by `secret set`.
const (
	secretGemini     = "gemini-api-key"
	secretOpenAI     = "openai-api-key"
	secretTelegram   = "telegram-token"
	secretBrightData = "brightdata-api-token"
)

var knownSecrets = []string{secretGemini, secretOpenAI, secretTelegram, secretBrightData}

type Config struct {
	Threshold         int              `mapstructure:"threshold" validate:"min=1,max=100"`
	DB                string           `mapstructure:"db" validate:"required"`
	Report            string           `mapstructure:"report" validate:"required"`
	ReportPerRun      bool             `mapstructure:"report-per-run"`
	ReportEvery       int              `mapstructure:"report-every" validate:"min=1"`
	Dump              string           `mapstructure:"dump"`
	ExcludeFile       string           `mapstructure:"exclude-file"`
	ExcludedCompanies []string         `mapstructure:"excluded-companies"`
	MinDescription    int              `mapstructure:"min-description" validate:"min=0"`
	DisabledFilters   []string         `mapstructure:"disabled-filters"`
	Profile           ProfileConfig    `mapstructure:"profile"`
	Strategies        []StrategyConfig `mapstructure:"strategies" validate:"required,min=1,dive"`
	Browser           browser.Config   `mapstructure:"browser"`
	Harvest           HarvestConfig    `mapstructure:"harvest"`
	Details           DetailsConfig    `mapstructure:"details"`
	AI                AIConfig         `mapstructure:"ai"`
	Telegram          TelegramConfig   `mapstructure:"telegram"`
	LinkedIn          LinkedInConfig   `mapstructure:"linkedin"`
}

type ProfileConfig struct {
	CVFile      string `mapstructure:"cv-file" validate:"required"`
	ProfileFile string `mapstructure:"profile-file"`
}

// StrategyConfig is either a ready hiring.cafe URL or a query to build one from.
type StrategyConfig struct {
	Name             string `mapstructure:"name" validate:"required"`
	URL              string `mapstructure:"url"`
	hiringcafe.Query `mapstructure:",squash"`
}

type HarvestConfig struct {
	MaxScrolls        int           `mapstructure:"max-scrolls" validate:"min=0"`
	StagnantRounds    int           `mapstructure:"stagnant-rounds" validate:"min=0"`
	MaxPostings       int           `mapstructure:"max-postings" validate:"min=0"`
	ReplayEmptyLimit  int           `mapstructure:"replay-empty-limit" validate:"min=0"`
	Settle            time.Duration `mapstructure:"settle"`
	NavigationTimeout time.Duration `mapstructure:"navigation-timeout"`
	ReplayDelay       time.Duration `mapstructure:"replay-delay"`
	StrategyDelayMin  time.Duration `mapstructure:"strategy-delay-min"`
	StrategyDelayMax  time.Duration `mapstructure:"strategy-delay-max" validate:"gtefield=StrategyDelayMin"`
}

type DetailsConfig struct {
	Concurrency  int           `mapstructure:"concurrency" validate:"min=1,max=32"`
	Polls        int           `mapstructure:"polls" validate:"min=1"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	MinLength    int           `mapstructure:"min-length" validate:"min=0"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type AIConfig struct {
	Backend      string       `mapstructure:"backend" validate:"oneof=local openai gemini"`
	MaxLogLength int          `mapstructure:"max-log-length"`
	Local        local.Config `mapstructure:"local"`
	OpenAI       OpenAIConfig `mapstructure:"openai"`
	Gemini       GeminiConfig `mapstructure:"gemini"`
}

type OpenAIConfig struct {
	BaseURL    string        `mapstructure:"base-url"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api-key" json:"-"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type GeminiConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api-key" json:"-"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type TelegramConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ChatID    string `mapstructure:"chat-id" validate:"required_if=Enabled true"`
	Token     string `mapstructure:"token" json:"-"`
	TokenFile string `mapstructure:"token-file"`
}

// LinkedInConfig enables the Bright Data backed LinkedIn feed.
type LinkedInConfig struct {
	linkedin.Config `mapstructure:",squash"`
	APIToken        string `mapstructure:"api-token" json:"-"`
	APITokenFile    string `mapstructure:"api-token-file"`
}

func defaultConfig() *Config {
	return &Config{
		Threshold:      65,
		DB:             "jobs.db",
		Report:         "report.html",
		ReportPerRun:   true,
		ReportEvery:    5,
		MinDescription: 50,
		Browser: browser.Config{
			Headless: true,
			Width:    1920,
			Height:   1080,
		},
		Harvest: HarvestConfig{
			MaxScrolls:        60,
			StagnantRounds:    3,
			MaxPostings:       3000,
			ReplayEmptyLimit:  3,
			Settle:            1500 * time.Millisecond,
			NavigationTimeout: 45 * time.Second,
			ReplayDelay:       500 * time.Millisecond,
			StrategyDelayMin:  2 * time.Second,
			StrategyDelayMax:  5 * time.Second,
		},
		Details: DetailsConfig{
			Concurrency:  5,
			Polls:        5,
			PollInterval: 2 * time.Second,
			MinLength:    200,
			Timeout:      45 * time.Second,
		},
		AI: AIConfig{
			Backend:      backendLocal,
			MaxLogLength: 200,
		},
	}
}

// decodeConfig lays settings over the defaults and validates the result.
func decodeConfig(settings map[string]any) (*Config, error) {
	cfg := defaultConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) harvestConfig() harvest.Config {
	return harvest.Config{
		MaxScrolls:        c.Harvest.MaxScrolls,
		StagnantRounds:    c.Harvest.StagnantRounds,
		MaxPostings:       c.Harvest.MaxPostings,
		ReplayEmptyLimit:  c.Harvest.ReplayEmptyLimit,
		Settle:            c.Harvest.Settle,
		NavigationTimeout: c.Harvest.NavigationTimeout,
		ReplayInterval:    c.Harvest.ReplayDelay,
		StrategyDelayMin:  c.Harvest.StrategyDelayMin,
		StrategyDelayMax:  c.Harvest.StrategyDelayMax,
	}
}

// linkedinConfig fills the feed query from the first strategy role when none
// is configured.
func (c *Config) linkedinConfig() linkedin.Config {
	cfg := c.LinkedIn.Config
	if strings.TrimSpace(cfg.Query) != "" {
		return cfg
	}
	for _, s := range c.Strategies {
		if len(s.Roles) > 0 {
			cfg.Query = s.Roles[0]
			return cfg
		}
	}
	return cfg
}

func (c *Config) detailConfig() harvest.DetailConfig {
	return harvest.DetailConfig{
		Concurrency:  c.Details.Concurrency,
		Polls:        c.Details.Polls,
		PollInterval: c.Details.PollInterval,
		MinLength:    c.Details.MinLength,
		Timeout:      c.Details.Timeout,
	}
}

// strategies turns the configured searches into URLs the harvester can open.
func (c *Config) strategies() ([]harvest.Strategy, error) {
	out := make([]harvest.Strategy, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		url := strings.TrimSpace(s.URL)
		if url != "" {
			if _, err := hiringcafe.ParseSearchURL(url); err != nil {
				return nil, fmt.Errorf("strategy %q: %w", s.Name, err)
			}
		} else {
			built, err := hiringcafe.SearchURL(hiringcafe.BaseURL, s.Query)
			if err != nil {
				return nil, fmt.Errorf("strategy %q: %w", s.Name, err)
			}
			url = built
		}
		out = append(out, harvest.Strategy{Name: s.Name, URL: url})
	}
	return out, nil
}

// loadProfile reads the CV text and the structured profile. Without a
// profile file the profile is built from the head of the CV.
func loadProfile(cfg ProfileConfig) (cvText, profileJSON string, err error) {
	raw, err := os.ReadFile(cfg.CVFile)
	if err != nil {
		return "", "", fmt.Errorf("reading cv file: %w", err)
	}
	cvText = strings.TrimSpace(string(raw))
	if cvText == "" {
		return "", "", errors.New("cv file is empty")
	}

	if cfg.ProfileFile == "" {
		return cvText, fallbackProfile(cvText), nil
	}

	data, err := os.ReadFile(cfg.ProfileFile)
	if err != nil {
		return "", "", fmt.Errorf("reading profile file: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", "", fmt.Errorf("profile file is not a JSON object: %w", err)
	}
	compact, err := json.Marshal(obj)
	if err != nil {
		return "", "", err
	}
	return cvText, string(compact), nil
}

func fallbackProfile(cvText string) string {
	head := cvText
	if utf8.RuneCountInString(head) > profileFallbackRunes {
		head = string([]rune(head)[:profileFallbackRunes])
	}
	out, _ := json.Marshal(map[string]string{"cv": head})
	return string(out)
}
