// Package local talks to OpenAI-compatible chat completion servers, such as
// LM Studio or llama.cpp running on the workstation, or the hosted OpenAI API.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/ai"
	"github.com/spigell/job-harvester/internal/logger"
	"github.com/spigell/job-harvester/internal/utils"
)

const (
	Provider = "local"

	DefaultBaseURL     = "http://127.0.0.1:1234/v1"
	DefaultModel       = "local-model"
	DefaultTimeout     = 180 * time.Second
	DefaultAttempts    = 3
	DefaultBaseBackoff = time.Second
)

var _ ai.Backend = (*Client)(nil)

type Config struct {
	BaseURL     string        `mapstructure:"base-url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"-" json:"-"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Attempts    int           `mapstructure:"attempts"`
	BaseBackoff time.Duration `mapstructure:"base-backoff"`
}

type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	model    string
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

type chatRequest struct {
	Model       string       `json:"model"`
	Messages    []ai.Message `json:"messages"`
	Temperature float32      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// statusError marks HTTP failures so retries can tell them apart.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chat completion failed with status %d: %s", e.code, e.body)
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}

	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    cfg.Model,
		attempts: cfg.Attempts,
		backoff:  cfg.BaseBackoff,
		logger:   logger.WithCommonFields(log, Provider, cfg.Model),
	}
}

// Complete posts the conversation and returns the first choice. Connection
// failures, 429 and 5xx answers are retried with exponential backoff.
func (c *Client) Complete(ctx context.Context, messages []ai.Message, opts ai.Options) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	delay := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		out, err := c.do(ctx, payload)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.attempts {
			break
		}

		c.logger.Warn("chat completion failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := utils.WaitFor(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}

	return "", lastErr
}

func (c *Client) do(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode, body: utils.TruncateForLog(string(body), 300)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Some servers answer with the bare completion text.
		c.logger.Debug("response is not a chat completion object", zap.Error(err))
		return string(body), nil
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("chat completion error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return decoded.Choices[0].Message.Content, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
	}
	// Transport-level failures such as a refused connection.
	return strings.HasPrefix(err.Error(), "send request")
}

func (c *Client) Model() string {
	return c.model
}
