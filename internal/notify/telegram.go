// Package notify delivers run summaries to a Telegram chat.
package notify

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
	"golang.org/x/time/rate"

	"github.com/spigell/job-harvester/internal/utils"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	MaxChunk       = 4000

	sendTimeout = 10 * time.Second
)

type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

type sendMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegram returns a sender for the bot token and chat. Messages are paced
// to one per second.
func NewTelegram(token, chatID string, logger *zap.Logger) *Telegram {
	return &Telegram{
		token:   strings.TrimSpace(token),
		chatID:  strings.TrimSpace(chatID),
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: sendTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:  logger,
	}
}

// WithBaseURL points the sender at another API host.
func (t *Telegram) WithBaseURL(u string) *Telegram {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

// Send posts text, split into chunks of at most MaxChunk runes. Every chunk
// is attempted; the returned error joins the failures.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat id are required")
	}

	var errs []error
	for i, chunk := range Chunks(text, MaxChunk) {
		if err := t.limiter.Wait(ctx); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := t.post(ctx, chunk); err != nil {
			t.logger.Warn("telegram chunk failed", zap.Int("chunk", i), zap.Error(err))
			errs = append(errs, fmt.Errorf("chunk %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessage{ChatID: t.chatID, Text: text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the token.
		return errors.New(strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		var decoded apiResponse
		if json.Unmarshal(body, &decoded) == nil && decoded.Description != "" {
			return fmt.Errorf("telegram api returned status %d: %s", resp.StatusCode, decoded.Description)
		}
		return fmt.Errorf("telegram api returned status %d: %s", resp.StatusCode, utils.TruncateForLog(string(body), 200))
	}
	return nil
}

// Chunks splits text into pieces of at most size runes, breaking after the
// last newline of a piece when one falls in its second half.
func Chunks(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > size {
		cut := size
		for i := size - 1; i >= size/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
