package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestChunks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		text  string
		size  int
		count int
	}{
		{name: "short", text: "hello", size: 10, count: 1},
		{name: "empty", text: "", size: 10, count: 1},
		{name: "exact", text: strings.Repeat("a", 10), size: 10, count: 1},
		{name: "long", text: strings.Repeat("a", 9000), size: MaxChunk, count: 3},
		{name: "multibyte", text: strings.Repeat("я", 25), size: 10, count: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			chunks := Chunks(tc.text, tc.size)
			require.Len(t, chunks, tc.count)
			assert.Equal(t, tc.text, strings.Join(chunks, ""))
			for _, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), tc.size)
			}
		})
	}
}

func TestChunksPreferNewline(t *testing.T) {
	text := strings.Repeat("a", 7) + "\n" + strings.Repeat("b", 7)
	chunks := Chunks(text, 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 7)+"\n", chunks[0])
}

func TestSendPostsEveryChunk(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var msg sendMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "42", msg.ChatID)
		mu.Lock()
		texts = append(texts, msg.Text)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42", zap.NewNop()).WithBaseURL(srv.URL)
	tg.limiter = rate.NewLimiter(rate.Inf, 1)

	require.NoError(t, tg.Send(context.Background(), strings.Repeat("x", MaxChunk+10)))
	assert.Len(t, texts, 2)
}

func TestSendReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42", zap.NewNop()).WithBaseURL(srv.URL)
	tg.limiter = rate.NewLimiter(rate.Inf, 1)

	err := tg.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSendRequiresCredentials(t *testing.T) {
	err := NewTelegram("", "42", zap.NewNop()).Send(context.Background(), "hello")
	require.Error(t, err)
}
