// Package hiringcafe knows the hiring.cafe search contract: how a search URL
// is built, which browser request is the paginated search call, and how to
// replay it for further pages.
package hiringcafe

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/harvest"
)

const (
	BaseURL         = "https://hiring.cafe"
	searchPath      = "/api/search-jobs"
	defaultPageSize = 1000
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
)

var _ harvest.Source = (*Client)(nil)

// Client replays captured search requests outside the browser.
type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	BaseURL    string
}

func New(logger *zap.Logger) *Client {
	return &Client{
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
		BaseURL:   BaseURL,
	}
}
