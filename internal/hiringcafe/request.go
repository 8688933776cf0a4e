package hiringcafe

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/harvest"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
)

// FetchPage replays the captured search request for page with the browser's
// cookies. Non-200 answers are reported as errors so the caller stops paging.
func (c *Client) FetchPage(ctx context.Context, tmpl *harvest.Template, page int, cookies []*http.Cookie) harvest.PageResult {
	res := harvest.PageResult{Page: page}

	body := maps.Clone(tmpl.Body)
	if body == nil {
		body = make(map[string]any)
	}
	body["page"] = page
	if _, ok := body["size"]; !ok {
		body["size"] = tmpl.PageSize
	}

	payload, err := json.Marshal(body)
	if err != nil {
		res.Err = fmt.Errorf("encode body: %w", err)
		return res
	}

	method := tmpl.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, tmpl.Endpoint, bytes.NewReader(payload))
	if err != nil {
		res.Err = err
		return res
	}

	req = c.setHeaders(req, tmpl.Headers)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.request(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		res.Err = fmt.Errorf("bad status: %s", resp.Status)
		return res
	}

	data, err := readBody(resp)
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
		return res
	}

	res.Postings, res.Err = c.ParseBatch(data)
	return res
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

// setHeaders applies captured headers first, then the ones the replay owns.
func (c *Client) setHeaders(req *http.Request, captured map[string]string) *http.Request {
	for k, v := range captured {
		// Cookies come from the browser jar; encoding is negotiated here.
		switch strings.ToLower(k) {
		case "cookie", "accept-encoding":
			continue
		}
		req.Header.Set(k, v)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}
