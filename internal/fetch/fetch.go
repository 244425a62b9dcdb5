package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrStatus is returned, wrapped, for any non-2xx response.
var ErrStatus = errors.New("unexpected status code")

const maxBodyBytes = 16 << 20

// Response is a fetched page.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher retrieves one page. A non-2xx status yields the response together
// with an error wrapping ErrStatus.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Headers is the browser-like header set sent with every request.
type Headers struct {
	UserAgent               string
	Accept                  string
	AcceptLanguage          string
	Connection              string
	Referer                 string
	UpgradeInsecureRequests string
	CacheControl            string
}

// DefaultHeaders mimics a desktop Chrome navigation against referer.
func DefaultHeaders(referer string) Headers {
	return Headers{
		UserAgent:               "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Accept:                  "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		AcceptLanguage:          "en-US,en;q=0.9",
		Connection:              "keep-alive",
		Referer:                 referer,
		UpgradeInsecureRequests: "1",
		CacheControl:            "max-age=0",
	}
}

// Apply sets every non-empty header on req. Accept-Encoding is left to
// net/http so compressed bodies are decoded transparently.
func (h Headers) Apply(req *http.Request) {
	set := func(key, value string) {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
	set("User-Agent", h.UserAgent)
	set("Accept", h.Accept)
	set("Accept-Language", h.AcceptLanguage)
	set("Connection", h.Connection)
	set("Referer", h.Referer)
	set("Upgrade-Insecure-Requests", h.UpgradeInsecureRequests)
	set("Cache-Control", h.CacheControl)
}

type Options struct {
	Timeout time.Duration
	Headers Headers
	// Limiter caps request cadence. Nil means unlimited.
	Limiter *rate.Limiter
	Client  *http.Client
}

// HTTPFetcher is a net/http Fetcher.
type HTTPFetcher struct {
	client  *http.Client
	headers Headers
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewHTTPFetcher(opts Options, logger *slog.Logger) *HTTPFetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPFetcher{
		client:  client,
		headers: opts.Headers,
		limiter: opts.Limiter,
		logger:  logger.With("component", "fetcher"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	f.headers.Apply(req)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        resp.Request.URL.String(),
	}

	f.logger.Debug("fetched page",
		"url", url,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start))

	if !result.OK() {
		return result, fmt.Errorf("%w %d for %s", ErrStatus, resp.StatusCode, url)
	}
	return result, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
