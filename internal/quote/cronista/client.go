package cronista

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	baseURL = "https://www.cronista.com"

	// DefaultUserAgent is sent unless overridden; the site serves reduced
	// markup to non-browser agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	maxPageBytes = 2 << 20

	// defaultTimeout bounds a request when no HTTP client is supplied.
	defaultTimeout = 10 * time.Second
)

// ErrPageTooLarge is returned when a page exceeds the download cap.
var ErrPageTooLarge = errors.New("page too large")

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=cronista_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client downloads quote pages from the Mercados Online section.
type Client struct {
	// baseURL is the site root, without trailing slash.
	baseURL string
	// httpClient performs the requests.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// retries is the number of extra attempts on 429 and 5xx responses.
	retries int
	// backoff is the first retry delay; it doubles on every attempt.
	backoff time.Duration
	logger  *zap.Logger
}

// ClientOption is a configuration option for the Client.
type ClientOption func(*Client)

// WithBaseURL sets the site root.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithUserAgent replaces the browser User-Agent.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.header.Set("User-Agent", ua)
		}
	}
}

// WithRetries enables retrying throttled and server-error responses.
func WithRetries(n int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.retries = n
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new client.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		header:     http.Header{},
		backoff:    250 * time.Millisecond,
		logger:     zap.NewNop(),
	}
	c.header.Set("User-Agent", DefaultUserAgent)
	c.header.Set("Accept", "text/html,application/xhtml+xml")
	for _, option := range options {
		option(c)
	}
	return c
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s -> %d", e.URL, e.Code)
	}
	return fmt.Sprintf("GET %s -> %d: %s", e.URL, e.Code, e.Body)
}

// Temporary reports whether the request is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || (e.Code >= 500 && e.Code < 600)
}

// PageURL returns the quote page address for a page code.
func (c *Client) PageURL(code string) string {
	return fmt.Sprintf("%s/MercadosOnline/moneda/%s/", c.baseURL, code)
}

// FetchPage downloads the page for code and returns its body.
func (c *Client) FetchPage(ctx context.Context, code string) ([]byte, error) {
	url := c.PageURL(code)
	attempt := 0
	for {
		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		var se *StatusError
		if !errors.As(err, &se) || !se.Temporary() || attempt >= c.retries {
			return nil, err
		}
		back := c.backoff * time.Duration(1<<attempt)
		attempt++
		c.logger.Debug("retrying page fetch",
			zap.String("url", url),
			zap.Int("status", se.Code),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", back))
		t := time.NewTimer(back)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, &StatusError{Code: res.StatusCode, URL: url, Body: strings.TrimSpace(string(b))}
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxPageBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrPageTooLarge, url, maxPageBytes)
	}
	return body, nil
}
