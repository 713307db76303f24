package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 15 * time.Second

// DefaultUserAgent identifies the service to upstream hosts.
const DefaultUserAgent = "musicnews/1.0 (+interview-column aggregator)"

// Client is the HTTP surface the upstream integrations depend on.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error)
	PostJSON(ctx context.Context, url string, headers map[string]string, body any) (*resty.Response, error)
}

// RestyClient implements Client on top of resty.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient builds a client with the given timeout and user agent.
// Zero values fall back to the defaults.
func NewRestyClient(timeout time.Duration, userAgent string) *RestyClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)

	return &RestyClient{client: c}
}

// Get issues a GET request. Non-2xx responses are not errors; callers
// inspect the status code.
func (c *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return resp, nil
}

// PostJSON issues a POST request with body encoded as JSON.
func (c *RestyClient) PostJSON(ctx context.Context, url string, headers map[string]string, body any) (*resty.Response, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", url, err)
	}
	return resp, nil
}

// Snippet returns a trimmed prefix of a response body for error messages.
func Snippet(body []byte, maxLen int) string {
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
