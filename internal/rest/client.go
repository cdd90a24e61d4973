// Package rest implements a browsing HTTP client that follows redirects on
// its own, carrying cookie and referer state from one hop to the next.
package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0x6d61/vkrest/internal/transport"
)

// DefaultMaxRedirects is the redirect limit of a new Client.
const DefaultMaxRedirects = 5

// MethodOverrideHeader carries the real verb for servers that only
// understand GET and POST.
const MethodOverrideHeader = "X-HTTP-Method-Override"

// ErrTooManyRedirects is returned when a redirect chain exceeds the
// configured limit. The client resets its redirect counter before
// returning it, so the next call starts a fresh chain.
var ErrTooManyRedirects = errors.New("rest: too many redirects")

// Params are request parameters. A value starting with "@" names a local
// file to upload.
type Params map[string]string

// Response is the parsed result of the last hop of a redirect chain.
type Response struct {
	StatusCode int
	// Headers are keyed by name as received; a repeated name keeps the
	// last value.
	Headers map[string]string
	Body    string
}

// Header returns the value of the named header. The lookup is
// case-sensitive.
func (r *Response) Header(name string) (string, bool) {
	v, ok := r.Headers[name]
	return v, ok
}

// Client issues requests through a transport and follows 3xx responses
// itself. It is not safe for concurrent use.
type Client struct {
	transport transport.Client
	logger    *zap.Logger
	timeout   time.Duration

	url           string
	cookie        string
	referer       string
	redirectCount int
	maxRedirects  int
	last          *Response
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for hop tracing and redirect warnings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxRedirects sets the redirect limit.
func WithMaxRedirects(n int) Option {
	return func(c *Client) { c.maxRedirects = n }
}

// WithTimeout sets a per-hop timeout passed down to the transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New returns a Client that owns t. Close releases it.
func New(t transport.Client, opts ...Option) *Client {
	c := &Client{
		transport:    t,
		logger:       zap.NewNop(),
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request sends method to rawURL with params and follows redirects up to
// the configured limit. GET params go to the query string, every other
// verb sends them as the body. Redirect targets are always fetched with
// GET and no params.
//
// When the limit is exceeded Request returns ErrTooManyRedirects. Transport
// failures are returned as-is.
func (c *Client) Request(ctx context.Context, rawURL string, params Params, method string) (*Response, error) {
	for {
		resp, next, err := c.hop(ctx, rawURL, params, method)
		if err != nil || next == "" {
			return resp, err
		}
		rawURL, params, method = next, nil, http.MethodGet
	}
}

// hop performs one request of a chain. A non-empty next is the resolved
// redirect target that must be requested by the caller.
func (c *Client) hop(ctx context.Context, rawURL string, params Params, method string) (resp *Response, next string, err error) {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	if c.redirectCount > c.maxRedirects {
		c.redirectCount = 0
		c.logger.Warn("too many redirects",
			zap.String("url", rawURL),
			zap.Int("max_redirects", c.maxRedirects),
		)
		return nil, "", ErrTooManyRedirects
	}

	headers := map[string]string{"Cookie": c.cookie}
	if c.referer != "" {
		headers["Referer"] = c.referer
	}
	if method != http.MethodGet && method != http.MethodPost {
		headers[MethodOverrideHeader] = method
	}

	var body map[string]string
	if method == http.MethodGet {
		rawURL = appendQuery(rawURL, params)
	} else {
		body = params
	}

	c.url = rawURL
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("url", rawURL),
		zap.Int("redirect", c.redirectCount),
	)

	tr, err := c.transport.Do(ctx, &transport.Request{
		Method:  method,
		URL:     rawURL,
		Headers: headers,
		Params:  body,
		Timeout: c.timeout,
	})
	if err != nil {
		c.redirectCount = 0
		return nil, "", err
	}

	respHeaders, respBody := ParseRaw(tr.RawString())
	resp = &Response{
		StatusCode: tr.StatusCode,
		Headers:    respHeaders,
		Body:       respBody,
	}
	c.last = resp

	c.referer = c.url
	if cookie := respHeaders["Set-Cookie"]; cookie != "" {
		c.cookie = cookie
	}

	if c.redirectCount <= c.maxRedirects && isRedirect(resp.StatusCode) {
		if location, ok := resp.Header("Location"); ok {
			next = c.resolve(location)
			c.redirectCount++
			c.logger.Debug("following redirect",
				zap.Int("status", resp.StatusCode),
				zap.String("location", next),
			)
			return resp, next, nil
		}
	}

	c.redirectCount = 0
	return resp, "", nil
}

// resolve turns a Location value into an absolute URL. Anything that does
// not start with "http" is a path on the current root.
func (c *Client) resolve(location string) string {
	if len(location) >= 4 && strings.EqualFold(location[:4], "http") {
		return location
	}
	if !strings.HasPrefix(location, "/") {
		location = "/" + location
	}
	return c.RootURL() + location
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

func appendQuery(rawURL string, params Params) string {
	query := transport.EncodeQuery(params)
	if query == "" {
		return rawURL
	}
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + query
	}
	return rawURL + "?" + query
}

// URL is the URL of the last request issued, updated on every hop.
func (c *Client) URL() string { return c.url }

// Cookie is the cookie value sent with the next request.
func (c *Client) Cookie() string { return c.cookie }

// Referer is the referer sent with the next request.
func (c *Client) Referer() string { return c.referer }

// RedirectCount is the number of redirects followed in the current chain.
func (c *Client) RedirectCount() int { return c.redirectCount }

// MaxRedirects returns the redirect limit.
func (c *Client) MaxRedirects() int { return c.maxRedirects }

// SetMaxRedirects sets the redirect limit.
func (c *Client) SetMaxRedirects(n int) { c.maxRedirects = n }

// RootURL returns the root of the current URL.
func (c *Client) RootURL() string { return RootURL(c.url) }

// LastResponse returns the response of the last completed hop, or nil.
func (c *Client) LastResponse() *Response { return c.last }

// Transport exposes the underlying transport, e.g. for statistics.
func (c *Client) Transport() transport.Client { return c.transport }

// Close releases the transport.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}
