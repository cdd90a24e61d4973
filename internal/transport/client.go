package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client is the interface for the HTTP transport layer. Every request the
// redirecting client issues goes through it.
type Client interface {
	// Do sends one HTTP request and returns the raw response. Redirect
	// responses are returned as-is.
	Do(ctx context.Context, req *Request) (*Response, error)

	// SetProxy configures an HTTP/SOCKS5 proxy for all subsequent requests.
	SetProxy(proxyURL string) error

	// SetRateLimit sets the maximum requests per second.
	SetRateLimit(rps float64)

	// Stats returns transport statistics.
	Stats() *TransportStats

	// Close releases idle connections held by the client.
	Close() error
}

// TransportStats holds aggregate statistics for the transport client.
type TransportStats struct {
	TotalRequests int64
	TotalDuration time.Duration
	AvgDuration   time.Duration
}

// ClientOptions holds configuration for creating a transport client.
type ClientOptions struct {
	// Timeout is the default timeout for all requests.
	Timeout time.Duration

	// ProxyURL is the proxy URL (HTTP or SOCKS5).
	ProxyURL string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// UserAgent is sent when the request carries no User-Agent header.
	UserAgent string

	// RandomUserAgent enables random User-Agent header selection and
	// takes precedence over UserAgent.
	RandomUserAgent bool

	// MaxRPS is the maximum requests per second (0 = unlimited).
	MaxRPS float64
}

// Transport kinds accepted by New.
const (
	KindNet   = "net"
	KindResty = "resty"
)

// New creates a transport client backed by the named implementation:
// KindNet (or "") for net/http, KindResty for go-resty.
func New(kind string, opts ClientOptions) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindNet, "nethttp":
		return NewClient(opts)
	case KindResty:
		return NewRestyClient(opts)
	default:
		return nil, fmt.Errorf("transport: unsupported transport %q", kind)
	}
}

// noRedirect stops net/http from following redirects so that the raw 3xx
// response reaches the caller.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// DefaultClient is the default implementation of the Client interface,
// backed by net/http.
type DefaultClient struct {
	httpClient      *http.Client
	opts            ClientOptions
	limiter         *rate.Limiter
	mu              sync.RWMutex
	totalRequests   int64
	totalDurationNs int64
}

// Compile-time check that DefaultClient implements Client.
var _ Client = (*DefaultClient)(nil)

// NewClient creates a new DefaultClient with the given options.
func NewClient(opts ClientOptions) (*DefaultClient, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
		DisableCompression: true,
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport:     transport,
		Timeout:       opts.Timeout,
		CheckRedirect: noRedirect,
	}

	dc := &DefaultClient{
		httpClient: client,
		opts:       opts,
	}

	if opts.MaxRPS > 0 {
		dc.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}

	return dc, nil
}

// Do sends an HTTP request and returns the raw response. It applies rate
// limiting, timing measurement, custom headers, body encoding and an
// optional per-request timeout.
func (c *DefaultClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		bodyReader  io.Reader
		contentType string
	)
	if method != http.MethodGet {
		var err error
		bodyReader, contentType, err = encodeBody(req.Params, req.HasFiles())
		if err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if ua := c.userAgent(); ua != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", ua)
	}

	httpClient := c.httpClient
	if req.Timeout > 0 {
		cc := *c.httpClient
		cc.Timeout = req.Timeout
		httpClient = &cc
	}

	start := time.Now()
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, req.URL, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	protocol := fmt.Sprintf("HTTP/%d.%d", httpResp.ProtoMajor, httpResp.ProtoMinor)

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Raw:        renderRaw(protocol, httpResp.StatusCode, httpResp.Header, body),
		Duration:   duration,
		Protocol:   protocol,
	}

	c.record(duration)

	return resp, nil
}

func (c *DefaultClient) wait(ctx context.Context) error {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()

	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (c *DefaultClient) userAgent() string {
	if c.opts.RandomUserAgent {
		return RandomUserAgent()
	}
	return c.opts.UserAgent
}

func (c *DefaultClient) record(d time.Duration) {
	c.mu.Lock()
	c.totalRequests++
	c.totalDurationNs += d.Nanoseconds()
	c.mu.Unlock()
}

// SetProxy configures an HTTP or SOCKS5 proxy for subsequent requests.
func (c *DefaultClient) SetProxy(proxyURL string) error {
	parsedURL, err := parseProxyURL(proxyURL)
	if err != nil {
		return err
	}

	transport, ok := c.httpClient.Transport.(*http.Transport)
	if !ok {
		return fmt.Errorf("cannot set proxy: transport is not *http.Transport")
	}

	transport.Proxy = http.ProxyURL(parsedURL)
	return nil
}

// SetRateLimit sets the maximum number of requests per second.
// A value of 0 or less disables rate limiting.
func (c *DefaultClient) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// Stats returns aggregate transport statistics.
func (c *DefaultClient) Stats() *TransportStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return newStats(c.totalRequests, c.totalDurationNs)
}

// Close releases idle keep-alive connections.
func (c *DefaultClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func newStats(total, durationNs int64) *TransportStats {
	stats := &TransportStats{
		TotalRequests: total,
		TotalDuration: time.Duration(durationNs),
	}
	if total > 0 {
		stats.AvgDuration = time.Duration(durationNs / total)
	}
	return stats
}

func parseProxyURL(proxyURL string) (*url.URL, error) {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL: missing scheme or host")
	}
	return parsedURL, nil
}
