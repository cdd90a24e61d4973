package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// RestyClient implements Client on top of go-resty. It shares the
// contract of DefaultClient: no redirect following, raw responses.
type RestyClient struct {
	inner           *resty.Client
	opts            ClientOptions
	limiter         *rate.Limiter
	mu              sync.RWMutex
	totalRequests   int64
	totalDurationNs int64
}

// Compile-time check that RestyClient implements Client.
var _ Client = (*RestyClient)(nil)

// NewRestyClient creates a RestyClient with the given options.
func NewRestyClient(opts ClientOptions) (*RestyClient, error) {
	inner := resty.New()
	inner.SetTimeout(opts.Timeout)
	inner.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify})
	inner.SetRedirectPolicy(resty.RedirectPolicyFunc(noRedirect))

	if opts.ProxyURL != "" {
		if _, err := parseProxyURL(opts.ProxyURL); err != nil {
			return nil, err
		}
		inner.SetProxy(opts.ProxyURL)
	}

	rc := &RestyClient{inner: inner, opts: opts}
	if opts.MaxRPS > 0 {
		rc.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}
	return rc, nil
}

// Do sends an HTTP request through resty and returns the raw response.
func (c *RestyClient) Do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// resty never sends a payload with HEAD or OPTIONS.
	if (method == http.MethodHead || method == http.MethodOptions) && len(req.Params) > 0 {
		return c.doWithBody(ctx, method, req)
	}

	r := c.inner.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if ua := c.userAgent(); ua != "" && req.Headers["User-Agent"] == "" {
		r.SetHeader("User-Agent", ua)
	}

	if method != http.MethodGet && len(req.Params) > 0 {
		if req.HasFiles() {
			fields := make(map[string]string, len(req.Params))
			for k, v := range req.Params {
				if isFileRef(v) {
					r.SetFile(k, strings.TrimPrefix(v, FilePrefix))
					continue
				}
				fields[k] = v
			}
			r.SetMultipartFormData(fields)
		} else {
			r.SetHeader("Content-Type", formContentType)
			r.SetBody(EncodeQuery(req.Params))
		}
	}

	start := time.Now()
	resp, err := r.Execute(method, req.URL)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, req.URL, err)
	}

	protocol := resp.Proto()
	if protocol == "" {
		protocol = "HTTP/1.1"
	}

	c.mu.Lock()
	c.totalRequests++
	c.totalDurationNs += duration.Nanoseconds()
	c.mu.Unlock()

	return &Response{
		StatusCode: resp.StatusCode(),
		Raw:        renderRaw(protocol, resp.StatusCode(), resp.Header(), resp.Body()),
		Duration:   duration,
		Protocol:   protocol,
	}, nil
}

// doWithBody sends req through resty's underlying http.Client, which keeps
// the redirect policy, proxy and TLS settings configured on it.
func (c *RestyClient) doWithBody(ctx context.Context, method string, req *Request) (*Response, error) {
	body, contentType, err := encodeBody(req.Params, req.HasFiles())
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if ua := c.userAgent(); ua != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", ua)
	}

	start := time.Now()
	httpResp, err := c.inner.GetClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, req.URL, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	c.mu.Lock()
	c.totalRequests++
	c.totalDurationNs += duration.Nanoseconds()
	c.mu.Unlock()

	protocol := fmt.Sprintf("HTTP/%d.%d", httpResp.ProtoMajor, httpResp.ProtoMinor)
	return &Response{
		StatusCode: httpResp.StatusCode,
		Raw:        renderRaw(protocol, httpResp.StatusCode, httpResp.Header, respBody),
		Duration:   duration,
		Protocol:   protocol,
	}, nil
}

func (c *RestyClient) userAgent() string {
	if c.opts.RandomUserAgent {
		return RandomUserAgent()
	}
	return c.opts.UserAgent
}

// SetProxy configures an HTTP or SOCKS5 proxy for subsequent requests.
func (c *RestyClient) SetProxy(proxyURL string) error {
	if _, err := parseProxyURL(proxyURL); err != nil {
		return err
	}
	c.inner.SetProxy(proxyURL)
	return nil
}

// SetRateLimit sets the maximum number of requests per second.
// A value of 0 or less disables rate limiting.
func (c *RestyClient) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// Stats returns aggregate transport statistics.
func (c *RestyClient) Stats() *TransportStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return newStats(c.totalRequests, c.totalDurationNs)
}

// Close releases idle keep-alive connections.
func (c *RestyClient) Close() error {
	c.inner.GetClient().CloseIdleConnections()
	return nil
}
