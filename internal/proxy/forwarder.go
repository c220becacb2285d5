// Package proxy forwards mediated requests to the upstream backend,
// handling header hygiene, timeouts, retries, and circuit breaking.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/hameed1198/api-gateway/internal/observability"
	"github.com/hameed1198/api-gateway/internal/util"
)

// DefaultTimeout bounds a single backend call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of a request or response body the forwarder
// buffers. Bodies are buffered so idempotent retries can replay them.
const maxBodyBytes = 10 << 20

// hopHeaders are connection-scoped headers that must not be forwarded
// in either direction (RFC 7230, section 6.1).
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// credentialHeaders carry gateway credentials and are stripped before
// forwarding so partner tokens never reach the backend.
var credentialHeaders = []string{
	"X-Api-Key",
	"Authorization",
}

// errServerStatus marks a 5xx backend response inside the circuit
// breaker so repeated backend failures trip the breaker. The response
// itself is still passed through to the client.
var errServerStatus = errors.New("backend returned server error")

// errResponseTooLarge marks a backend response body exceeding the
// buffer cap. Truncating would desync the body from the backend's
// Content-Length, so the exchange fails instead.
var errResponseTooLarge = errors.New("backend response body too large")

// Response is the backend's reply, fully buffered.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Forwarder relays requests to a single backend base URL.
type Forwarder struct {
	baseURL     *url.URL
	client      *http.Client
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	maxBody     int64
	breaker     *gobreaker.CircuitBreaker
	logger      observability.Logger
	metrics     *Metrics
}

// Option is a functional option for configuring the forwarder.
type Option func(*Forwarder)

// WithLogger sets the forwarder logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Forwarder) {
		f.client = client
	}
}

// WithTimeout sets the per-call backend timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Forwarder) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithRetry configures retries for idempotent requests that hit
// transient connection failures. Timeouts are never retried.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(f *Forwarder) {
		if maxAttempts >= 1 {
			f.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			f.backoff = backoff
		}
	}
}

// WithCircuitBreaker enables a circuit breaker around backend calls.
// The breaker trips once minCalls calls have been observed and at
// least half of them failed, and probes again after cooldown.
func WithCircuitBreaker(minCalls int, cooldown time.Duration, logger observability.Logger) Option {
	return func(f *Forwarder) {
		threshold := safeIntToUint32(minCalls)
		f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "backend",
			MaxRequests: threshold,
			Interval:    cooldown,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= threshold && failureRatio >= 0.5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Info("circuit breaker state change",
					observability.String("name", name),
					observability.String("from", from.String()),
					observability.String("to", to.String()),
				)
			},
		})
	}
}

// WithMetrics sets the forwarder metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(f *Forwarder) {
		f.metrics = metrics
	}
}

// NewForwarder creates a forwarder for the given backend base URL.
func NewForwarder(baseURL string, opts ...Option) (*Forwarder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, util.WrapError(err, "invalid backend base URL")
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, util.NewConfigError("backend.baseURL",
			fmt.Sprintf("must be an absolute http(s) URL, got %q", baseURL))
	}

	f := &Forwarder{
		baseURL:     u,
		client:      &http.Client{},
		timeout:     DefaultTimeout,
		maxAttempts: 1,
		backoff:     100 * time.Millisecond,
		maxBody:     maxBodyBytes,
		logger:      observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Forward relays the request to backendPath on the configured backend,
// preserving method, query string, body, and non-credential headers.
// Errors match util.ErrTimeout for deadline overruns and
// util.ErrBackendUnavail (or util.ErrCircuitOpen) for connectivity
// failures; backend HTTP statuses, including 5xx, are passed through
// as a Response.
func (f *Forwarder) Forward(ctx context.Context, r *http.Request, backendPath string) (*Response, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, util.WrapError(err, "failed to read request body")
	}

	attempts := 1
	if isIdempotent(r.Method) {
		attempts = f.maxAttempts
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, f.classify(ctx.Err())
			case <-time.After(f.backoff):
			}
			f.logger.Debug("retrying backend request",
				observability.String("path", backendPath),
				observability.Int("attempt", attempt),
			)
		}

		resp, ferr := f.attempt(ctx, r, backendPath, body)
		if ferr == nil {
			f.metrics.RecordForward("ok", time.Since(start))
			return resp, nil
		}

		lastErr = ferr
		// An oversized response is deterministic; re-fetching it would
		// only buffer the same overlong body again.
		if !util.IsRetryable(ferr) || errors.Is(ferr, errResponseTooLarge) {
			break
		}
	}

	f.metrics.RecordForward(outcomeLabel(lastErr), time.Since(start))
	return nil, lastErr
}

// attempt performs one backend call through the circuit breaker.
func (f *Forwarder) attempt(ctx context.Context, r *http.Request, backendPath string, body []byte) (*Response, error) {
	if f.breaker == nil {
		resp, err := f.do(ctx, r, backendPath, body)
		if err != nil {
			return nil, f.classify(err)
		}
		return resp, nil
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		resp, derr := f.do(ctx, r, backendPath, body)
		if derr != nil {
			return nil, derr
		}
		if resp.Status >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})

	// 5xx responses count against the breaker but still reach the client.
	if errors.Is(err, errServerStatus) {
		return result.(*Response), nil
	}
	if err != nil {
		return nil, f.classify(err)
	}
	return result.(*Response), nil
}

// do performs a single HTTP exchange with the backend.
func (f *Forwarder) do(ctx context.Context, r *http.Request, backendPath string, body []byte) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	target := *f.baseURL
	target.Path = singleJoiningSlash(f.baseURL.Path, backendPath)
	target.RawQuery = r.URL.RawQuery

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(callCtx, r.Method, target.String(), reader)
	if err != nil {
		return nil, err
	}

	req.Header = forwardableHeaders(r.Header)
	if clientIP := remoteIP(r); clientIP != "" {
		appendForwardedFor(req.Header, clientIP)
	}
	req.Header.Set("X-Forwarded-Host", r.Host)
	req.Header.Set("X-Forwarded-Proto", requestScheme(r))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Read one byte past the cap to distinguish an at-cap body from an
	// oversized one. Passing a truncated body through with the backend's
	// original Content-Length would corrupt the exchange.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(respBody)) > f.maxBody {
		return nil, fmt.Errorf("%w: exceeds %d bytes", errResponseTooLarge, f.maxBody)
	}

	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   respBody,
	}, nil
}

// classify maps transport-level failures onto the gateway error
// taxonomy: deadline overruns become timeouts, breaker rejections
// become circuit-open errors, everything else is backend unavailable.
func (f *Forwarder) classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return util.NewCircuitOpenError("backend")
	}

	if errors.Is(err, errResponseTooLarge) {
		return util.NewBackendErrorWithCause(f.baseURL.Host, "response body too large", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return util.NewTimeoutError("backend request", f.timeout)
	}

	return util.NewBackendErrorWithCause(f.baseURL.Host, "connection failed", err)
}

// readBody buffers the inbound request body so it can be replayed on
// retry. The original body is closed.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// forwardableHeaders copies inbound headers minus hop-by-hop and
// credential headers.
func forwardableHeaders(in http.Header) http.Header {
	out := in.Clone()
	for _, h := range hopHeaders {
		out.Del(h)
	}
	for _, h := range credentialHeaders {
		out.Del(h)
	}
	out.Del("Host")
	return out
}

// appendForwardedFor adds the client IP to the X-Forwarded-For chain.
func appendForwardedFor(h http.Header, clientIP string) {
	if prior := h.Get("X-Forwarded-For"); prior != "" {
		h.Set("X-Forwarded-For", prior+", "+clientIP)
		return
	}
	h.Set("X-Forwarded-For", clientIP)
}

// remoteIP extracts the peer IP from the request's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestScheme reports the scheme the client used to reach the gateway.
func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// isIdempotent reports whether the method is safe to retry.
func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// singleJoiningSlash joins two URL path segments with exactly one slash.
func singleJoiningSlash(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}

// outcomeLabel maps a classified error to a metrics outcome label.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, util.ErrTimeout):
		return "timeout"
	case errors.Is(err, util.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "unavailable"
	}
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
