// Package firecracker is a typed client for the Firecracker control plane.
//
// Every operation validates its input, encodes it, waits for a token from the
// client's request limiter and performs exactly one HTTP exchange. Failures
// are reported as one of four kinds: validation, network, api or rate
// limited (see KindOf). The client holds no VM state; the hypervisor is the
// source of truth.
package firecracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/onkernel/fcctl/lib/logger"
	"github.com/onkernel/fcctl/lib/oapi"
	"github.com/onkernel/fcctl/lib/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds one HTTP exchange once a limiter token is held.
	DefaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20

	tracerName = "github.com/onkernel/fcctl/lib/firecracker"
)

// Config describes how to reach the control plane.
type Config struct {
	// BaseAddress is "unix:///path/to/api.sock", an absolute socket path,
	// or a loopback "http://127.0.0.1:port" URL.
	BaseAddress string

	// Timeout applies to each request. Zero means DefaultTimeout, negative disables it.
	Timeout time.Duration

	// RateLimit configures the request limiter. Nil leaves requests unlimited.
	RateLimit *ratelimit.Config
}

// Client talks to one Firecracker API socket. Clients are independent:
// each owns its HTTP transport and request limiter.
type Client struct {
	baseURL    string
	socketPath string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	timeout    time.Duration
	metrics    *Metrics
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter shares an existing limiter instead of building one from Config.RateLimit.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithMetrics records API call metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// New creates a client. It does not connect; the first operation does.
func New(cfg Config, opts ...Option) (*Client, error) {
	baseURL, socketPath, err := parseBaseAddress(cfg.BaseAddress)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	if socketPath != "" {
		dialer := &net.Dialer{}
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		}
	}

	c := &Client{
		baseURL:    baseURL,
		socketPath: socketPath,
		httpClient: &http.Client{Transport: transport},
		timeout:    cfg.Timeout,
		tracer:     otel.Tracer(tracerName),
	}
	if c.timeout == 0 {
		c.timeout = DefaultTimeout
	}
	if cfg.RateLimit != nil {
		c.limiter, err = ratelimit.New(*cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Limiter returns the client's request limiter, nil when unlimited.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// SocketPath returns the Unix socket path, empty for TCP clients.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func parseBaseAddress(addr string) (baseURL, socketPath string, err error) {
	switch {
	case addr == "":
		return "", "", errors.New("base address is required")
	case strings.HasPrefix(addr, "unix://"):
		socketPath = strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "/"):
		socketPath = addr
	}
	if socketPath != "" || strings.HasPrefix(addr, "unix://") {
		if !strings.HasPrefix(socketPath, "/") {
			return "", "", fmt.Errorf("socket path %q must be absolute", socketPath)
		}
		// The host is ignored by the unix dialer.
		return "http://localhost", socketPath, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("parse base address: %w", err)
	}
	if u.Scheme != "http" {
		return "", "", fmt.Errorf("unsupported scheme %q, want unix or http", u.Scheme)
	}
	if !isLoopback(u.Hostname()) {
		return "", "", fmt.Errorf("host %q is not a loopback address", u.Hostname())
	}
	return strings.TrimSuffix(u.String(), "/"), "", nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.IsLoopback()
}

// request is one logical call against the control plane.
type request struct {
	op     string
	method string
	path   string
	body   any
	// schema names the response component checked before decoding into out.
	schema string
	out    any
}

func (c *Client) do(ctx context.Context, r request) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "firecracker."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.method),
			attribute.String("url.path", r.path),
		))
	defer span.End()

	log := logger.FromContext(ctx)
	err := c.execute(ctx, r)
	c.metrics.RecordAPICall(ctx, r.op, start, err)

	if err != nil {
		span.SetAttributes(attribute.String("error.kind", KindOf(err).String()))
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			span.SetAttributes(attribute.Int("http.response.status_code", apiErr.StatusCode))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WarnContext(ctx, "firecracker api call failed",
			"op", r.op, "method", r.method, "path", r.path,
			"kind", KindOf(err).String(), "error", err)
		return err
	}

	log.DebugContext(ctx, "firecracker api call",
		"op", r.op, "method", r.method, "path", r.path, "duration", time.Since(start))
	return nil
}

func (c *Client) execute(ctx context.Context, r request) error {
	var payload []byte
	if r.body != nil {
		var err error
		payload, err = json.Marshal(r.body)
		if err != nil {
			return invalid("request", "body", fmt.Sprintf("must encode as JSON: %v", err))
		}
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return c.limiterError(ctx, r, err)
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return &NetworkError{Method: r.method, Path: r.path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkError(reqCtx, r, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return networkError(reqCtx, r, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Method:     r.method,
			Path:       r.path,
			StatusCode: resp.StatusCode,
			Message:    faultMessage(resp.StatusCode, data),
		}
	}

	if r.out == nil {
		return nil
	}
	if err := decode(r.schema, data, r.out); err != nil {
		return &APIError{Method: r.method, Path: r.path, StatusCode: resp.StatusCode, Decode: err}
	}
	return nil
}

func decode(schema string, data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty response body")
	}
	if schema != "" {
		if err := oapi.ValidateJSON(schema, data); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, out)
}

func (c *Client) limiterError(ctx context.Context, r request, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &NetworkError{
			Method:    r.method,
			Path:      r.path,
			Cancelled: true,
			Timeout:   errors.Is(ctxErr, context.DeadlineExceeded),
			Err:       ctxErr,
		}
	}
	return &RateLimitedError{Method: r.method, Path: r.path, Err: err}
}

func networkError(ctx context.Context, r request, err error) error {
	ne := &NetworkError{Method: r.method, Path: r.path, Err: err}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		ne.Cancelled = true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		ne.Timeout = true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		ne.Timeout = true
	}
	return ne
}

// faultMessage returns fault_message when the body carries one, otherwise the raw body.
func faultMessage(status int, data []byte) string {
	var fault apiFault
	if err := json.Unmarshal(data, &fault); err == nil && fault.FaultMessage != "" {
		return fault.FaultMessage
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}

// send validates v and sends it with method to path, expecting no response body.
func (c *Client) send(ctx context.Context, op, method, path string, v Validator) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return c.do(ctx, request{op: op, method: method, path: path, body: v})
}

func (c *Client) get(ctx context.Context, op, path, schema string, out any) error {
	return c.do(ctx, request{op: op, method: http.MethodGet, path: path, schema: schema, out: out})
}

func resourcePath(collection, id string) string {
	return "/" + collection + "/" + url.PathEscape(id)
}
