package firecracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onkernel/fcctl/lib/fakevmm"
	"github.com/onkernel/fcctl/lib/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newFakeClient returns a client wired to a fresh fake control plane over loopback TCP.
func newFakeClient(t *testing.T, cfg Config, opts ...Option) (*Client, *fakevmm.Server) {
	t.Helper()
	fake, err := fakevmm.New(fakevmm.Config{})
	require.NoError(t, err)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	cfg.BaseAddress = srv.URL
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, fake
}

// newStubClient returns a client wired to handler and a counter of requests it received.
func newStubClient(t *testing.T, handler http.HandlerFunc, cfg Config, opts ...Option) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg.BaseAddress = srv.URL
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, &calls
}

func frozenLimiter(t *testing.T, capacity int, mode ratelimit.Mode) *ratelimit.Limiter {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l, err := ratelimit.New(ratelimit.Config{Capacity: capacity, Refill: 1, Interval: time.Hour, Mode: mode},
		ratelimit.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return l
}

func TestParseBaseAddress(t *testing.T) {
	tests := []struct {
		addr       string
		wantURL    string
		wantSocket string
		wantErr    bool
	}{
		{addr: "unix:///run/fc/api.sock", wantURL: "http://localhost", wantSocket: "/run/fc/api.sock"},
		{addr: "/run/fc/api.sock", wantURL: "http://localhost", wantSocket: "/run/fc/api.sock"},
		{addr: "http://127.0.0.1:8080", wantURL: "http://127.0.0.1:8080"},
		{addr: "http://localhost:8080/", wantURL: "http://localhost:8080"},
		{addr: "http://[::1]:9000", wantURL: "http://[::1]:9000"},
		{addr: "http://127.0.0.2:1", wantURL: "http://127.0.0.2:1"},
		{addr: "", wantErr: true},
		{addr: "unix://relative.sock", wantErr: true},
		{addr: "https://127.0.0.1:8080", wantErr: true},
		{addr: "http://10.0.0.1:8080", wantErr: true},
		{addr: "http://example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			gotURL, gotSocket, err := parseBaseAddress(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, gotURL)
			assert.Equal(t, tt.wantSocket, gotSocket)
		})
	}
}

func TestNewRejectsBadRateLimit(t *testing.T) {
	_, err := New(Config{BaseAddress: "/tmp/api.sock", RateLimit: &ratelimit.Config{Capacity: 0, Refill: 1}})
	assert.Error(t, err)
}

func TestValidationFailureSendsNothing(t *testing.T) {
	lim := frozenLimiter(t, 1, ratelimit.ModeReject)
	c, calls := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, Config{}, WithLimiter(lim))

	err := c.PutMachineConfig(context.Background(), NewMachineConfig(0, 128))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "vcpu_count", verr.Field)

	err = c.PutDrive(context.Background(), NewDrive("rootfs", "relative.img"))
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, calls.Load())
	assert.Equal(t, float64(1), lim.Tokens(), "validation failures must not consume tokens")
}

func TestAPIErrorFaultMessage(t *testing.T) {
	c, fake := newFakeClient(t, Config{})
	fake.InjectFault(http.MethodPut, "/drives/rootfs", http.StatusBadRequest, "bad drive id")

	err := c.PutDrive(context.Background(), NewDrive("rootfs", "/rootfs.ext4").AsRoot())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.NotErrorIs(t, err, ErrDecode)
	assert.Equal(t, KindAPI, KindOf(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad drive id", apiErr.Message)
	assert.True(t, apiErr.IsClientError())
	assert.False(t, apiErr.IsServerError())
}

func TestAPIErrorRawBody(t *testing.T) {
	c, _ := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, Config{})

	err := c.PutMetrics(context.Background(), MetricsConfig{MetricsPath: "/tmp/metrics.fifo"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
	assert.True(t, apiErr.IsServerError())
}

func TestAPIErrorEmptyBody(t *testing.T) {
	c, _ := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Config{})

	err := c.Start(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), apiErr.Message)
}

func TestTimeoutIsCancelledAndKeepsToken(t *testing.T) {
	lim := frozenLimiter(t, 2, ratelimit.ModeReject)
	c, fake := newFakeClient(t, Config{Timeout: 20 * time.Millisecond}, WithLimiter(lim))
	fake.SetDelay(500 * time.Millisecond)

	start := time.Now()
	_, err := c.GetInstanceInfo(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, KindNetwork, KindOf(err))

	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Cancelled)
	assert.True(t, nerr.Timeout)

	assert.Equal(t, float64(1), lim.Tokens(), "consumed token must not be refunded")
}

func TestCallerCancellation(t *testing.T) {
	c, calls := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Pause(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, calls.Load())
}

func TestCancellationWhileWaitingForToken(t *testing.T) {
	lim := frozenLimiter(t, 1, ratelimit.ModeWait)
	c, calls := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, Config{}, WithLimiter(lim))

	require.NoError(t, c.Resume(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := c.Resume(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimitedReject(t *testing.T) {
	c, fake := newFakeClient(t, Config{}, WithLimiter(frozenLimiter(t, 1, ratelimit.ModeReject)))

	_, err := c.GetVersion(context.Background())
	require.NoError(t, err)

	_, err = c.GetVersion(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, ratelimit.ErrLimited)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Len(t, fake.Requests(), 1)
}

func TestRateLimitedWaitPastDeadline(t *testing.T) {
	c, fake := newFakeClient(t, Config{}, WithLimiter(frozenLimiter(t, 1, ratelimit.ModeWait)))

	_, err := c.GetVersion(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetVersion(ctx)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, ratelimit.ErrDeadline)
	assert.Len(t, fake.Requests(), 1)
}

func TestConfigRateLimitBuildsLimiter(t *testing.T) {
	c, _ := newFakeClient(t, Config{RateLimit: &ratelimit.Config{Capacity: 3, Refill: 1, Mode: ratelimit.ModeReject}})
	require.NotNil(t, c.Limiter())
	assert.Equal(t, 3, c.Limiter().Capacity())
	assert.Equal(t, ratelimit.ModeReject, c.Limiter().Mode())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown state", `{"id":"vm","state":"Exploded","vmm_version":"1.10.1"}`},
		{"missing state", `{"id":"vm","vmm_version":"1.10.1"}`},
		{"empty body", ``},
		{"not json", `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}, Config{})

			info, err := c.GetInstanceInfo(context.Background())
			assert.Nil(t, info)
			assert.ErrorIs(t, err, ErrAPI)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Equal(t, KindAPI, KindOf(err))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusOK, apiErr.StatusCode)
			assert.NotNil(t, apiErr.Decode)
		})
	}
}

func TestDialFailureIsNetworkError(t *testing.T) {
	c, err := New(Config{BaseAddress: "unix://" + filepath.Join(t.TempDir(), "missing.sock")})
	require.NoError(t, err)

	_, err = c.GetVersion(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestUnixSocketTransport(t *testing.T) {
	fake, err := fakevmm.New(fakevmm.Config{VMMVersion: "1.9.0"})
	require.NoError(t, err)

	sock := filepath.Join(t.TempDir(), "api.sock")
	ln, err := fakevmm.ListenUnix(sock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fake.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c, err := New(Config{BaseAddress: "unix://" + sock})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, sock, c.SocketPath())

	v, err := c.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.9.0", v.FirecrackerVersion)
}

func TestRequestHeaders(t *testing.T) {
	var gotContentType, gotAccept, gotPath string
	c, _ := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}, Config{})

	require.NoError(t, c.PutDrive(context.Background(), NewDrive("data disk", "/data.img")))
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "/drives/data%20disk", gotPath)
}

func TestTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	c, fake := newFakeClient(t, Config{}, WithMetrics(metrics), WithTracer(tp.Tracer("test")))
	fake.InjectFault(http.MethodPut, "/actions", http.StatusBadRequest, "no kernel")

	_, err = c.GetVersion(context.Background())
	require.NoError(t, err)
	require.Error(t, c.Start(context.Background()))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "firecracker.GetVersion", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "firecracker.CreateInstanceAction", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["fcctl_firecracker_api_duration_seconds"])
	assert.True(t, names["fcctl_firecracker_api_errors_total"])
}

func TestNilMetricsAreSafe(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
	m.RecordAPICall(context.Background(), "op", time.Now(), errors.New("x"))
}
