// Package fakevmm is an in-process stand-in for the Firecracker control
// plane. It validates requests against the embedded OpenAPI description,
// keeps the last write per resource path and models the instance lifecycle
// closely enough to drive the client end to end without KVM.
package fakevmm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nrednav/cuid2"
	nethttpmiddleware "github.com/oapi-codegen/nethttp-middleware"
	mw "github.com/onkernel/fcctl/lib/middleware"
	"github.com/onkernel/fcctl/lib/oapi"
	"github.com/riandyrn/otelchi"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Instance states reported by GET /.
const (
	StateNotStarted = "Not started"
	StateRunning    = "Running"
	StatePaused     = "Paused"
)

const (
	DefaultVMMVersion = "1.10.1"
	defaultAppName    = "Firecracker"

	errAfterStart  = "The requested operation is not supported after starting the microVM."
	errBeforeStart = "The requested operation is not supported before starting the microVM."
)

// Config configures a Server.
type Config struct {
	VMMVersion string
	// Logger receives access logs. Nil discards them.
	Logger *slog.Logger
	// Meter enables request metrics when non-nil.
	Meter metric.Meter
	// ServiceName enables otelchi tracing when non-empty.
	ServiceName string
}

// Request is one request the server accepted for routing.
type Request struct {
	Method string
	Path   string
	Body   json.RawMessage
}

type fault struct {
	status  int
	message string
}

// Server is a fake control plane. It is safe for concurrent use.
type Server struct {
	handler http.Handler

	mu        sync.Mutex
	id        string
	version   string
	state     string
	resources map[string]json.RawMessage
	mmds      json.RawMessage
	requests  []Request
	faults    map[string]fault
	delay     time.Duration
}

// New builds a server with its router.
func New(cfg Config) (*Server, error) {
	if cfg.VMMVersion == "" {
		cfg.VMMVersion = DefaultVMMVersion
	}
	s := &Server{
		id:        cuid2.Generate(),
		version:   cfg.VMMVersion,
		state:     StateNotStarted,
		resources: make(map[string]json.RawMessage),
		faults:    make(map[string]fault),
	}

	spec, err := oapi.GetSwagger()
	if err != nil {
		return nil, err
	}
	spec.Servers = nil

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	if cfg.ServiceName != "" {
		r.Use(otelchi.Middleware(cfg.ServiceName, otelchi.WithChiRoutes(r)))
	}
	if cfg.Logger != nil {
		r.Use(mw.InjectLogger(cfg.Logger))
		r.Use(mw.AccessLogger(cfg.Logger))
	}
	if cfg.Meter != nil {
		m, err := mw.NewHTTPMetrics(cfg.Meter)
		if err != nil {
			return nil, fmt.Errorf("create http metrics: %w", err)
		}
		r.Use(m.Middleware)
	}
	r.Use(s.intercept)
	r.Use(nethttpmiddleware.OapiRequestValidatorWithOptions(spec, &nethttpmiddleware.Options{
		ErrorHandler: mw.OapiFaultHandler,
	}))
	s.routes(r)
	s.handler = r
	return s, nil
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return grp.Wait()
}

// ListenUnix listens on a Unix socket, removing a stale socket file first.
func ListenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return ln, nil
}

// ID returns the instance id reported by GET /.
func (s *Server) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Server) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resource returns the last body written to path, e.g. "/drives/rootfs".
func (s *Server) Resource(path string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.resources[path]
	return b, ok
}

// Requests returns a copy of every request that reached the router.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// InjectFault makes the next requests matching method and path fail with
// status and a fault_message body, until ClearFaults is called.
func (s *Server) InjectFault(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = fault{status: status, message: message}
}

// ClearFaults removes all injected faults.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.faults)
}

// SetDelay delays every response by d. A request whose context ends first is
// abandoned without a response.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// intercept records the request and applies delays and injected faults.
// It runs before request validation so faults can be returned for any body.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			mw.WriteFault(w, http.StatusBadRequest, err.Error())
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
		delay := s.delay
		f, faulted := s.faults[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if faulted {
			mw.WriteFault(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}
