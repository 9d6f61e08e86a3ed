package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/logging"
	"github.com/teemow/inboxshare/internal/mailbox"
	"github.com/teemow/inboxshare/internal/provision"
	"github.com/teemow/inboxshare/internal/session"
	"github.com/teemow/inboxshare/internal/visibility"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second

	// maxBodyBytes bounds request bodies; only /admin/login reads one.
	maxBodyBytes = 4 << 10
)

// Authenticator runs the Google authorization-code flow. *google.OAuth
// satisfies it.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserEmail(ctx context.Context, tok *oauth2.Token) (string, error)
}

// Config wires the HTTP service to its components. Every component field is
// required except RateLimiter, Store and the instrumentation fields.
type Config struct {
	Sessions    *session.Manager
	Admin       *session.AdminVerifier
	OAuth       Authenticator
	Provisioner *provision.Provisioner
	Mailbox     *mailbox.Service
	Visibility  *visibility.Admin

	// Store is pinged by the readiness probe.
	Store Pinger

	// RateLimiter may be nil to disable limiting.
	RateLimiter *RateLimiter

	// PostLoginRedirect is where the OAuth callback sends the browser.
	// Defaults to "/".
	PostLoginRedirect string

	Metrics     *instrumentation.Metrics
	AuditLogger *instrumentation.AuditLogger
	Logger      *slog.Logger
}

// Server is the inboxshare HTTP service.
type Server struct {
	sessions    *session.Manager
	admin       *session.AdminVerifier
	oauth       Authenticator
	provisioner *provision.Provisioner
	mailbox     *mailbox.Service
	visibility  *visibility.Admin
	limiter     *RateLimiter
	redirect    string

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	health  *HealthChecker
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.Sessions == nil {
		errs = append(errs, fmt.Errorf("session manager is required"))
	}
	if cfg.Admin == nil {
		errs = append(errs, fmt.Errorf("admin verifier is required"))
	}
	if cfg.OAuth == nil {
		errs = append(errs, fmt.Errorf("oauth authenticator is required"))
	}
	if cfg.Provisioner == nil {
		errs = append(errs, fmt.Errorf("provisioner is required"))
	}
	if cfg.Mailbox == nil {
		errs = append(errs, fmt.Errorf("mailbox service is required"))
	}
	if cfg.Visibility == nil {
		errs = append(errs, fmt.Errorf("visibility admin is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	redirect := cfg.PostLoginRedirect
	if redirect == "" {
		redirect = "/"
	}

	s := &Server{
		sessions:    cfg.Sessions,
		admin:       cfg.Admin,
		oauth:       cfg.OAuth,
		provisioner: cfg.Provisioner,
		mailbox:     cfg.Mailbox,
		visibility:  cfg.Visibility,
		limiter:     cfg.RateLimiter,
		redirect:    redirect,
		metrics:     cfg.Metrics,
		audit:       cfg.AuditLogger,
		logger:      logging.WithComponent(cfg.Logger, "server"),
		health:      NewHealthChecker(cfg.Store),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.limiter.Middleware(h)
	h = recoverPanics(s.logger, h)
	h = instrument(s.metrics, s.logger, h)
	// Span names stay free of the raw path, which carries mailbox addresses.
	s.handler = otelhttp.NewHandler(h, "inboxshare",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}))

	return s, nil
}

// Handler returns the complete middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Health returns the probe state, for readiness toggling during shutdown.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Start listens on addr and serves until Shutdown. It closes ready, if
// non-nil, once the listener is bound.
func (s *Server) Start(addr string, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("addr", ln.Addr().String()))
	if ready != nil {
		close(ready)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown fails readiness, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.MarkShuttingDown()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return srv.Shutdown(ctx)
}
