// Package mockapi is an in-memory stand-in for the marketplace REST API. It
// issues short-lived jwt access tokens so the client's refresh path can be
// exercised locally.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Server wraps the HTTP listener and handlers backing the mock API.
type Server struct {
	settings Settings
	logger   Logger
	clock    func() time.Time
	store    *store
	tokens   tokenIssuer

	revokedMu sync.Mutex
	revoked   map[string]time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control token issue and expiry times.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a mock API seeded with demo customers and orders.
func NewServer(settings Settings, opts ...Option) (*Server, error) {
	settings.normalize()
	s := &Server{
		settings: settings,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		store:    newStore(),
		revoked:  map[string]time.Time{},
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.tokens = tokenIssuer{
		secret:     []byte(settings.Secret),
		accessTTL:  settings.AccessTTL,
		refreshTTL: settings.RefreshTTL,
		now:        s.now,
	}
	if err := s.store.seed(s.now()); err != nil {
		return nil, fmt.Errorf("mockapi: seed: %w", err)
	}
	return s, nil
}

// Handler returns the API routes without binding a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.With(s.requireToken(tokenTypeRefresh)).Post("/auth/refresh", s.handleRefresh)
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken(tokenTypeAccess))
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/orders", s.handleListOrders)
			r.Get("/orders/{orderID}", s.handleGetOrder)
			r.Put("/orders/{orderID}/cancel", s.handleCancelOrder)
			r.Put("/orders/{orderID}/confirm-delivery", s.handleConfirmDelivery)
			r.Get("/reviews/order/{orderID}/pending", s.handlePendingReviews)
			r.Post("/reviews", s.handleCreateReview)
		})
	})
	return r
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("mockapi: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("mockapi: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mockapi: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = time.Now()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("mockapi: serve error: %v", err)
		}
	}()
	s.logger.Printf("mockapi: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IssueTokens mints a token pair for a seeded user without a login round trip.
func (s *Server) IssueTokens(username string) (access, refresh string, err error) {
	var userID int64
	s.store.mu.Lock()
	for id, acct := range s.store.accounts {
		if acct.user.Username == username {
			userID = id
		}
	}
	s.store.mu.Unlock()
	if userID == 0 {
		return "", "", fmt.Errorf("mockapi: unknown user %q", username)
	}
	if access, err = s.tokens.issue(userID, tokenTypeAccess); err != nil {
		return "", "", err
	}
	if refresh, err = s.tokens.issue(userID, tokenTypeRefresh); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// ReportedIssues counts the "not received" confirmations recorded so far.
func (s *Server) ReportedIssues() int {
	return s.store.issueCount()
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Printf("mockapi: %s %s -> %d (%s) [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond), r.Header.Get("X-Request-ID"))
	})
}

func (s *Server) revoke(jti string, until time.Time) {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	s.revoked[jti] = until
}

func (s *Server) isRevoked(jti string) bool {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	_, ok := s.revoked[jti]
	return ok
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
