// Package devserver is a small in-memory implementation of the auth and
// user API, for running the CLI locally and for end-to-end tests of the
// client. Access tokens are HS256 JWTs; refresh tokens are opaque, single
// use and rotated on every refresh.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/logging"
	"github.com/gorilla/mux"
)

// NotifyFunc receives the one-time tokens a real deployment would email:
// kind is "verify-email" or "reset-password".
type NotifyFunc func(kind, email, token string)

type avatar struct {
	contentType string
	data        []byte
}

type Server struct {
	config *Config
	logger logging.Logger
	secret []byte
	now    func() time.Time
	notify NotifyFunc

	users        *UserStore
	refresh      *TokenStore
	resetTokens  *TokenStore
	verifyTokens *TokenStore

	avatarMu sync.RWMutex
	avatars  map[string]avatar

	router *mux.Router
}

type Option func(*Server)

// WithClock overrides time.Now for token issue and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithNotifier(fn NotifyFunc) Option {
	return func(s *Server) { s.notify = fn }
}

func New(cfg *Config, logger logging.Logger, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		logger:  logger.With("module", "devserver"),
		secret:  []byte(cfg.SecretKey),
		now:     time.Now,
		avatars: map[string]avatar{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.notify == nil {
		s.notify = func(kind, email, token string) {
			s.logger.Info(context.Background(), "one-time token issued", "kind", kind, "email", email, "token", token)
		}
	}

	s.users = NewUserStore(s.now)
	s.refresh = NewTokenStore(cfg.RefreshTokenTTL, s.now)
	s.resetTokens = NewTokenStore(time.Hour, s.now)
	s.verifyTokens = NewTokenStore(24*time.Hour, s.now)
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.config.Address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() *mux.Router {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r := mux.NewRouter()
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed
	r.Use(s.logRequests)

	// A subrouter answers mismatches itself; the root router never sees them.
	api := r.PathPrefix("/" + s.config.APIVersion).Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = notAllowed

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	api.HandleFunc("/avatars/{id}", s.handleGetAvatar).Methods(http.MethodGet)

	api.Handle("/auth/logout", s.requireAuth(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)
	api.Handle("/auth/verify-email", s.requireAuth(http.HandlerFunc(s.handleVerifyEmail))).Methods(http.MethodPost)
	api.Handle("/user/profile", s.requireAuth(http.HandlerFunc(s.handleProfile))).Methods(http.MethodGet)
	api.Handle("/user/avatar", s.requireAuth(http.HandlerFunc(s.handleUploadAvatar))).Methods(http.MethodPost)

	return r
}
