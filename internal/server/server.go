// Package server exposes the yield curve, the oracle store and the key registry over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yourorg/oracle-yield-curve/internal/metrics"
	"github.com/yourorg/oracle-yield-curve/internal/oracle"
	"github.com/yourorg/oracle-yield-curve/internal/registry"
	"github.com/yourorg/oracle-yield-curve/internal/security"
	"github.com/yourorg/oracle-yield-curve/internal/yieldcurve"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

const version = "1.0.0"

// maxBodyBytes caps every request body
const maxBodyBytes = 1 << 20

// Config holds the configuration for the HTTP server
type Config struct {
	// HTTP port to listen on
	Port string

	// Bearer token for /v1/admin, admin routes are not mounted when empty
	AdminAPIKey string

	// Output scale used when a request does not pass one
	OutputDecimals int

	RequestTimeout time.Duration

	// Entry submission rate limit
	RateLimitRPS   float64
	RateLimitBurst int
}

// StatusReporter is implemented by background components that report on /status
type StatusReporter interface {
	Status() map[string]interface{}
}

// Deps are the components the server exposes
type Deps struct {
	Curve    *yieldcurve.Engine
	Store    *oracle.Store
	Registry *registry.Registry

	// Attestor signs curve responses when set
	Attestor *security.Attestor

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Exporter is reported on /status when set
	Exporter StatusReporter
}

// Server represents the HTTP server instance
type Server struct {
	config Config
	deps   Deps

	rateLimit *rate.Limiter
	mux       *chi.Mux
}

// New creates a server and registers its routes
func New(cfg Config, deps Deps) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:    cfg,
		deps:      deps,
		rateLimit: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		mux:       chi.NewMux(),
	}
	s.routes()

	logrus.WithFields(logrus.Fields{
		"port":            cfg.Port,
		"output_decimals": cfg.OutputDecimals,
		"admin":           cfg.AdminAPIKey != "",
		"attestation":     deps.Attestor != nil,
		"rate_limit_rps":  cfg.RateLimitRPS,
	}).Info("Server initialized")

	return s
}

func (s *Server) routes() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(requestLogger)
	s.mux.Use(middleware.RequestSize(maxBodyBytes))

	s.mux.Post("/", s.handleChainlinkRequest)
	s.mux.Get("/health", s.handleHealth)
	s.mux.Get("/status", s.handleStatus)
	s.mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/yield-points", s.handleYieldPoints)
		r.Get("/keys", s.handleKeys)
		r.Get("/keys/status", s.handleKeyStatus)
		r.Get("/value", s.handleValue)
		r.Get("/entries", s.handleGetEntries)
		r.With(s.rateLimited).Post("/entries", s.handleSubmitEntries)

		if s.config.AdminAPIKey == "" {
			logrus.Warn("ADMIN_API_KEY not set, admin endpoints disabled")
			return
		}

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/on-keys", s.handleAddOnKey)
			r.Post("/spot-keys", s.handleAddSpotKey)
			r.Post("/future-keys", s.handleAddFutureKey)
			r.Post("/keys/deactivate", s.handleSetKeyActive(false))
			r.Post("/keys/activate", s.handleSetKeyActive(true))
			r.Post("/publishers", s.handleRegisterPublisher)
			r.Post("/decimals", s.handleSetDecimals)
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on the configured port until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, gCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer logrus.Info("Server stopped")

		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}

		logrus.Infof("Server starting on %s", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gCtx.Done()

		logrus.Info("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// requestLogger logs each request with logrus
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/health" {
			return
		}
		logrus.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Handled request")
	})
}
