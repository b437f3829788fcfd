package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-michi/michi"
	"github.com/mscno/ghsync/server/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"
)

const (
	maxHeaderBytes    = 1 << 20
	readTimeout       = 30 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	defaultRateLimit  = rate.Limit(5)
	defaultRateBurst  = 20
)

type HTTPConfig struct {
	Addr string
	// AllowedOrigins for CORS, usually just the frontend.
	AllowedOrigins []string
	// RateLimit is requests per second per client ip. Zero uses the default, negative disables.
	RateLimit rate.Limit
	RateBurst int
	Logger    *slog.Logger
}

// HTTPServer serves the API and /metrics over HTTP/1.1 and h2c.
type HTTPServer struct {
	Server  *http.Server
	Router  *michi.Router
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

func NewHTTPServer(h *Handler, cfg HTTPConfig) *HTTPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := michi.NewRouter()
	h.Register(router)
	router.Handle("GET /metrics", promhttp.Handler())

	s := &HTTPServer{Router: router, logger: logger}
	middlewares := []func(http.Handler) http.Handler{
		middleware.WithRecovery(logger),
		middleware.WithLogger(logger),
		middleware.WithCORS(logger, cfg.AllowedOrigins...),
	}
	if cfg.RateLimit >= 0 {
		limit, burst := cfg.RateLimit, cfg.RateBurst
		if limit == 0 {
			limit = defaultRateLimit
		}
		if burst <= 0 {
			burst = defaultRateBurst
		}
		s.limiter = middleware.NewRateLimiter(logger, middleware.ClientIPKeyFunc, limit, burst,
			middleware.WithSkipper(middleware.SkipPaths("/api/health", "/metrics")))
		middlewares = append(middlewares, s.limiter.Limit)
	}

	s.Server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(middleware.Chain(router, middlewares...), &http2.Server{}),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	return s
}

// ServeHTTP implements the http.Handler interface
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Server.Handler.ServeHTTP(w, r)
}

func (s *HTTPServer) ListenAndServe() error {
	s.logger.Info("starting server", "addr", s.Server.Addr)
	return s.Server.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Debug("shutting down server")
	if s.limiter != nil {
		defer s.limiter.Close()
	}
	if err := s.Server.Shutdown(ctx); err != nil {
		s.logger.Error("error shutting down server", "error", err)
		return err
	}
	return nil
}
