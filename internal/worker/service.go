package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/thebtf/xfeed/internal/config"
	"github.com/thebtf/xfeed/internal/curation"
	gormdb "github.com/thebtf/xfeed/internal/db/gorm"
	"github.com/thebtf/xfeed/internal/oracle"
	"github.com/thebtf/xfeed/internal/reputation"
)

// Service configuration constants.
const (
	// DefaultHTTPTimeout bounds every request, including a full curation cycle.
	DefaultHTTPTimeout = 60 * time.Second

	// MaxRequestBody caps a curation request (candidates plus oracle text).
	MaxRequestBody = 16 << 20

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second
)

// pinger is implemented by durable stores.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthReporter is implemented by stores that report pool health.
type healthReporter interface {
	HealthCheck(ctx context.Context) *gormdb.HealthInfo
}

var _ healthReporter = (*gormdb.Store)(nil)

// Service is the HTTP curation service.
type Service struct {
	startTime    time.Time
	log          zerolog.Logger
	store        reputation.Store
	engine       *curation.Engine
	decoder      *oracle.Decoder
	reclassifier *reputation.Reclassifier
	limiter      *RateLimiter
	auth         *TokenAuth
	router       *chi.Mux
	server       *http.Server
	cfg          atomic.Pointer[config.Config]
	version      string
	wg           sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithAuthToken requires token on every route except health.
func WithAuthToken(token string) Option {
	return func(s *Service) {
		s.auth = NewTokenAuth(token)
	}
}

// WithRateLimit replaces the limiter guarding the curation and reclassify routes.
func WithRateLimit(rate float64, burst int) Option {
	return func(s *Service) {
		s.limiter = NewRateLimiter(rate, burst)
	}
}

// WithEngineOptions passes options to the curation engine.
func WithEngineOptions(opts ...curation.Option) Option {
	return func(s *Service) {
		s.engine = curation.NewEngine(s.store, append([]curation.Option{curation.WithLogger(s.log)}, opts...)...)
	}
}

// NewService wires the engine, decoder and reclassifier over store.
func NewService(version string, cfg *config.Config, store reputation.Store, log zerolog.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{
		version:   version,
		store:     store,
		log:       log.With().Str("component", "worker").Logger(),
		decoder:   oracle.NewDecoder(log),
		limiter:   NewRateLimiter(5, 10),
		auth:      NewTokenAuth(""),
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.engine = curation.NewEngine(store, curation.WithLogger(log))
	s.cfg.Store(cfg)

	s.reclassifier = reputation.NewReclassifier(store, reputation.NewClassifier(cfg.Reputation.Classifier), log)
	s.reclassifier.SetInterval(cfg.Reputation.ReclassifyInterval)
	s.reclassifier.SetHistoryLimit(cfg.Reputation.HistoryLimit)

	for _, opt := range opts {
		opt(s)
	}
	s.reclassifier.SetGuard(s.engine.Exclusive)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Config returns the configuration used by the next cycle.
func (s *Service) Config() *config.Config {
	return s.cfg.Load()
}

// SetConfig swaps the configuration between cycles. Invalid configs are ignored.
func (s *Service) SetConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if err := cfg.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("Rejecting invalid config")
		return
	}
	s.cfg.Store(cfg)
	s.log.Info().
		Float64("relevance_threshold", cfg.RelevanceThreshold).
		Float64("exploration_rate", cfg.Exploration.Rate).
		Msg("Curation config updated")
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(SecurityHeaders)
}

func (s *Service) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/api/authors/{handle}", s.handleGetAuthor)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Use(RequireJSONContentType)
			r.Use(MaxBodySize(MaxRequestBody))
			r.Post("/api/curate", s.handleCurate)
			r.Post("/api/authors/reclassify", s.handleReclassify)
		})
	})
}

// Start begins serving on the configured port and starts the reclassifier.
// It returns once the listener goroutine is running.
func (s *Service) Start(ctx context.Context) error {
	cfg := s.Config()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Reputation.ReclassifyInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reclassifier.Start(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.log.Info().
		Int("port", cfg.WorkerPort).
		Str("version", s.version).
		Msg("Worker HTTP server started")
	return nil
}

// Shutdown stops the server and the reclassifier. The store is left open for the caller.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("http shutdown: %w", shutdownErr)
		}
	}
	s.reclassifier.Stop()
	s.wg.Wait()

	s.log.Info().Msg("Worker service shutdown complete")
	return err
}
