// Package worker provides the HTTP service for dailyscore.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/dailyscore/internal/config"
	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/internal/tracker"
	"github.com/thebtf/dailyscore/internal/worker/sse"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout bounds every API request. Event streams are exempt.
	DefaultHTTPTimeout = 30 * time.Second

	// MaxRequestBody caps JSON request bodies.
	MaxRequestBody = 64 << 10

	// HealthCheckTimeout bounds the store ping behind /health.
	HealthCheckTimeout = 2 * time.Second
)

// Options wires a Service. Store, Users and Guests are required.
type Options struct {
	Version string
	Config  *config.Config

	// Store holds accounts and guest profiles.
	Store db.Store

	// Users scores registered accounts; Guests scores guest profiles,
	// usually over an ephemeral store.
	Users  *tracker.Tracker
	Guests *tracker.Tracker

	// Classifier answers /api/classify. Nil means keyword fallback only.
	Classifier tracker.Classifier

	// Events streams tracker events. One is created when nil.
	Events *sse.Broadcaster
}

// Service is the worker HTTP service.
type Service struct {
	startTime time.Time

	version string
	config  *config.Config

	store      db.Store
	users      *tracker.Tracker
	guests     *tracker.Tracker
	classifier tracker.Classifier
	events     *sse.Broadcaster

	auth    *TokenAuth
	limiter *ClientLimiter

	router *chi.Mux
	server *http.Server

	wg sync.WaitGroup
}

// NewService creates the service and its routes.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("worker: store is required")
	}
	if opts.Users == nil || opts.Guests == nil {
		return nil, fmt.Errorf("worker: user and guest trackers are required")
	}
	if opts.Config == nil {
		opts.Config = config.Get()
	}
	if opts.Events == nil {
		opts.Events = sse.NewBroadcaster()
	}

	auth, err := NewTokenAuth(opts.Config.AuthEnabled, opts.Config.AuthToken)
	if err != nil {
		return nil, err
	}

	s := &Service{
		version:    opts.Version,
		config:     opts.Config,
		store:      opts.Store,
		users:      opts.Users,
		guests:     opts.Guests,
		classifier: opts.Classifier,
		events:     opts.Events,
		auth:       auth,
		limiter:    NewClientLimiter(ClassifyRate, ClassifyBurst),
		router:     chi.NewRouter(),
		startTime:  time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// Publisher returns a tracker publisher that streams each event to the
// clients of the user it belongs to.
func Publisher(b *sse.Broadcaster) tracker.EventPublisher {
	return tracker.PublisherFunc(func(e tracker.Event) {
		b.Send(e.UserID, e)
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Service) Handler() http.Handler {
	return s.router
}

// AuthToken returns the service token, or "" when auth is disabled.
func (s *Service) AuthToken() string {
	return s.auth.Token()
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(SecurityHeaders)
	s.router.Use(CORS())
	s.router.Use(s.auth.Middleware)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)

	// Event streams stay open, so they sit outside the request timeout.
	s.router.With(s.requireUser).Get("/api/events", s.events.Handler(userFromRequest))

	s.router.Group(func(r chi.Router) {
		useAPI(r)

		r.Post("/api/auth/register", s.handleRegister)
		r.Post("/api/auth/login", s.handleLogin)
		r.With(LimitPerClient(s.limiter)).Post("/api/classify", s.handleClassify)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			s.scoringRoutes(r, s.users, "/api")
		})
	})

	s.router.Route("/api/guest", func(r chi.Router) {
		r.With(useAPIHandlers...).Post("/save-name", s.handleSaveGuestName)

		r.Route("/{guestID}", func(r chi.Router) {
			r.Use(s.requireGuest)
			r.Get("/events", s.events.Handler(userFromRequest))

			r.Group(func(r chi.Router) {
				useAPI(r)
				r.Get("/", s.handleGetGuest)
				r.Put("/preferences", s.handleGuestPreferences)
				r.Delete("/", s.handleDeleteGuest)
				s.scoringRoutes(r, s.guests, "")
			})
		})
	})
}

// useAPIHandlers applies to every request/response API route.
var useAPIHandlers = []func(http.Handler) http.Handler{
	middleware.Timeout(DefaultHTTPTimeout),
	MaxBodySize(MaxRequestBody),
	RequireJSONContentType,
}

func useAPI(r chi.Router) {
	r.Use(useAPIHandlers...)
}

// scoringRoutes mounts the task and summary API for one tracker. The same
// set serves accounts under /api and guests under /api/guest/{guestID}.
func (s *Service) scoringRoutes(r chi.Router, t *tracker.Tracker, prefix string) {
	r.With(LimitPerClient(s.limiter)).Post(prefix+"/tasks", handleCreateTask(t))
	r.Get(prefix+"/tasks", handleTasksForDay(t))
	r.Get(prefix+"/tasks/review", handlePendingReview(t))
	r.Get(prefix+"/tasks/all", handleHistory(t))
	r.Put(prefix+"/tasks/{id}/edit", handleEditTask(t))
	r.Put(prefix+"/tasks/{id}", handleReviewTask(t))
	r.Delete(prefix+"/tasks/{id}", handleDeleteTask(t))

	r.Get(prefix+"/summary", handleSummary(t))
	r.Post(prefix+"/summary/update-points", handleUpdatePoints(t))
	r.Get(prefix+"/summary/streaks", handleStreaks(t))
	r.Get(prefix+"/summary/badges", handleBadges(t))
	r.Get(prefix+"/summary/next-update", handleNextUpdate(t))
}

// Start starts the HTTP server on the configured port.
func (s *Service) Start() error {
	port := s.config.WorkerPort
	if port <= 0 {
		port = config.GetWorkerPort()
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Int("port", port).
		Bool("auth", s.auth.IsEnabled()).
		Msg("Worker HTTP server started")

	return nil
}

// Shutdown stops the HTTP server. Stores are owned by the caller.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		if err = s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}
	s.wg.Wait()

	log.Info().Msg("Worker service shutdown complete")
	return err
}
