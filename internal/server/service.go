package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sentiq/healthiq/internal/analytics/alerts"
	"github.com/sentiq/healthiq/internal/analytics/graph"
	"github.com/sentiq/healthiq/internal/analytics/hsi"
	"github.com/sentiq/healthiq/internal/analytics/pipeline"
	"github.com/sentiq/healthiq/internal/config"
	"github.com/sentiq/healthiq/internal/db"
	"github.com/sentiq/healthiq/internal/graphdb"
	"github.com/sentiq/healthiq/internal/llm"
)

// Service configuration constants.
const (
	// DefaultHTTPTimeout is the per-request timeout.
	DefaultHTTPTimeout = 30 * time.Second

	// MaxRequestBody bounds incoming payload size.
	MaxRequestBody = 1 << 20

	// DefaultRecentDays is the event span fed to LLM insight tasks.
	DefaultRecentDays = 14
)

// Service wires the stores, analytics pipeline, LLM gateway, and graph
// mirror behind the HTTP API.
type Service struct {
	version string
	config  *config.Config

	store      *db.Store
	events     *db.EventStore
	graphStore *db.GraphStore
	scores     *db.ScoreStore
	alertStore *db.AlertStore

	// analyticsMu guards engine and runner across settings reloads.
	analyticsMu sync.RWMutex
	engine      *alerts.Engine
	runner      *pipeline.Runner

	gateway *llm.Gateway
	mirror  *graphdb.Mirror

	// refreshGroup coalesces concurrent identical report refreshes.
	refreshGroup singleflight.Group

	router    *chi.Mux
	server    *http.Server
	startTime time.Time
	logger    zerolog.Logger
}

// NewService builds the service from already-opened collaborators. The
// analytics stages come from the validated configuration, so an invalid
// threshold set fails construction rather than a request.
func NewService(version string, cfg *config.Config, store *db.Store, gateway *llm.Gateway, mirror *graphdb.Mirror, logger zerolog.Logger) (*Service, error) {
	builder, scorer, engine, err := buildStages(cfg)
	if err != nil {
		return nil, err
	}

	var dedup time.Duration
	if cfg.Analytics.Alerts != nil {
		dedup = cfg.Analytics.Alerts.DedupWindow
	}

	events := db.NewEventStore(store)

	svc := &Service{
		version:    version,
		config:     cfg,
		store:      store,
		events:     events,
		graphStore: db.NewGraphStore(store, events, builder),
		scores:     db.NewScoreStore(store),
		alertStore: db.NewAlertStore(store, dedup),
		engine:     engine,
		runner:     pipeline.NewRunner(builder, scorer, engine),
		gateway:    gateway,
		mirror:     mirror,
		router:     chi.NewRouter(),
		startTime:  time.Now(),
		logger:     logger.With().Str("component", "server").Logger(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()
	return svc, nil
}

// buildStages constructs the pure analytics stages from a validated
// configuration.
func buildStages(cfg *config.Config) (*graph.Builder, *hsi.Scorer, *alerts.Engine, error) {
	builder, err := graph.NewBuilder(cfg.Analytics.Graph, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("graph builder: %w", err)
	}
	scorer, err := hsi.NewScorer(cfg.Analytics.HSI)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("hsi scorer: %w", err)
	}
	engine, err := alerts.NewEngine(cfg.Analytics.Alerts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("alert engine: %w", err)
	}
	return builder, scorer, engine, nil
}

// ApplyConfig swaps the analytics stages for a reloaded configuration.
// Construction failures leave the running stages untouched, so an invalid
// settings edit never degrades a live service.
func (s *Service) ApplyConfig(cfg *config.Config) error {
	builder, scorer, engine, err := buildStages(cfg)
	if err != nil {
		return err
	}

	var dedup time.Duration
	if cfg.Analytics.Alerts != nil {
		dedup = cfg.Analytics.Alerts.DedupWindow
	}

	s.analyticsMu.Lock()
	s.engine = engine
	s.runner = pipeline.NewRunner(builder, scorer, engine)
	s.analyticsMu.Unlock()

	s.graphStore.SetBuilder(builder)
	s.alertStore.SetDedupWindow(dedup)

	s.logger.Info().Msg("Analytics thresholds updated")
	return nil
}

// analytics returns the current pipeline stages under the reload lock.
func (s *Service) analytics() (*pipeline.Runner, *alerts.Engine) {
	s.analyticsMu.RLock()
	defer s.analyticsMu.RUnlock()
	return s.runner, s.engine
}

// Router returns the configured handler, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(SecurityHeaders(s.config.CORSOrigins))
	s.router.Use(MaxBodySize(MaxRequestBody))
	s.router.Use(RequireJSONContentType)
}

func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/status", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)

	s.router.Post("/api/events", s.handleCreateEvent)
	s.router.Get("/api/events", s.handleListEvents)
	s.router.Get("/api/events/{id}", s.handleGetEvent)
	s.router.Delete("/api/events/{id}", s.handleDeleteEvent)

	s.router.Post("/api/analytics/refresh", s.handleRefresh)
	s.router.Get("/api/analytics/report", s.handleReport)
	s.router.Get("/api/analytics/graph", s.handleGraph)
	s.router.Get("/api/analytics/score", s.handleScore)
	s.router.Get("/api/analytics/alerts", s.handleAlerts)
	s.router.Post("/api/alerts/{id}/acknowledge", s.handleAcknowledge)

	s.router.Post("/api/insights/interpret", s.handleInterpret)
	s.router.Post("/api/insights/weekly-summary", s.handleWeeklySummary)
}

// Start begins serving on the configured port.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.logger.Info().Int("port", s.config.Port).Msg("HTTP server started")
	return nil
}

// Shutdown stops the HTTP server and closes the collaborators.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	if s.gateway != nil {
		if err := s.gateway.Close(); err != nil {
			s.logger.Error().Err(err).Msg("LLM gateway close error")
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Close(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Graph mirror close error")
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Database close error")
	}

	s.logger.Info().Msg("Service shutdown complete")
	return nil
}

// refreshReport runs the full pipeline for one identity, persisting the
// score snapshot and deduplicated alerts. Concurrent identical requests
// share one run.
func (s *Service) refreshReport(ctx context.Context, identity string, windowDays, topN int) (*pipeline.Report, error) {
	key := fmt.Sprintf("%s|%d|%d", identity, windowDays, topN)
	v, err, _ := s.refreshGroup.Do(key, func() (interface{}, error) {
		return s.runRefresh(ctx, identity, windowDays, topN)
	})
	if err != nil {
		return nil, err
	}
	return v.(*pipeline.Report), nil
}

func (s *Service) runRefresh(ctx context.Context, identity string, windowDays, topN int) (*pipeline.Report, error) {
	events, err := s.events.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	summary, err := s.graphStore.Summary(ctx, identity, topN)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	previous, err := s.scores.Latest(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load previous score: %w", err)
	}

	runner, engine := s.analytics()
	report, err := runner.Run(pipeline.Input{
		Identity:   identity,
		Events:     events,
		Previous:   previous,
		Graph:      summary,
		TopN:       topN,
		WindowDays: windowDays,
	})
	if err != nil {
		return nil, err
	}

	if err := s.scores.Append(ctx, identity, report.HSI); err != nil {
		return nil, fmt.Errorf("persist score: %w", err)
	}
	for i := range report.Alerts {
		if _, err := s.alertStore.CreateIfAbsent(ctx, &report.Alerts[i]); err != nil {
			return nil, fmt.Errorf("persist alert: %w", err)
		}
	}

	// Risk and suggestions reflect the stored alert state, so a firing
	// suppressed by the dedup window does not double-count.
	active, err := s.alertStore.ListActive(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	report.Alerts = active
	report.Risk = engine.ComputeRisk(report.HSI, active)
	report.Suggestions = engine.Suggest(report.HSI, active, report.Graph)

	if s.mirror != nil && s.mirror.Active() {
		s.mirror.ApplySummary(ctx, identity, report.Graph)
	}

	s.logger.Info().
		Str("identity", identity).
		Float64("score", report.HSI.Score).
		Int("active_alerts", len(active)).
		Msg("Analytics refresh complete")
	return report, nil
}
