// Package server exposes the redaction engine and the document pipeline
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/scan-redactor/internal/config"
	"github.com/raaihank/scan-redactor/internal/export"
	"github.com/raaihank/scan-redactor/internal/logger"
	"github.com/raaihank/scan-redactor/internal/pipeline"
	"github.com/raaihank/scan-redactor/internal/redaction"
	"github.com/raaihank/scan-redactor/internal/store"
	"github.com/raaihank/scan-redactor/internal/websocket"
	"go.uber.org/zap"
)

// Redactor redacts plain text.
type Redactor interface {
	Redact(ctx context.Context, text string, p redaction.Policy) (redaction.Result, error)
}

// DocumentProcessor runs a scanned document through OCR and redaction.
type DocumentProcessor interface {
	Process(ctx context.Context, doc io.ReaderAt, p redaction.Policy, formats ...export.Format) (*pipeline.DocumentResult, error)
}

// AuditRecorder persists the audit trail of one run.
type AuditRecorder interface {
	Insert(ctx context.Context, rec store.JobRecord) error
}

// Deps are the collaborators served over HTTP. Documents and Audit are
// optional.
type Deps struct {
	Engine    Redactor
	Documents DocumentProcessor
	Audit     AuditRecorder
	Hub       *websocket.Hub
	Rules     int
	Version   string
}

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	deps    Deps
	router  *mux.Router
	server  *http.Server
	hub     *websocket.Hub
	limiter *RateLimiter

	policy     atomic.Pointer[redaction.Policy]
	requests   atomic.Int64
	redactions atomic.Int64
	started    time.Time
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}
	if deps.Engine == nil {
		return nil, errors.New("server requires a redaction engine")
	}

	policy, err := redaction.PolicyFromConfig(cfg.Redaction)
	if err != nil {
		return nil, err
	}

	hub := deps.Hub
	if hub == nil {
		hub = websocket.NewHub(websocket.HubConfigFrom(cfg.WebSocket), log)
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		deps:    deps,
		router:  mux.NewRouter(),
		hub:     hub,
		limiter: NewRateLimiter(cfg.RateLimit),
		started: time.Now(),
	}
	s.policy.Store(&policy)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.hub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/redact", s.handleRedact).Methods(http.MethodPost)
	api.HandleFunc("/documents", s.handleDocument).Methods(http.MethodPost)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the background workers and serves until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	p := s.Policy()
	s.logger.Info("Starting scan-redactor server",
		zap.Int("port", s.config.Server.Port),
		zap.String("mode", p.Mode.String()),
		zap.String("categories", p.Categories.String()),
		zap.Bool("documents", s.deps.Documents != nil),
		zap.Bool("audit_store", s.deps.Audit != nil),
	)

	go s.hub.Run(ctx)
	go s.hub.ReportStatus(ctx, 30*time.Second, s.status)
	go s.limiter.RunCleanup(ctx, 10*time.Minute, time.Hour)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scan-redactor server")
	return s.server.Shutdown(ctx)
}

// Policy returns the default policy applied to requests without an
// override.
func (s *Server) Policy() redaction.Policy {
	return *s.policy.Load()
}

// SetPolicy replaces the default policy. In-flight requests keep the
// policy they started with.
func (s *Server) SetPolicy(p redaction.Policy) {
	s.policy.Store(&p)
	s.logger.Info("Redaction policy updated",
		zap.String("mode", p.Mode.String()),
		zap.String("categories", p.Categories.String()),
		zap.Bool("ocr_tolerance", p.OCRTolerance))
}

// WatchPolicy reloads the default policy when the config file changes.
func (s *Server) WatchPolicy() error {
	return config.Watch(func(cfg *config.Config) {
		p, err := redaction.PolicyFromConfig(cfg.Redaction)
		if err != nil {
			s.logger.Warn("Ignoring invalid policy change", zap.Error(err))
			return
		}
		s.SetPolicy(p)
	}, func(err error) {
		s.logger.Warn("Ignoring invalid configuration change", zap.Error(err))
	})
}

func (s *Server) status() websocket.SystemStatusEvent {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return websocket.SystemStatusEvent{
		Status:          "healthy",
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		TotalRequests:   s.requests.Load(),
		TotalRedactions: s.redactions.Load(),
		ActiveRules:     s.deps.Rules,
		MemoryUsage:     fmt.Sprintf("%.1f MB", float64(mem.Alloc)/(1<<20)),
	}
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.hub
}
