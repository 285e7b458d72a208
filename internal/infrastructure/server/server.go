package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/omnik/internal/api/http"
	"github.com/GriffinCanCode/omnik/internal/api/middleware"
	"github.com/GriffinCanCode/omnik/internal/api/ws"
	"github.com/GriffinCanCode/omnik/internal/domain/chat"
	"github.com/GriffinCanCode/omnik/internal/domain/session"
	"github.com/GriffinCanCode/omnik/internal/domain/workspace"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/config"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/logging"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/omnik/internal/notify"
	"github.com/GriffinCanCode/omnik/internal/output/render"
	"github.com/GriffinCanCode/omnik/internal/output/rules"
	"github.com/GriffinCanCode/omnik/internal/storage"
)

const serviceName = "omnik"

// Server wraps the HTTP server and dependencies
type Server struct {
	config   *config.Config
	router   *gin.Engine
	http     *http.Server
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	db       *storage.DB
	registry *session.Registry
	reaper   *session.Reaper
	watcher  *workspace.Watcher
	tracing  tracing.ShutdownFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option customizes server construction
type Option func(*options)

type options struct {
	logger     *logging.Logger
	newProcess session.ProcessFactory
}

// WithLogger replaces the logger built from LOG_* settings
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProcessFactory replaces the PTY-backed Claude Code process
func WithProcessFactory(factory session.ProcessFactory) Option {
	return func(o *options) { o.newProcess = factory }
}

// NewServer creates a new server instance. Sessions left active by a
// previous run are marked crashed before the server accepts requests.
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.FromAppConfig(cfg.Logging))
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Initializing omnik server",
		zap.String("port", cfg.Server.Port),
		zap.String("workspace_base", cfg.Sessions.WorkspaceBase),
		zap.Int("max_sessions", cfg.Sessions.MaxSessions))

	s := &Server{config: cfg, logger: logger}
	if err := s.build(ctx, o); err != nil {
		s.release(context.Background())
		return nil, err
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) build(ctx context.Context, o options) error {
	cfg := s.config
	logger := s.logger.Logger

	s.metrics = monitoring.NewMetrics()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, serviceName, s.logger.Component("tracing"))
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	s.tracing = shutdownTracing

	heuristics, err := rules.LoadOrDefault(cfg.Rules.File)
	if err != nil {
		return err
	}
	renderer := render.New(heuristics, logger)

	db, err := storage.Open(ctx, cfg.Storage.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	s.db = db

	s.watcher = workspace.NewWatcher(func(sessionID string) {
		s.registry.Touch(context.Background(), sessionID)
	}, workspace.DefaultDebounce, logger)

	regOpts := session.OptionsFromConfig(cfg.Sessions, cfg.Secrets.AnthropicAPIKey)
	regOpts.NewProcess = o.newProcess
	regOpts.Lifecycle = workspaceLifecycle{watcher: s.watcher, logger: logger}
	regOpts.Guard = resilience.NewGuard(resilience.Settings{
		OnStateChange: func(key string, from, to gobreaker.State) {
			s.metrics.RecordBreakerTransition(to.String())
			logger.Warn("Crash-loop breaker changed state",
				zap.String("session_id", key),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	s.registry = session.NewRegistry(db, regOpts, logger).WithMetrics(s.metrics)

	recovered, err := s.registry.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover sessions: %w", err)
	}
	if recovered > 0 {
		logger.Info("Marked orphaned sessions crashed", zap.Int("count", recovered))
	}

	s.reaper, err = session.NewReaper(s.registry, cfg.Sessions.ReapSchedule, cfg.Sessions.IdleTimeout(), logger)
	if err != nil {
		return fmt.Errorf("invalid REAP_SCHEDULE: %w", err)
	}
	s.reaper.Start(context.WithoutCancel(ctx))

	notifier := notify.New(cfg.Notify, s.metrics, logger)
	if notifier.Enabled() {
		logger.Info("Webhook notifications enabled")
	}
	chatSvc := chat.New(s.registry, db, renderer, notifier, s.metrics, logger)

	files := workspace.NewManager(cfg.Sessions.WorkspaceBase, logger)
	handlers := apihttp.NewHandlers(apihttp.Deps{
		Sessions: s.registry,
		Chat:     chatSvc,
		History:  db,
		Files:    files,
		Metrics:  s.metrics,
		Logger:   logger,
	})

	limiter := middleware.NewMessageLimiter(cfg.RateLimit.MessagesPerMinute, s.metrics)
	wsHandler := ws.NewHandler(s.registry, chatSvc, limiter, s.metrics, logger)

	s.router = s.routes(handlers, wsHandler, limiter)
	s.http = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (s *Server) routes(handlers *apihttp.Handlers, wsHandler *ws.Handler, limiter *middleware.MessageLimiter) *gin.Engine {
	cfg := s.config
	logger := s.logger.Logger

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(tracing.HTTPMiddleware())
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.CORSFromConfig(cfg.Server)))
	rateCfg := middleware.RateLimitFromConfig(cfg.RateLimit)
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Int("messages_per_minute", cfg.RateLimit.MessagesPerMinute))
		router.Use(middleware.RateLimit(rateCfg, s.metrics))
	}

	authorized, restrict := cfg.Auth.AuthorizedUser()
	if restrict {
		logger.Info("API restricted to a single owner", zap.Int64("owner", authorized))
	}
	owner := middleware.Owner(authorized, restrict)

	handlers.Register(router, owner, limiter.Messages())

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	stream := []gin.HandlerFunc{owner}
	if cfg.RateLimit.Enabled {
		stream = append([]gin.HandlerFunc{middleware.GlobalRateLimit(rateCfg, s.metrics)}, stream...)
	}
	router.GET("/stream", append(stream, wsHandler.HandleConnection)...)

	return router
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, terminates every session, and releases
// storage and telemetry. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down server...")
		var errs []error
		if s.http != nil {
			if err := s.http.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		if err := s.release(ctx); err != nil {
			errs = append(errs, err)
		}
		s.shutdownErr = errors.Join(errs...)
	})
	return s.shutdownErr
}

// release tears down whatever build managed to create
func (s *Server) release(ctx context.Context) error {
	var errs []error

	if s.reaper != nil {
		s.reaper.Stop()
	}
	if s.registry != nil {
		if err := s.registry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session shutdown: %w", err))
		}
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if s.tracing != nil {
		if err := s.tracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}

// workspaceLifecycle keeps a file watcher on every running session
type workspaceLifecycle struct {
	watcher *workspace.Watcher
	logger  *zap.Logger
}

func (w workspaceLifecycle) Started(sessionID, root string) {
	if err := w.watcher.Watch(sessionID, root); err != nil {
		w.logger.Warn("Failed to watch workspace",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// Stopped unwatches asynchronously: the watcher's change callback takes the
// session lock the registry holds here.
func (w workspaceLifecycle) Stopped(sessionID string) {
	go w.watcher.Unwatch(sessionID)
}
