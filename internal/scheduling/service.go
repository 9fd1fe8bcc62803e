package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/medrex/booking/pkg/config"
	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/logger"
	"github.com/medrex/booking/pkg/monitoring"
)

// ServiceName labels logs, metrics and health reports
const ServiceName = "scheduling-service"

// limiterCleanupInterval paces eviction of idle rate limit buckets
const limiterCleanupInterval = time.Minute

// Version is reported by the health endpoint
var Version = "dev"

// Service hosts the scheduling engine over HTTP
type Service struct {
	config     *config.Config
	logger     *logger.Logger
	store      interfaces.Store
	engine     interfaces.SchedulingEngine
	dispatcher *Dispatcher
	metrics    *monitoring.MetricsCollector
	monitor    *monitoring.MonitoringMiddleware
	health     *monitoring.HealthManager
	auth       *Authenticator
	limiter    *RateLimiter
	server     *http.Server
}

// ServiceOption customizes a Service
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	now     func() time.Time
	metrics *monitoring.MetricsCollector
}

// WithServiceClock overrides the engine clock
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.now = now }
}

// WithServiceMetrics shares a collector created before the service, e.g. one
// already handed to the repository
func WithServiceMetrics(m *monitoring.MetricsCollector) ServiceOption {
	return func(o *serviceOptions) { o.metrics = m }
}

// New wires the engine, notification dispatcher and HTTP stack around store.
// The service takes ownership of store and closes it on Stop.
func New(cfg *config.Config, log *logger.Logger, store interfaces.Store, sink interfaces.NotificationSink, opts ...ServiceOption) (*Service, error) {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	rules, err := RulesFromConfig(cfg.Scheduling)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduling rules: %w", err)
	}

	metrics := o.metrics
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector(ServiceName)
	}
	monitor := monitoring.NewMonitoringMiddleware(metrics, log, routeTemplate)

	dispatcher := NewDispatcher(sink, DispatcherConfig{
		QueueSize: cfg.Scheduling.NotificationQueueSize,
		Workers:   cfg.Scheduling.NotificationWorkers,
	}, log, metrics)

	engine := NewEngine(store, dispatcher, rules, log,
		WithClock(o.now),
		WithMetrics(metrics),
	)

	health := monitoring.NewHealthManager(ServiceName, Version)
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		health.RegisterChecker("store", monitoring.NewPingHealthChecker(p.Ping, false))
	}

	s := &Service{
		config:     cfg,
		logger:     log,
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		metrics:    metrics,
		monitor:    monitor,
		health:     health,
		auth:       NewAuthenticator(cfg.Auth.Mode, NewTokenValidator(cfg.JWT), monitor),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit)
	}
	return s, nil
}

// Engine exposes the scheduling core
func (s *Service) Engine() interfaces.SchedulingEngine {
	return s.engine
}

// Health exposes the health manager so callers can register checks
func (s *Service) Health() *monitoring.HealthManager {
	return s.health
}

// Handler builds the HTTP router
func (s *Service) Handler() http.Handler {
	router := mux.NewRouter()
	s.setupRoutes(router)
	return router
}

// Start starts the notification workers and serves HTTP until Stop
func (s *Service) Start() error {
	s.dispatcher.Start()
	if s.limiter != nil {
		s.limiter.StartCleanup(limiterCleanupInterval)
	}

	s.server = &http.Server{
		Addr:         s.config.Server.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.WithComponent("http").WithField("addr", s.server.Addr).Info("Starting Scheduling Service")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop drains HTTP traffic, then queued notifications, then closes the store
func (s *Service) Stop(ctx context.Context) error {
	s.logger.WithComponent("http").Info("Stopping Scheduling Service")

	var errs []error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.limiter != nil {
		s.limiter.StopCleanup()
	}
	if err := s.dispatcher.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tmpl
}
