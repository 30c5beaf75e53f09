package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/selectionstore/internal/domain/native"
	"github.com/GriffinCanCode/selectionstore/internal/domain/registry"
	"github.com/GriffinCanCode/selectionstore/internal/domain/selection"
	"github.com/GriffinCanCode/selectionstore/internal/domain/session"
	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/handle/osfs"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/config"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
	"github.com/GriffinCanCode/selectionstore/internal/shared/id"
	"github.com/GriffinCanCode/selectionstore/internal/store"
)

// App wires the selection stack together
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
	Connector  *store.Connector
	Registry   *registry.Manager
	Native     *native.Backend
	Sessions   *session.Manager
	Selections *selection.Dispatcher

	teardown *session.SignalTeardown
}

// Option customizes New
type Option func(*builder)

type builder struct {
	logger    *logging.Logger
	registry  prometheus.Registerer
	hub       *store.Hub
	resolvers []handle.Resolver
}

// WithLogger overrides the logger built from the config
func WithLogger(l *logging.Logger) Option {
	return func(b *builder) { b.logger = l }
}

// WithRegisterer registers metrics on reg instead of a private registry
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *builder) { b.registry = reg }
}

// WithHub shares a connection hub between apps opened on the same file
func WithHub(h *store.Hub) Option {
	return func(b *builder) { b.hub = h }
}

// WithResolvers adds handle resolvers next to the local filesystem one
func WithResolvers(rs ...handle.Resolver) Option {
	return func(b *builder) { b.resolvers = append(b.resolvers, rs...) }
}

// New builds every component from cfg. Nothing touches the disk until
// Init or the first store operation.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}

	logger := b.logger
	if logger == nil {
		l, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}
	hub := b.hub
	if hub == nil {
		hub = store.NewHub()
	}
	metrics := monitoring.NewMetrics(b.registry)
	ids := id.NewGenerator()

	breakerLog := logger.Component("breaker")
	breaker := resilience.New("store:"+cfg.Store.Name, resilience.Settings{
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			breakerLog.Warn("circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	conn, err := store.NewConnector(store.Options{
		Dir:         cfg.Store.Dir,
		Name:        cfg.Store.Name,
		Version:     cfg.Store.Version,
		Partitions:  []string{registry.Partition, native.Partition},
		MaxAttempts: cfg.Store.MaxAttempts,
		BusyTimeout: cfg.Store.BusyTimeout,
		Compress:    cfg.Store.Compress,
		Hub:         hub,
		Breaker:     breaker,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	reg := registry.NewManager(conn, ids,
		registry.WithLogger(logger),
		registry.WithMetrics(metrics))

	resolvers := handle.NewResolvers(append([]handle.Resolver{osfs.NewResolver()}, b.resolvers...)...)
	backend := native.NewBackend(conn, reg, resolvers,
		native.WithLogger(logger),
		native.WithMetrics(metrics),
		native.WithIDs(ids),
		native.WithProbeConcurrency(cfg.Permissions.ProbeConcurrency))

	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithIDs(ids),
	}
	var teardown *session.SignalTeardown
	if cfg.Transient.WatchSignals {
		teardown = session.NewSignalTeardown()
		sessionOpts = append(sessionOpts, session.WithTeardown(teardown))
	}
	sessions := session.NewManager(sessionOpts...)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		Connector:  conn,
		Registry:   reg,
		Native:     backend,
		Sessions:   sessions,
		Selections: selection.New(reg, backend, sessions, selection.WithLogger(logger)),
		teardown:   teardown,
	}, nil
}

// Init opens the store and, when configured, sweeps pending native records
// left by an earlier crash.
func (a *App) Init(ctx context.Context) error {
	if err := a.Connector.Warm(ctx); err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if !a.Config.Store.ReconcileOnStart {
		return nil
	}
	report, err := a.Native.Reconcile(ctx, a.Config.Store.ReconcileGrace)
	if err != nil {
		return fmt.Errorf("startup reconcile failed: %w", err)
	}
	a.Logger.Info("store ready",
		zap.String("path", a.Connector.Path()),
		zap.Int("scanned", report.Scanned),
		zap.Int("committed", report.Committed),
		zap.Int("deleted", report.Deleted),
		zap.Int("unregistered", report.Unregistered))
	return nil
}

// Teardown returns the signal watcher, or nil when signals are not watched
func (a *App) Teardown() *session.SignalTeardown {
	return a.teardown
}

// Close expires every transient session and releases the store
func (a *App) Close() error {
	if n := a.Sessions.ExpireAll(session.ReasonDispose); n > 0 {
		a.Logger.Info("transient sessions disposed", zap.Int("count", n))
	}
	a.Sessions.Close()
	if a.teardown != nil {
		a.teardown.Stop()
	}

	err := a.Connector.Close()
	// Sync returns EINVAL for stderr on linux
	_ = a.Logger.Sync()
	return err
}
