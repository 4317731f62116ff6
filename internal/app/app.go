package app

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"

	"github.com/House-of-Events/Annabeth/internal/config"
	"github.com/House-of-Events/Annabeth/internal/infrastructure/jobqueue"
	"github.com/House-of-Events/Annabeth/internal/infrastructure/repository/memory"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
	"github.com/House-of-Events/Annabeth/internal/usecase"
)

// Runtime owns configuration and logging for the process and opens a fresh
// session for every pipeline invocation.
type Runtime struct {
	cfg         config.Config
	logger      *logging.Logger
	open        SessionOpener
	serviceOpts []usecase.DispatchServiceOption
}

type RuntimeOption func(*Runtime)

func WithSessionOpener(open SessionOpener) RuntimeOption {
	return func(r *Runtime) {
		if open != nil {
			r.open = open
		}
	}
}

func WithServiceOptions(opts ...usecase.DispatchServiceOption) RuntimeOption {
	return func(r *Runtime) {
		r.serviceOpts = append(r.serviceOpts, opts...)
	}
}

// WithDemoFixtures swaps postgres for an in-memory store seeded around now.
// The store lives as long as the runtime, so marks persist across scheduled runs.
func WithDemoFixtures(now time.Time) RuntimeOption {
	return func(r *Runtime) {
		repo := memory.NewFixtureRepository(memory.SeedFixtures(now))
		r.open = func(ctx context.Context, cfg config.Config, logger *logging.Logger, withPublisher bool) (*Session, error) {
			session := NewSession(repo, nil)
			if !withPublisher {
				return session, nil
			}
			publisher, err := jobqueue.New(ctx, publisherOptions(cfg), logger)
			if err != nil {
				return nil, err
			}
			session.Publisher = publisher
			return session, nil
		}
	}
}

func NewRuntime(cfg config.Config, logger *logging.Logger, opts ...RuntimeOption) *Runtime {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Runtime{
		cfg:    cfg,
		logger: logger,
		open:   openPostgresSession,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runtime) Config() config.Config {
	return r.cfg
}

func (r *Runtime) Logger() *logging.Logger {
	return r.logger
}

// RunOnce opens a session, runs the pipeline and closes the session on every
// exit path. Close errors only surface when the run itself succeeded.
func (r *Runtime) RunOnce(ctx context.Context, opts usecase.RunOptions) (summary usecase.RunSummary, err error) {
	session, err := r.open(ctx, r.cfg, r.logger, !opts.DryRun)
	if err != nil {
		return usecase.RunSummary{}, crerr.Mark(crerr.Wrap(err, "open session"), usecase.ErrDependencyUnavailable)
	}
	defer func() {
		if closeErr := session.Close(r.logger); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	svc := usecase.NewDispatchService(
		session.Fixtures,
		session.Publisher,
		dispatchServiceConfig(r.cfg),
		r.logger,
		r.serviceOpts...,
	)
	return svc.Run(ctx, opts)
}

// Ping opens a session without a publisher and checks the store.
func (r *Runtime) Ping(ctx context.Context) (time.Duration, error) {
	started := time.Now()
	session, err := r.open(ctx, r.cfg, r.logger, false)
	if err != nil {
		return 0, crerr.Mark(crerr.Wrap(err, "open session"), usecase.ErrDependencyUnavailable)
	}
	defer func() { _ = session.Close(r.logger) }()

	if err := session.Ping(ctx); err != nil {
		return 0, err
	}
	latency := time.Since(started)
	r.logger.Info("database reachable", "latency_ms", latency.Milliseconds())
	return latency, nil
}

func dispatchServiceConfig(cfg config.Config) usecase.DispatchServiceConfig {
	return usecase.DispatchServiceConfig{
		Horizon:        cfg.Dispatch.Horizon,
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
		PublishTimeout: cfg.Dispatch.PublishTimeout,
		MarkTimeout:    cfg.Dispatch.MarkTimeout,
		InformLead:     cfg.Dispatch.InformLead,
	}
}
