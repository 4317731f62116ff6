package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/panics"

	"github.com/House-of-Events/Annabeth/internal/config"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

// RunFunc is one scheduled invocation. A returned error is logged and never
// stops the schedule.
type RunFunc func(ctx context.Context) error

// Runner triggers RunFunc on a cron schedule. Ticks that fire while a run is
// still in flight are skipped.
type Runner struct {
	spec       string
	runOnStart bool
	location   string
	job        RunFunc
	logger     *logging.Logger
	cron       *cron.Cron
	entry      cron.EntryID
	ctx        context.Context
	startWG    sync.WaitGroup
}

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func New(cfg config.SchedulerConfig, job RunFunc, logger *logging.Logger) (*Runner, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if job == nil {
		return nil, crerr.New("scheduler job is required")
	}

	spec := strings.TrimSpace(cfg.Cron)
	if _, err := parser.Parse(spec); err != nil {
		return nil, crerr.Wrapf(err, "parse schedule %q", spec)
	}
	timezone := strings.TrimSpace(cfg.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, crerr.Wrapf(err, "load schedule timezone %q", timezone)
	}

	cronLogger := newCronLogger(logger)
	r := &Runner{
		spec:       spec,
		runOnStart: cfg.RunOnStart,
		location:   timezone,
		job:        job,
		logger:     logger,
	}
	r.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(location),
		cron.WithLogger(cronLogger),
		cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		),
	)
	r.entry, err = r.cron.AddFunc(spec, r.tick)
	if err != nil {
		return nil, crerr.Wrapf(err, "register schedule %q", spec)
	}
	return r, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// the in-flight run to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.ctx = ctx
	r.cron.Start()
	r.logger.Info("scheduler started",
		"schedule", r.spec,
		"timezone", r.location,
		"run_on_start", r.runOnStart,
		"next_run", r.cron.Entry(r.entry).Next,
	)

	if r.runOnStart {
		wrapped := r.cron.Entry(r.entry).WrappedJob
		r.startWG.Add(1)
		go func() {
			defer r.startWG.Done()
			wrapped.Run()
		}()
	}

	<-ctx.Done()
	r.logger.Info("scheduler stopping, waiting for in-flight run")
	<-r.cron.Stop().Done()
	r.startWG.Wait()
	r.logger.Info("scheduler stopped")
	return nil
}

func (r *Runner) tick() {
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	var catcher panics.Catcher
	catcher.Try(func() {
		if err := r.job(ctx); err != nil {
			r.logger.ErrorContext(ctx, "scheduled run failed", "error", err)
		}
	})
	if recovered := catcher.Recovered(); recovered != nil {
		r.logger.ErrorContext(ctx, "scheduled run panicked",
			"panic", recovered.Value,
			"stack", string(recovered.Stack),
		)
	}
}
