package observability

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"

	"github.com/House-of-Events/Annabeth/internal/config"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

// Stack holds the observability components started for one process.
type Stack struct {
	logger          *logging.Logger
	shutdownTracing func(context.Context) error
	stopProfiler    func() error
	pprofServer     *PprofServer
}

// Start enables tracing, plus profiling and pprof when longRunning is set.
// A one-shot run does not live long enough for profiles to be useful.
func Start(cfg config.Config, logger *logging.Logger, longRunning bool) (*Stack, error) {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Stack{logger: logger}

	shutdownTracing, err := InitUptrace(cfg, logger)
	if err != nil {
		return nil, crerr.Wrap(err, "init uptrace")
	}
	s.shutdownTracing = shutdownTracing

	if !longRunning {
		return s, nil
	}

	stopProfiler, err := InitPyroscope(cfg, logger)
	if err != nil {
		_ = s.Shutdown(context.Background())
		return nil, crerr.Wrap(err, "init pyroscope")
	}
	s.stopProfiler = stopProfiler

	pprofServer, err := StartPprofServer(cfg, logger)
	if err != nil {
		_ = s.Shutdown(context.Background())
		return nil, crerr.Wrap(err, "start pprof server")
	}
	s.pprofServer = pprofServer
	return s, nil
}

// Shutdown stops components in reverse start order and joins their errors.
func (s *Stack) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs []error
	if err := s.pprofServer.Stop(5 * time.Second); err != nil {
		errs = append(errs, err)
	}
	if s.stopProfiler != nil {
		if err := s.stopProfiler(); err != nil {
			errs = append(errs, crerr.Wrap(err, "stop pyroscope"))
		}
	}
	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			errs = append(errs, crerr.Wrap(err, "shutdown uptrace"))
		}
	}
	return crerr.Join(errs...)
}
